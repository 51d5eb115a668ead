package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/faltrading/FAL-chat-service/internal/config"
	"github.com/faltrading/FAL-chat-service/internal/middleware"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

func SetupRouter(
	handlers *Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	metrics http.Handler,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/api/v1")
	{
		// Push-канал: токен передается в query, отказ - кодом закрытия
		v1.GET("/ws/chat/:groupId", handlers.WebSocket.HandleChat)

		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			groups := protected.Group("/chat/groups/:groupId")
			{
				groups.GET("/online", handlers.Message.Online)

				messages := groups.Group("/messages")
				{
					messages.POST("",
						rateLimitMiddleware.Limit("send", cfg.Chat.SendRateLimit, cfg.Chat.SendRateWindow),
						handlers.Message.Send)
					messages.GET("", handlers.Message.List)
					messages.POST("/read", handlers.Message.MarkRead)
					messages.GET("/unread/count", handlers.Message.UnreadCount)
					messages.GET("/pinned", handlers.Message.Pinned)
					messages.GET("/:messageId", handlers.Message.Get)
					messages.PUT("/:messageId", handlers.Message.Edit)
					messages.DELETE("/:messageId", handlers.Message.Delete)
					messages.POST("/:messageId/pin", handlers.Message.TogglePin)
				}
			}

			// Вызовы сервиса групп
			internal := protected.Group("/internal/groups/:groupId")
			internal.Use(authMiddleware.RequireAdmin())
			{
				internal.POST("/system-messages", handlers.Internal.CreateSystemMessage)
				internal.POST("/events", handlers.Internal.PublishEvent)
			}
		}
	}

	return router
}
