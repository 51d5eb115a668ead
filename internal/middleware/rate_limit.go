package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/faltrading/FAL-chat-service/internal/service"
	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		log:              log,
	}
}

// Limit ограничивает число запросов scope на пользователя (или IP без авторизации)
func (m *RateLimitMiddleware) Limit(scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.ClientIP()
		if principal, ok := PrincipalFrom(c); ok {
			subject = principal.UserID.String()
		}
		key := fmt.Sprintf("chat:ratelimit:%s:%s", scope, subject)

		allowed, err := m.rateLimitService.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			// Redis недоступен: запрос пропускаем
			m.log.Error("Rate limit check failed", "error", err, "scope", scope)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": apperrors.ErrRateLimited.Error()})
			return
		}
		c.Next()
	}
}
