package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/faltrading/FAL-chat-service/pkg/errors"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

// ErrorHandler превращает c.Error(err) в JSON-ответ со статусом по типу ошибки
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		statusCode := errors.HTTPStatusFromError(err)
		if statusCode >= 500 {
			log.Error("Request failed", "error", err, "path", c.FullPath(), "status", statusCode)
		}

		c.JSON(statusCode, gin.H{
			"error": errors.PublicMessage(err),
		})
	}
}
