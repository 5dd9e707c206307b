// internal/middleware/request_id_middleware.go
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/utils"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

const contextKeyLogger = "logger"

// RequestIDMiddleware assigns every request an ID and a request-scoped logger
func RequestIDMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(utils.ContextKeyRequestID, requestID)
		c.Set(contextKeyLogger, utils.LoggerWithRequestID(logger, requestID))
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// requestLogger returns the request-scoped logger, or fallback
func requestLogger(c *gin.Context, fallback *zap.Logger) *zap.Logger {
	if value, exists := c.Get(contextKeyLogger); exists {
		if logger, ok := value.(*zap.Logger); ok {
			return logger
		}
	}
	return fallback
}
