// internal/middleware/logging_middleware.go
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/utils"
)

var probePaths = map[string]bool{
	"/health": true,
	"/ready":  true,
	"/live":   true,
}

// LoggingMiddleware logs every request with its ID. Failed port operations
// add the error code and port recorded by the response helpers.
func LoggingMiddleware(logger *utils.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		fields := []zap.Field{
			zap.String("request_id", c.GetString(utils.ContextKeyRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("client_ip", c.ClientIP()),
		}
		if code := c.GetString(utils.ContextKeyErrorCode); code != "" {
			fields = append(fields, zap.String("error_code", code))
		}
		if port := c.GetString(utils.ContextKeyPort); port != "" {
			fields = append(fields, zap.String("port", port))
		}

		logger.LogAPIRequest(c.Writer.Status(), time.Since(startTime), probePaths[c.Request.URL.Path], fields...)
	}
}
