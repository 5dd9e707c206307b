// internal/middleware/recovery_middleware.go
package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/utils"
)

// RecoveryMiddleware turns a handler panic into an error response. A panic
// carrying a port error is answered like the returned error would be.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			err, ok := recovered.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", recovered)
			}
			requestLogger(c, logger).Error("Handler panicked",
				zap.Error(err),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Stack("stacktrace"),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			if statusCode, _ := utils.ClassifyError(err); statusCode != http.StatusInternalServerError {
				utils.CommErrorResponse(c, "Port operation failed", err)
			} else {
				utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", nil)
			}
			c.Abort()
		}()

		c.Next()
	}
}
