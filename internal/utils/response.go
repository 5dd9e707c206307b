// internal/utils/response.go
package utils

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dataexplorer-comm/internal/comm"
)

// Context keys shared by the response helpers and the request middleware
const (
	ContextKeyRequestID = "request_id"
	ContextKeyErrorCode = "error_code"
	ContextKeyPort      = "port"
)

// Error codes of the API envelope
const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL_ERROR"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
	CodeDeadline          = "DEADLINE_EXCEEDED"
	CodePortConfiguration = "PORT_CONFIGURATION"
	CodePortUnavailable   = "PORT_UNAVAILABLE"
	CodePortNotConnected  = "PORT_NOT_CONNECTED"
	CodeDeviceTimeout     = "DEVICE_TIMEOUT"
	CodeDeviceOutOfSync   = "DEVICE_OUT_OF_SYNC"
	CodeTransferError     = "TRANSFER_ERROR"
)

// APIResponse represents standard API response structure
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError describes a failed request. Port is set for errors raised by a
// device port.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Port    string `json:"port,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: c.GetString(ContextKeyRequestID),
	})
}

// ErrorResponse sends an error response coded by its HTTP status
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	writeError(c, statusCode, &APIError{Code: statusErrorCode(statusCode), Message: message}, err, nil)
}

// CommErrorResponse sends the response for an error returned by a port
// operation. Status and code follow the comm error type.
func CommErrorResponse(c *gin.Context, message string, err error) {
	statusCode, code := ClassifyError(err)
	writeError(c, statusCode, &APIError{Code: code, Message: message, Port: errorPort(err)}, err, nil)
}

// ValidationErrorResponse sends validation error response
func ValidationErrorResponse(c *gin.Context, fields map[string]string) {
	writeError(c, http.StatusBadRequest,
		&APIError{Code: CodeValidation, Message: "Request validation failed"},
		nil, gin.H{"validation_errors": fields})
}

// ClassifyError maps err onto an HTTP status and an API error code
func ClassifyError(err error) (int, string) {
	var (
		configErr   *comm.ConfigurationError
		portErr     *comm.PortError
		timeoutErr  *comm.TimeoutError
		outOfSync   *comm.OutOfSyncError
		transferErr *comm.TransferError
	)

	switch {
	case err == nil:
		return http.StatusInternalServerError, CodeInternal
	case errors.As(err, &configErr):
		return http.StatusBadRequest, CodePortConfiguration
	case errors.Is(err, comm.ErrNotConnected):
		return http.StatusConflict, CodePortNotConnected
	case errors.As(err, &portErr):
		return http.StatusConflict, CodePortUnavailable
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout, CodeDeviceTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeDeadline
	case errors.As(err, &outOfSync):
		return http.StatusBadGateway, CodeDeviceOutOfSync
	case errors.As(err, &transferErr):
		return http.StatusBadGateway, CodeTransferError
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeError(c *gin.Context, statusCode int, apiError *APIError, err error, data interface{}) {
	if err != nil {
		apiError.Details = err.Error()
	}
	c.Set(ContextKeyErrorCode, apiError.Code)
	if apiError.Port != "" {
		c.Set(ContextKeyPort, apiError.Port)
	}

	c.JSON(statusCode, APIResponse{
		Success:   false,
		Message:   apiError.Message,
		Data:      data,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: c.GetString(ContextKeyRequestID),
	})
}

func errorPort(err error) string {
	var configErr *comm.ConfigurationError
	var portErr *comm.PortError
	switch {
	case errors.As(err, &configErr):
		return configErr.Port
	case errors.As(err, &portErr):
		return portErr.Port
	}
	return ""
}

func statusErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	case http.StatusGatewayTimeout:
		return CodeDeadline
	default:
		return CodeInternal
	}
}
