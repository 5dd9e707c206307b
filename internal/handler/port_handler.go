// internal/handler/port_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/comm"
	"dataexplorer-comm/internal/utils"
)

// PortHandler handles port HTTP requests
type PortHandler struct {
	ports  PortController
	logger *utils.ServiceLogger
}

// NewPortHandler creates a new port handler
func NewPortHandler(ports PortController, logger *zap.Logger) *PortHandler {
	return &PortHandler{
		ports:  ports,
		logger: utils.NewServiceLogger(logger, "port-handler"),
	}
}

// RegisterRoutes registers port routes
func (h *PortHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ports", h.ListPorts)

	port := router.Group("/port")
	{
		port.GET("", h.GetStatus)
		port.POST("/open", h.OpenPort)
		port.POST("/close", h.ClosePort)
	}
}

// ListPorts lists the available OS ports
// @Summary List ports
// @Description Scan the OS serial ports, apply the black/white list and return the available ones
// @Tags Ports
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]service.PortInfo} "Available ports"
// @Failure 400 {object} utils.APIResponse "Listing not supported by the transport"
// @Failure 500 {object} utils.APIResponse "Scan failed"
// @Router /api/v1/ports [get]
func (h *PortHandler) ListPorts(c *gin.Context) {
	ports, err := h.ports.ListPorts()
	if err != nil {
		if !comm.IsConfiguration(err) {
			h.logger.Error("Failed to list ports", zap.Error(err))
		}
		utils.CommErrorResponse(c, "Port listing failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Ports retrieved successfully", ports)
}

// GetStatus returns the port status
// @Summary Port status
// @Description Get the session port connection state, configuration and error counters
// @Tags Ports
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.PortStatus} "Port status"
// @Router /api/v1/port [get]
func (h *PortHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Port status retrieved successfully", h.ports.Status())
}

// OpenPort opens the session port
// @Summary Open port
// @Description Open the configured port
// @Tags Ports
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.PortStatus} "Port opened"
// @Failure 400 {object} utils.APIResponse "Invalid port configuration"
// @Failure 409 {object} utils.APIResponse "Port in use"
// @Failure 500 {object} utils.APIResponse "Open failed"
// @Router /api/v1/port/open [post]
func (h *PortHandler) OpenPort(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := h.ports.Open(ctx); err != nil {
		h.logger.Error("Failed to open port", zap.Error(err))
		utils.CommErrorResponse(c, "Failed to open port", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Port opened successfully", h.ports.Status())
}

// ClosePort closes the session port
// @Summary Close port
// @Description Close the port and wait until the OS handle is released
// @Tags Ports
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.PortStatus} "Port closed"
// @Failure 504 {object} utils.APIResponse "Close did not complete"
// @Router /api/v1/port/close [post]
func (h *PortHandler) ClosePort(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.ports.Close(ctx); err != nil {
		utils.CommErrorResponse(c, "Failed to close port", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Port closed successfully", h.ports.Status())
}
