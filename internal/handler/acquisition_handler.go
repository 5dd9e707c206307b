// internal/handler/acquisition_handler.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/service"
	"dataexplorer-comm/internal/utils"
)

// AcquisitionHandler handles acquisition control requests
type AcquisitionHandler struct {
	acquisition AcquisitionController
	logger      *utils.ServiceLogger
}

// NewAcquisitionHandler creates a new acquisition handler
func NewAcquisitionHandler(acquisition AcquisitionController, logger *zap.Logger) *AcquisitionHandler {
	return &AcquisitionHandler{
		acquisition: acquisition,
		logger:      utils.NewServiceLogger(logger, "acquisition-handler"),
	}
}

// RegisterRoutes registers acquisition routes
func (h *AcquisitionHandler) RegisterRoutes(router *gin.RouterGroup) {
	acquisition := router.Group("/acquisition")
	{
		acquisition.GET("", h.GetStatus)
		acquisition.POST("/start", h.Start)
		acquisition.POST("/stop", h.Stop)
	}
}

// GetStatus returns the acquisition loop status
// @Summary Acquisition status
// @Description Get the running session, failure count and wait time statistics
// @Tags Acquisition
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.AcquisitionStatus} "Acquisition status"
// @Router /api/v1/acquisition [get]
func (h *AcquisitionHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Acquisition status retrieved successfully", h.acquisition.Status())
}

// Start opens the port and starts reading telegrams
// @Summary Start acquisition
// @Description Open the port and start the query/read loop
// @Tags Acquisition
// @Produce json
// @Success 201 {object} utils.APIResponse{data=model.AcquisitionSession} "Acquisition started"
// @Failure 400 {object} utils.APIResponse "Invalid port configuration"
// @Failure 409 {object} utils.APIResponse "Acquisition already running or port in use"
// @Failure 500 {object} utils.APIResponse "Start failed"
// @Router /api/v1/acquisition/start [post]
func (h *AcquisitionHandler) Start(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	session, err := h.acquisition.Start(ctx)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAcquisitionRunning):
			utils.ErrorResponse(c, http.StatusConflict, "Acquisition already running", err)
		default:
			h.logger.Error("Failed to start acquisition", zap.Error(err))
			utils.CommErrorResponse(c, "Failed to start acquisition", err)
		}
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Acquisition started successfully", session)
}

// Stop interrupts the loop and closes the port
// @Summary Stop acquisition
// @Description Interrupt the loop after the current exchange and close the port
// @Tags Acquisition
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.AcquisitionStatus} "Acquisition stopped"
// @Failure 409 {object} utils.APIResponse "Acquisition not running"
// @Failure 504 {object} utils.APIResponse "Loop did not stop in time"
// @Router /api/v1/acquisition/stop [post]
func (h *AcquisitionHandler) Stop(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := h.acquisition.Stop(ctx); err != nil {
		switch {
		case errors.Is(err, service.ErrAcquisitionNotRunning):
			utils.ErrorResponse(c, http.StatusConflict, "Acquisition not running", err)
		default:
			utils.CommErrorResponse(c, "Failed to stop acquisition", err)
		}
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Acquisition stopped successfully", h.acquisition.Status())
}
