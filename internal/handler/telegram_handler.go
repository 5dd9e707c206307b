// internal/handler/telegram_handler.go
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/repository"
	"dataexplorer-comm/internal/utils"
)

// TelegramHandler serves the recorded sessions and telegrams
type TelegramHandler struct {
	sessions  repository.SessionRepository
	telegrams repository.TelegramRepository
	logger    *utils.ServiceLogger
}

// NewTelegramHandler creates a new telegram handler. Both repositories are
// nil when recording is disabled.
func NewTelegramHandler(sessions repository.SessionRepository, telegrams repository.TelegramRepository, logger *zap.Logger) *TelegramHandler {
	return &TelegramHandler{
		sessions:  sessions,
		telegrams: telegrams,
		logger:    utils.NewServiceLogger(logger, "telegram-handler"),
	}
}

// RegisterRoutes registers telegram routes
func (h *TelegramHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/telegrams", h.ListTelegrams)
	router.GET("/sessions", h.ListSessions)
	router.GET("/sessions/:id", h.GetSession)
}

// ListTelegrams lists recorded telegrams
// @Summary List telegrams
// @Description List recorded telegrams, newest session first
// @Tags Telegrams
// @Produce json
// @Param session_id query string false "Session ID"
// @Param since query string false "RFC3339 lower bound of received_at"
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} utils.APIResponse "Telegrams"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Failure 503 {object} utils.APIResponse "Recording disabled"
// @Router /api/v1/telegrams [get]
func (h *TelegramHandler) ListTelegrams(c *gin.Context) {
	if h.telegrams == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Telegram recording is disabled", nil)
		return
	}

	filter, errs := parseTelegramFilter(c)
	if len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	telegrams, total, err := h.telegrams.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list telegrams", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list telegrams", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Telegrams retrieved successfully", gin.H{
		"telegrams": telegrams,
		"total":     total,
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	})
}

// ListSessions lists acquisition sessions
// @Summary List sessions
// @Tags Telegrams
// @Produce json
// @Param limit query int false "Number of sessions" default(50)
// @Success 200 {object} utils.APIResponse{data=[]model.AcquisitionSession} "Sessions"
// @Failure 503 {object} utils.APIResponse "Recording disabled"
// @Router /api/v1/sessions [get]
func (h *TelegramHandler) ListSessions(c *gin.Context) {
	if h.sessions == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Telegram recording is disabled", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sessions, err := h.sessions.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Sessions retrieved successfully", sessions)
}

// GetSession returns one acquisition session
// @Summary Get session
// @Tags Telegrams
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} utils.APIResponse{data=model.AcquisitionSession} "Session"
// @Failure 400 {object} utils.APIResponse "Invalid session ID"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Router /api/v1/sessions/{id} [get]
func (h *TelegramHandler) GetSession(c *gin.Context) {
	if h.sessions == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Telegram recording is disabled", nil)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", err)
		return
	}

	session, err := h.sessions.GetByID(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Session not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Session retrieved successfully", session)
}

func parseTelegramFilter(c *gin.Context) (*repository.TelegramFilter, map[string]string) {
	errs := make(map[string]string)
	filter := &repository.TelegramFilter{Limit: 100}

	if v := c.Query("session_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			errs["session_id"] = "must be a UUID"
		} else {
			filter.SessionID = &id
		}
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errs["since"] = "must be an RFC3339 timestamp"
		} else {
			filter.Since = &since
		}
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			errs["limit"] = "must be a positive integer"
		} else {
			filter.Limit = limit
		}
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			errs["offset"] = "must be a non-negative integer"
		} else {
			filter.Offset = offset
		}
	}

	return filter, errs
}
