// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dataexplorer-comm/internal/model"
)

// SessionRepository defines acquisition session data access operations
type SessionRepository interface {
	Create(ctx context.Context, session *model.AcquisitionSession) error
	Finish(ctx context.Context, session *model.AcquisitionSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.AcquisitionSession, error)
	List(ctx context.Context, limit int) ([]*model.AcquisitionSession, error)
}

// TelegramRepository defines telegram data access operations
type TelegramRepository interface {
	Create(ctx context.Context, telegram *model.Telegram) error
	List(ctx context.Context, filter *TelegramFilter) ([]*model.Telegram, int, error)

	// Cleanup
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// TelegramFilter represents telegram listing filters
type TelegramFilter struct {
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}
