// internal/repository/session_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/database"
	"dataexplorer-comm/internal/model"
)

// sessionRepository implements SessionRepository interface
type sessionRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB, logger *zap.Logger) SessionRepository {
	return &sessionRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a started session
func (r *sessionRepository) Create(ctx context.Context, session *model.AcquisitionSession) error {
	query := `
		INSERT INTO acquisition_sessions (id, port, kind, read_mode, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.Port, session.Kind, session.ReadMode, session.Status, session.StartedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create session", zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// Finish stores the final counters of a stopped session
func (r *sessionRepository) Finish(ctx context.Context, session *model.AcquisitionSession) error {
	query := `
		UPDATE acquisition_sessions SET
			status = $2, stopped_at = $3, stop_reason = $4, telegram_count = $5,
			transfer_errors = $6, timeout_errors = $7, avg_wait_ms = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		session.ID, session.Status, session.StoppedAt, session.StopReason, session.TelegramCount,
		session.TransferErrors, session.TimeoutErrors, session.AvgWaitMs,
	)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("session not found with id: %s", session.ID)
	}

	return nil
}

// GetByID retrieves a session by ID
func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AcquisitionSession, error) {
	query := `
		SELECT id, port, kind, read_mode, status, started_at, stopped_at, stop_reason,
			   telegram_count, transfer_errors, timeout_errors, avg_wait_ms, created_at
		FROM acquisition_sessions WHERE id = $1
	`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found with id: %s", id)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// List retrieves the most recent sessions
func (r *sessionRepository) List(ctx context.Context, limit int) ([]*model.AcquisitionSession, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, port, kind, read_mode, status, started_at, stopped_at, stop_reason,
			   telegram_count, transfer_errors, timeout_errors, avg_wait_ms, created_at
		FROM acquisition_sessions
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*model.AcquisitionSession{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			r.logger.Error("Failed to scan session row", zap.Error(err))
			continue
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*model.AcquisitionSession, error) {
	session := &model.AcquisitionSession{}
	err := row.Scan(
		&session.ID, &session.Port, &session.Kind, &session.ReadMode,
		&session.Status, &session.StartedAt, &session.StoppedAt, &session.StopReason,
		&session.TelegramCount, &session.TransferErrors, &session.TimeoutErrors,
		&session.AvgWaitMs, &session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}
