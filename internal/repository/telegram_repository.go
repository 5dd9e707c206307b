// internal/repository/telegram_repository.go
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dataexplorer-comm/internal/comm"
	"dataexplorer-comm/internal/database"
	"dataexplorer-comm/internal/model"
	"dataexplorer-comm/internal/utils"
)

const maxTelegramPage = 500

// telegramRepository implements TelegramRepository interface
type telegramRepository struct {
	db          *database.DB
	logger      *zap.Logger
	queryLogger *utils.ServiceLogger
}

// NewTelegramRepository creates a new telegram repository
func NewTelegramRepository(db *database.DB, logger *zap.Logger) TelegramRepository {
	return &telegramRepository{
		db:          db,
		logger:      logger,
		queryLogger: utils.NewServiceLogger(logger, "telegram-repository"),
	}
}

// Create stores a received telegram
func (r *telegramRepository) Create(ctx context.Context, telegram *model.Telegram) error {
	query := `
		INSERT INTO telegrams (
			id, session_id, sequence, data, size, read_mode, duration_ms, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		telegram.ID, telegram.SessionID, telegram.Sequence, telegram.Data,
		telegram.Size, telegram.ReadMode, telegram.DurationMs, telegram.ReceivedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create telegram", zap.Error(err))
		return fmt.Errorf("failed to create telegram: %w", err)
	}

	return nil
}

// List retrieves telegrams with filtering and pagination, newest first
func (r *telegramRepository) List(ctx context.Context, filter *TelegramFilter) ([]*model.Telegram, int, error) {
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.SessionID != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("session_id = $%d", argIndex))
		args = append(args, *filter.SessionID)
		argIndex++
	}

	if filter.Since != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("received_at >= $%d", argIndex))
		args = append(args, *filter.Since)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM telegrams %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count telegrams: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxTelegramPage {
		limit = maxTelegramPage
	}

	query := fmt.Sprintf(`
		SELECT id, session_id, sequence, data, size, read_mode, duration_ms, received_at
		FROM telegrams %s
		ORDER BY received_at DESC, sequence DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)

	args = append(args, limit, filter.Offset)

	startTime := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	r.queryLogger.LogDatabaseQuery(query, args, time.Since(startTime), err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list telegrams: %w", err)
	}
	defer rows.Close()

	telegrams := []*model.Telegram{}
	for rows.Next() {
		telegram := &model.Telegram{}
		err := rows.Scan(
			&telegram.ID, &telegram.SessionID, &telegram.Sequence, &telegram.Data,
			&telegram.Size, &telegram.ReadMode, &telegram.DurationMs, &telegram.ReceivedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan telegram row", zap.Error(err))
			continue
		}
		telegram.Hex = comm.HexString(telegram.Data)
		telegrams = append(telegrams, telegram)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate telegrams: %w", err)
	}

	return telegrams, total, nil
}

// DeleteOlderThan removes telegrams received before olderThan
func (r *telegramRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM telegrams WHERE received_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old telegrams: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
