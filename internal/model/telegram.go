// internal/model/telegram.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReadMode selects the framed read used by an acquisition session
type ReadMode string

const (
	ReadModeFixed  ReadMode = "fixed"
	ReadModeStable ReadMode = "stable"
	ReadModeTimed  ReadMode = "timed"
)

// SessionStatus represents the state of an acquisition session
type SessionStatus string

const (
	SessionStatusRunning SessionStatus = "RUNNING"
	SessionStatusStopped SessionStatus = "STOPPED"
	SessionStatusFailed  SessionStatus = "FAILED"
)

// AcquisitionSession is one open-read-close run against the device port
type AcquisitionSession struct {
	ID             uuid.UUID           `json:"id" db:"id"`
	Port           string              `json:"port" db:"port"`
	Kind           string              `json:"kind" db:"kind"`
	ReadMode       ReadMode            `json:"read_mode" db:"read_mode"`
	Status         SessionStatus       `json:"status" db:"status"`
	StartedAt      time.Time           `json:"started_at" db:"started_at"`
	StoppedAt      *time.Time          `json:"stopped_at,omitempty" db:"stopped_at"`
	StopReason     *string             `json:"stop_reason,omitempty" db:"stop_reason"`
	TelegramCount  int64               `json:"telegram_count" db:"telegram_count"`
	TransferErrors int64               `json:"transfer_errors" db:"transfer_errors"`
	TimeoutErrors  int64               `json:"timeout_errors" db:"timeout_errors"`
	AvgWaitMs      decimal.NullDecimal `json:"avg_wait_ms" db:"avg_wait_ms"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
}

// Telegram is one framed read received from the device
type Telegram struct {
	ID         uuid.UUID `json:"id" db:"id"`
	SessionID  uuid.UUID `json:"session_id" db:"session_id"`
	Sequence   int64     `json:"sequence" db:"sequence"`
	Data       []byte    `json:"-" db:"data"`
	Hex        string    `json:"data" db:"-"`
	Size       int       `json:"size" db:"size"`
	ReadMode   ReadMode  `json:"read_mode" db:"read_mode"`
	DurationMs int       `json:"duration_ms" db:"duration_ms"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}

// NewTelegram creates a telegram of session with a fresh id
func NewTelegram(sessionID uuid.UUID, sequence int64, data []byte, mode ReadMode, duration time.Duration) *Telegram {
	payload := make([]byte, len(data))
	copy(payload, data)
	return &Telegram{
		ID:         uuid.New(),
		SessionID:  sessionID,
		Sequence:   sequence,
		Data:       payload,
		Size:       len(payload),
		ReadMode:   mode,
		DurationMs: int(duration.Milliseconds()),
		ReceivedAt: time.Now(),
	}
}
