// internal/service/acquisition_service.go
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/comm"
	"dataexplorer-comm/internal/config"
	"dataexplorer-comm/internal/model"
	"dataexplorer-comm/internal/repository"
	"dataexplorer-comm/internal/utils"
)

// Errors returned by the acquisition control operations
var (
	ErrAcquisitionRunning    = errors.New("acquisition is already running")
	ErrAcquisitionNotRunning = errors.New("acquisition is not running")
)

// TelegramPublisher receives every telegram read by the acquisition loop
type TelegramPublisher interface {
	PublishTelegram(telegram *model.Telegram)
}

// AcquisitionStatus is the diagnostic view of the acquisition loop
type AcquisitionStatus struct {
	Running             bool                      `json:"running"`
	Session             *model.AcquisitionSession `json:"session,omitempty"`
	ConsecutiveFailures int                       `json:"consecutive_failures"`
	LastError           string                    `json:"last_error,omitempty"`
	WaitTimes           WaitTimeStats             `json:"wait_times"`
}

// WaitTimeStats summarizes the waits of timed reads
type WaitTimeStats struct {
	Samples          int             `json:"samples"`
	AverageMs        decimal.Decimal `json:"average_ms"`
	MaxMs            decimal.Decimal `json:"max_ms"`
	SuggestedTimeout int             `json:"suggested_timeout_ms"`
}

// AcquisitionService drives the device: it queries, reads telegrams with the
// configured framing policy and hands them to the recorder and publishers.
type AcquisitionService struct {
	ports         *PortService
	sessionRepo   repository.SessionRepository
	telegramRepo  repository.TelegramRepository
	publishers    []TelegramPublisher
	config        config.AcquisitionConfig
	query         []byte
	timeoutFactor decimal.Decimal
	waitTimes     *comm.WaitTimes
	logger        *utils.ServiceLogger

	mutex       sync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	session     *model.AcquisitionSession
	sequence    int64
	consecutive int
	lastError   string
}

// NewAcquisitionService creates a new acquisition service. The repositories
// may be nil when recording is disabled.
func NewAcquisitionService(
	ports *PortService,
	sessionRepo repository.SessionRepository,
	telegramRepo repository.TelegramRepository,
	cfg *config.Config,
	logger *zap.Logger,
	publishers ...TelegramPublisher,
) (*AcquisitionService, error) {
	query, err := parseQuery(cfg.Acquisition.Query)
	if err != nil {
		return nil, fmt.Errorf("invalid acquisition query: %w", err)
	}

	factor, err := decimal.NewFromString(cfg.Acquisition.TimeoutFactor)
	if err != nil || !factor.IsPositive() {
		return nil, fmt.Errorf("invalid acquisition timeout factor: %q", cfg.Acquisition.TimeoutFactor)
	}

	return &AcquisitionService{
		ports:         ports,
		sessionRepo:   sessionRepo,
		telegramRepo:  telegramRepo,
		publishers:    publishers,
		config:        cfg.Acquisition,
		query:         query,
		timeoutFactor: factor,
		waitTimes:     comm.NewWaitTimes(),
		logger:        utils.NewServiceLogger(logger, "acquisition"),
	}, nil
}

// parseQuery decodes a hex query command, blanks between bytes allowed
func parseQuery(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

// Start opens the port and starts the acquisition loop
func (as *AcquisitionService) Start(ctx context.Context) (*model.AcquisitionSession, error) {
	as.mutex.Lock()
	defer as.mutex.Unlock()

	if as.running {
		return nil, ErrAcquisitionRunning
	}

	if err := as.ports.Open(ctx); err != nil {
		return nil, err
	}

	port := as.ports.Port()
	session := &model.AcquisitionSession{
		ID:        uuid.New(),
		Port:      port.Name(),
		Kind:      string(as.ports.kind),
		ReadMode:  model.ReadMode(as.config.ReadMode),
		Status:    model.SessionStatusRunning,
		StartedAt: time.Now(),
	}

	if as.sessionRepo != nil {
		if err := as.sessionRepo.Create(ctx, session); err != nil {
			as.logger.Error("Failed to record session", zap.Error(err))
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	as.running = true
	as.cancel = cancel
	as.done = make(chan struct{})
	as.session = session
	as.sequence = 0
	as.consecutive = 0
	as.lastError = ""

	go as.run(loopCtx, session, as.done)

	as.logger.Info("Acquisition started",
		zap.String("session_id", session.ID.String()),
		zap.String("port", session.Port),
		zap.String("read_mode", as.config.ReadMode),
	)

	return session, nil
}

// Stop sets the user interrupt, waits for the loop to finish the current
// exchange and closes the port.
func (as *AcquisitionService) Stop(ctx context.Context) error {
	as.mutex.Lock()
	if !as.running {
		as.mutex.Unlock()
		return ErrAcquisitionNotRunning
	}
	cancel, done := as.cancel, as.done
	as.mutex.Unlock()

	as.ports.Port().SetInterruptedByUser(true)
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquisition did not stop: %w", ctx.Err())
	}
}

// Done returns a channel closed when the current loop has ended, or nil
// when no loop was started.
func (as *AcquisitionService) Done() <-chan struct{} {
	as.mutex.Lock()
	defer as.mutex.Unlock()
	return as.done
}

// Status returns the diagnostic view of the loop
func (as *AcquisitionService) Status() AcquisitionStatus {
	as.mutex.Lock()
	defer as.mutex.Unlock()

	status := AcquisitionStatus{
		Running:             as.running,
		ConsecutiveFailures: as.consecutive,
		LastError:           as.lastError,
		WaitTimes: WaitTimeStats{
			Samples:          as.waitTimes.Len(),
			AverageMs:        as.waitTimes.AverageMs(),
			MaxMs:            as.waitTimes.MaxMs(),
			SuggestedTimeout: as.suggestedTimeout(as.ports.Port().Config().BaudRate),
		},
	}
	if as.session != nil {
		session := *as.session
		session.TelegramCount = as.sequence
		status.Session = &session
	}
	return status
}

func (as *AcquisitionService) run(ctx context.Context, session *model.AcquisitionSession, done chan struct{}) {
	defer close(done)

	port := as.ports.Port()
	reason, failed := "stopped by user", false

	for {
		if ctx.Err() != nil || port.IsInterruptedByUser() {
			break
		}

		as.mutex.Lock()
		sequence := as.sequence + 1
		as.mutex.Unlock()

		cycleLogger := utils.NewCycleLogger(as.logger.Logger, as.config.ReadMode, sequence)
		start := time.Now()
		data, err := as.cycle(port)
		if err != nil {
			cycleLogger.Error(err)
			if stop, why := as.recordFailure(port, err); stop {
				reason, failed = why, true
				break
			}
		} else {
			cycleLogger.Success(zap.Int("size", len(data)))
			as.deliver(session, sequence, data, time.Since(start))
		}

		if !sleepContext(ctx, as.config.Interval) {
			break
		}
	}

	as.finish(session, reason, failed)
}

// cycle performs one query/read exchange
func (as *AcquisitionService) cycle(port *comm.Port) ([]byte, error) {
	if as.config.CheckLeftover {
		if err := port.CheckForLeftOverBytes(); err != nil {
			return nil, err
		}
	}

	if len(as.query) > 0 {
		var err error
		if as.config.WriteGapMs > 0 {
			err = port.WriteGap(as.query, as.config.WriteGapMs)
		} else {
			err = port.Write(as.query)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to write query: %w", err)
		}
	}

	buf := make([]byte, as.config.TelegramSize)
	switch as.config.ReadMode {
	case config.ReadModeFixed:
		if as.config.CheckFailedQuery {
			return port.ReadCheckFailedQuery(buf, as.config.TimeoutMs, true)
		}
		return port.Read(buf, as.config.TimeoutMs)
	case config.ReadModeTimed:
		return port.ReadTimed(buf, as.timedReadTimeout(port.Config().BaudRate), as.waitTimes)
	default:
		if as.config.MinCount > 0 {
			return port.ReadStableMin(buf, as.config.TimeoutMs, as.config.StableIndex, as.config.MinCount)
		}
		return port.ReadStable(buf, as.config.TimeoutMs, as.config.StableIndex)
	}
}

// timedReadTimeout is the observed wait times the timeout factor, never
// shorter than the line needs for a telegram nor longer than configured.
// After a failed exchange the configured timeout applies again.
func (as *AcquisitionService) timedReadTimeout(baudRate int) int {
	as.mutex.Lock()
	retrying := as.consecutive > 0
	as.mutex.Unlock()
	if retrying {
		return as.config.TimeoutMs
	}
	return as.suggestedTimeout(baudRate)
}

func (as *AcquisitionService) suggestedTimeout(baudRate int) int {
	timeout := as.waitTimes.SuggestTimeoutMs(as.timeoutFactor, as.config.TimeoutMs)
	if floor := comm.MinReadTimeoutMs(as.config.TelegramSize, baudRate); timeout < floor {
		timeout = floor
	}
	if timeout > as.config.TimeoutMs {
		timeout = as.config.TimeoutMs
	}
	return timeout
}

// recordFailure counts err on the port and reports whether the loop has to stop
func (as *AcquisitionService) recordFailure(port *comm.Port, err error) (bool, string) {
	var outOfSync *comm.OutOfSyncError
	var transfer *comm.TransferError

	as.mutex.Lock()
	defer as.mutex.Unlock()
	as.lastError = err.Error()

	switch {
	case errors.Is(err, comm.ErrNotConnected):
		return true, "port closed"
	case comm.IsTimeout(err):
		port.AddTimeoutError()
	case errors.As(err, &outOfSync), errors.As(err, &transfer):
		port.AddTransferError()
	}

	as.consecutive++
	if as.config.MaxFailures > 0 && as.consecutive >= as.config.MaxFailures {
		return true, fmt.Sprintf("stopped after %d consecutive failures: %v", as.consecutive, err)
	}
	return false, ""
}

func (as *AcquisitionService) deliver(session *model.AcquisitionSession, sequence int64, data []byte, duration time.Duration) {
	as.mutex.Lock()
	as.sequence = sequence
	as.consecutive = 0
	as.mutex.Unlock()

	telegram := model.NewTelegram(session.ID, sequence, data, session.ReadMode, duration)
	telegram.Hex = comm.HexString(telegram.Data)
	as.ports.logger.LogTelegram(sequence, telegram.Data, duration)

	if as.telegramRepo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := as.telegramRepo.Create(ctx, telegram); err != nil {
			as.logger.Error("Failed to record telegram", zap.Error(err), zap.Int64("sequence", sequence))
		}
	}
	for _, publisher := range as.publishers {
		publisher.PublishTelegram(telegram)
	}
}

func (as *AcquisitionService) finish(session *model.AcquisitionSession, reason string, failed bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := as.ports.Close(ctx); err != nil {
		as.logger.Error("Failed to close port", zap.Error(err))
	}

	port := as.ports.Port()
	counters := port.Counters()
	now := time.Now()

	as.mutex.Lock()
	session.StoppedAt = &now
	session.StopReason = &reason
	session.TelegramCount = as.sequence
	session.TransferErrors = counters.TransferErrors
	session.TimeoutErrors = counters.TimeoutErrors
	session.Status = model.SessionStatusStopped
	if failed {
		session.Status = model.SessionStatusFailed
	}
	if as.waitTimes.Len() > 0 {
		session.AvgWaitMs = decimal.NewNullDecimal(as.waitTimes.AverageMs())
	}
	as.running = false
	as.mutex.Unlock()

	if as.sessionRepo != nil {
		if err := as.sessionRepo.Finish(ctx, session); err != nil {
			as.logger.Error("Failed to record session end", zap.Error(err))
		}
	}

	as.logger.Info("Acquisition stopped",
		zap.String("session_id", session.ID.String()),
		zap.String("reason", reason),
		zap.Int64("telegrams", session.TelegramCount),
		zap.Int64("transfer_errors", counters.TransferErrors),
		zap.Int64("timeout_errors", counters.TimeoutErrors),
	)
}

// sleepContext waits d and reports false when ctx ended first
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
