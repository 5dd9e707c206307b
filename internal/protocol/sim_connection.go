// internal/protocol/sim_connection.go
package protocol

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"dataexplorer-comm/internal/comm"
)

// SimScript is a telegram script replayed by the simulator
type SimScript struct {
	Telegrams []SimTelegram `yaml:"telegrams"`
	Loop      bool          `yaml:"loop"`
}

// SimTelegram is one scripted telegram. Hex may contain blanks between
// byte pairs; the telegram is delivered DelayMs after the previous one.
type SimTelegram struct {
	DelayMs int    `yaml:"delay_ms"`
	Hex     string `yaml:"hex"`
	Repeat  int    `yaml:"repeat"`
}

// LoadSimScript parses a YAML telegram script
func LoadSimScript(data []byte) (*SimScript, error) {
	var script SimScript
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("failed to parse simulator script: %w", err)
	}
	if len(script.Telegrams) == 0 {
		return nil, fmt.Errorf("simulator script has no telegrams")
	}
	totalDelay := 0
	for i, t := range script.Telegrams {
		if _, err := t.Bytes(); err != nil {
			return nil, fmt.Errorf("telegram %d: %w", i, err)
		}
		totalDelay += t.DelayMs
	}
	if script.Loop && totalDelay <= 0 {
		return nil, fmt.Errorf("looping simulator script needs a telegram delay")
	}
	return &script, nil
}

// Bytes decodes the telegram payload
func (t SimTelegram) Bytes() ([]byte, error) {
	return hex.DecodeString(strings.Join(strings.Fields(t.Hex), ""))
}

// SimConnection replays recorded device output from a file. Written
// commands are accepted and discarded.
type SimConnection struct {
	config   SimulatorConfig
	logger   *zap.Logger
	mutex    sync.Mutex
	open     bool
	script   *SimScript
	raw      []byte
	inbox    *comm.Inbox
	cancel   context.CancelFunc
	feedDone chan struct{}
	statsRecorder
}

// NewSimConnection creates a new simulator connection
func NewSimConnection(config SimulatorConfig, logger *zap.Logger) *SimConnection {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 64
	}
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	return &SimConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", string(KindSimulator)),
			zap.String("file", config.File),
		),
		inbox: comm.NewInbox(),
	}
}

// Open loads the simulation file and starts replaying it
func (s *SimConnection) Open(cfg *comm.PortConfig) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.open {
		return nil
	}

	data, err := os.ReadFile(s.config.File)
	if err != nil {
		return &comm.PortError{Port: s.config.File, Op: "open", Err: err}
	}

	s.script, s.raw = nil, nil
	switch strings.ToLower(filepath.Ext(s.config.File)) {
	case ".yaml", ".yml":
		script, err := LoadSimScript(data)
		if err != nil {
			return &comm.ConfigurationError{Port: s.config.File, Reason: err.Error()}
		}
		s.script = script
	default:
		s.raw = data
	}

	s.inbox.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.feedDone = make(chan struct{})
	go s.feed(ctx, s.feedDone)

	s.open = true
	s.setConnected(true)
	s.logger.Info("Simulator opened", zap.Bool("scripted", s.script != nil))
	return nil
}

// Close stops the replay
func (s *SimConnection) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.open {
		return nil
	}
	s.cancel()
	<-s.feedDone
	s.open = false
	s.setConnected(false)
	s.logger.Info("Simulator closed")
	return nil
}

// Available returns the number of replayed, unread bytes
func (s *SimConnection) Available() (int, error) {
	return s.inbox.Len()
}

// ReadRaw drains replayed bytes into buf
func (s *SimConnection) ReadRaw(buf []byte) (int, error) {
	n, err := s.inbox.Read(buf)
	s.recordRead(n)
	return n, err
}

// Write discards data
func (s *SimConnection) Write(data []byte) (int, error) {
	if !s.isOpen() {
		return 0, comm.ErrNotConnected
	}
	s.recordWrite(len(data), 0)
	s.logger.Debug("Simulator discarded command", zap.String("data", comm.HexString(data)))
	return len(data), nil
}

// Flush does nothing
func (s *SimConnection) Flush() error {
	return nil
}

// ResetInput discards replayed, unread bytes
func (s *SimConnection) ResetInput() error {
	s.inbox.Reset()
	return nil
}

// Name returns the binding name
func (s *SimConnection) Name() string {
	return string(KindSimulator)
}

// Kind returns the transport kind
func (s *SimConnection) Kind() Kind {
	return KindSimulator
}

func (s *SimConnection) isOpen() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.open
}

func (s *SimConnection) feed(ctx context.Context, done chan struct{}) {
	defer close(done)
	if s.script != nil {
		s.feedScript(ctx)
		return
	}
	s.feedRaw(ctx)
}

func (s *SimConnection) feedScript(ctx context.Context) {
	for {
		for _, t := range s.script.Telegrams {
			payload, _ := t.Bytes()
			repeat := t.Repeat
			if repeat < 1 {
				repeat = 1
			}
			for i := 0; i < repeat; i++ {
				if !sleepCtx(ctx, time.Duration(t.DelayMs)*time.Millisecond) {
					return
				}
				s.inbox.Write(payload)
			}
		}
		if !s.script.Loop {
			return
		}
	}
}

func (s *SimConnection) feedRaw(ctx context.Context) {
	if len(s.raw) == 0 {
		return
	}
	for {
		for off := 0; off < len(s.raw); off += s.config.ChunkSize {
			if !sleepCtx(ctx, s.config.Interval) {
				return
			}
			end := off + s.config.ChunkSize
			if end > len(s.raw) {
				end = len(s.raw)
			}
			s.inbox.Write(s.raw[off:end])
		}
		if !s.config.Loop {
			return
		}
	}
}

// sleepCtx waits d and reports false when ctx ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
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
