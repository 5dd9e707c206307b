package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"dataexplorer-comm/internal/config"
	"dataexplorer-comm/internal/model"
	"dataexplorer-comm/internal/protocol"
)

func newTestAcquisition(t *testing.T, cfg *config.Config, device *fakeDevice, publishers ...TelegramPublisher) (*AcquisitionService, *memSessionRepo, *memTelegramRepo) {
	t.Helper()
	ports, err := NewPortService(cfg, device, PortServiceOption{Sleeper: noSleep}, zap.NewNop())
	if err != nil {
		t.Fatalf("port service: %v", err)
	}
	sessions, telegrams := &memSessionRepo{}, &memTelegramRepo{}
	svc, err := NewAcquisitionService(ports, sessions, telegrams, cfg, zap.NewNop(), publishers...)
	if err != nil {
		t.Fatalf("acquisition service: %v", err)
	}
	return svc, sessions, telegrams
}

func waitDone(t *testing.T, svc *AcquisitionService) {
	t.Helper()
	select {
	case <-svc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("acquisition loop did not stop")
	}
}

func TestAcquisitionReadModes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.AcquisitionConfig)
	}{
		{"fixed", func(c *config.AcquisitionConfig) {}},
		{"fixed failed query check", func(c *config.AcquisitionConfig) { c.CheckFailedQuery = true }},
		{"stable", func(c *config.AcquisitionConfig) { c.ReadMode = config.ReadModeStable }},
		{"stable with floor", func(c *config.AcquisitionConfig) {
			c.ReadMode = config.ReadModeStable
			c.MinCount = 2
		}},
		{"timed", func(c *config.AcquisitionConfig) { c.ReadMode = config.ReadModeTimed }},
		{"byte gap query", func(c *config.AcquisitionConfig) {
			c.WriteGapMs = 2
			c.CheckLeftover = true
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg.Acquisition)
			device := newFakeDevice(protocol.KindSimulator, 2, 8)
			sink := newCollector()
			svc, sessions, telegrams := newTestAcquisition(t, cfg, device, sink)

			session, err := svc.Start(context.Background())
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			if !sink.waitFor(3, 5*time.Second) {
				t.Fatal("telegrams not received")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := svc.Stop(ctx); err != nil {
				t.Fatalf("stop: %v", err)
			}

			got := sink.all()
			for i, tg := range got[:3] {
				if tg.Sequence != int64(i+1) || tg.Size != 8 || tg.SessionID != session.ID {
					t.Errorf("telegram %d: %+v", i, tg)
				}
				if tg.Data[0] != byte(i+1) || tg.Data[7] != 7 {
					t.Errorf("telegram %d data % X", i, tg.Data)
				}
			}
			if telegrams.count() != len(got) {
				t.Errorf("recorded %d telegrams, published %d", telegrams.count(), len(got))
			}

			written, writes, opens, closes := device.snapshot()
			if !bytes.HasPrefix(written, []byte{0x0F, 0x04, 0x0F, 0x04}) {
				t.Errorf("queries written % X", written)
			}
			if cfg.Acquisition.WriteGapMs > 0 && writes != len(written) {
				t.Errorf("gap writes must be single bytes, %d writes for %d bytes", writes, len(written))
			}
			if opens != 1 || closes != 1 {
				t.Errorf("opens %d closes %d", opens, closes)
			}

			status := svc.Status()
			if status.Running || status.Session.Status != model.SessionStatusStopped {
				t.Errorf("unexpected status %+v", status)
			}
			if len(sessions.finished) != 1 || *sessions.finished[0].StopReason != "stopped by user" {
				t.Errorf("session end not recorded: %+v", sessions.finished)
			}
			if cfg.Acquisition.ReadMode == config.ReadModeTimed && status.WaitTimes.Samples < 3 {
				t.Errorf("timed reads must record waits, got %d", status.WaitTimes.Samples)
			}
		})
	}
}

func TestAcquisitionTimedReadAfterFastAnswers(t *testing.T) {
	cfg := testConfig()
	cfg.Acquisition.ReadMode = config.ReadModeTimed
	device := newFakeDevice(protocol.KindSimulator, 2, 8)
	sink := newCollector()
	svc, _, _ := newTestAcquisition(t, cfg, device, sink)
	svc.waitTimes.Add(5 * time.Millisecond)

	// 1.5 x 5 ms is raised to what 8 bytes at 9600 baud need
	if got := svc.timedReadTimeout(9600); got != 56 {
		t.Errorf("timed read timeout = %d, want 56", got)
	}

	if _, err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !sink.waitFor(3, 5*time.Second) {
		t.Fatalf("telegrams not received, last error %q", svc.Status().LastError)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	status := svc.Status()
	if status.Session.Status != model.SessionStatusStopped || status.Session.TimeoutErrors != 0 {
		t.Errorf("unexpected session %+v", status.Session)
	}

	svc.mutex.Lock()
	svc.consecutive = 1
	svc.mutex.Unlock()
	if got := svc.timedReadTimeout(9600); got != cfg.Acquisition.TimeoutMs {
		t.Errorf("retry timeout = %d, want configured %d", got, cfg.Acquisition.TimeoutMs)
	}
}

func TestAcquisitionStopsAfterConsecutiveFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Acquisition.Interval = 0
	device := newFakeDevice(protocol.KindSimulator, 2, 8)
	device.silent = true
	svc, sessions, _ := newTestAcquisition(t, cfg, device)

	if _, err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, svc)

	status := svc.Status()
	if status.Running {
		t.Fatal("loop must have stopped")
	}
	if status.Session.Status != model.SessionStatusFailed || status.Session.TimeoutErrors != 3 {
		t.Errorf("unexpected session %+v", status.Session)
	}
	if !strings.Contains(status.LastError, "timeout") {
		t.Errorf("last error %q", status.LastError)
	}
	if len(sessions.finished) != 1 || !strings.Contains(*sessions.finished[0].StopReason, "3 consecutive failures") {
		t.Errorf("unexpected stop reason %+v", sessions.finished)
	}
	if counters := svc.ports.Port().Counters(); counters.TimeoutErrors != 3 || counters.TransferErrors != 0 {
		t.Errorf("counters %+v", counters)
	}
	if err := svc.Stop(context.Background()); err != ErrAcquisitionNotRunning {
		t.Errorf("expected ErrAcquisitionNotRunning, got %v", err)
	}
}

func TestAcquisitionStopsWhenPortIsClosed(t *testing.T) {
	cfg := testConfig()
	device := newFakeDevice(protocol.KindSimulator, 2, 8)
	sink := newCollector()
	svc, _, _ := newTestAcquisition(t, cfg, device, sink)

	if _, err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !sink.waitFor(1, 5*time.Second) {
		t.Fatal("no telegram received")
	}
	if err := svc.ports.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitDone(t, svc)

	status := svc.Status()
	if status.Session.Status != model.SessionStatusFailed || *status.Session.StopReason != "port closed" {
		t.Errorf("unexpected session %+v", status.Session)
	}
}

func TestAcquisitionStartTwice(t *testing.T) {
	cfg := testConfig()
	svc, _, _ := newTestAcquisition(t, cfg, newFakeDevice(protocol.KindSimulator, 2, 8))

	if _, err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Start(context.Background()); err != ErrAcquisitionRunning {
		t.Errorf("expected ErrAcquisitionRunning, got %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if svc.ports.Port().IsConnected() {
		t.Error("stop must close the port")
	}
}

func TestNewAcquisitionServiceValidation(t *testing.T) {
	ports, err := NewPortService(testConfig(), newFakeDevice(protocol.KindSimulator, 2, 8), PortServiceOption{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	badQuery := testConfig()
	badQuery.Acquisition.Query = "0f 0"
	if _, err := NewAcquisitionService(ports, nil, nil, badQuery, zap.NewNop()); err == nil {
		t.Error("odd hex query must be rejected")
	}

	badFactor := testConfig()
	badFactor.Acquisition.TimeoutFactor = "-1"
	if _, err := NewAcquisitionService(ports, nil, nil, badFactor, zap.NewNop()); err == nil {
		t.Error("negative timeout factor must be rejected")
	}

	query, err := parseQuery(" 0F 04\tAA ")
	if err != nil || !bytes.Equal(query, []byte{0x0F, 0x04, 0xAA}) {
		t.Errorf("parseQuery = % X, %v", query, err)
	}
}
