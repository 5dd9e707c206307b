package comm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeChannel releases one feed chunk into the input queue per Available
// call, and per ReadRaw call while the queue is empty.
type fakeChannel struct {
	mu sync.Mutex

	feed    [][]byte
	queued  []byte
	written []byte
	writes  int

	opened   *PortConfig
	openErr  error
	resetErr error
	readErr  error

	flushes int
	resets  int
	closes  int
}

func newFakeChannel(feed ...[]byte) *fakeChannel {
	return &fakeChannel{feed: feed}
}

func (f *fakeChannel) release() {
	if len(f.feed) > 0 {
		f.queued = append(f.queued, f.feed[0]...)
		f.feed = f.feed[1:]
	}
}

func (f *fakeChannel) Open(cfg *PortConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	c := *cfg
	f.opened = &c
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeChannel) Available() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release()
	return len(f.queued), nil
}

func (f *fakeChannel) ReadRaw(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.queued) == 0 {
		f.release()
	}
	n := copy(buf, f.queued)
	f.queued = f.queued[n:]
	return n, nil
}

func (f *fakeChannel) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.written = append(f.written, data...)
	return len(data), nil
}

func (f *fakeChannel) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *fakeChannel) ResetInput() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	if f.resetErr != nil {
		return f.resetErr
	}
	f.queued = nil
	return nil
}

func (f *fakeChannel) Name() string {
	return "fake"
}

func (f *fakeChannel) queue(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, data...)
}

func (f *fakeChannel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// countingSleeper records requested sleeps without suspending
type countingSleeper struct {
	mu    sync.Mutex
	calls int
	total time.Duration
}

func (s *countingSleeper) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.total += d
}

func (s *countingSleeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingStatus struct {
	mu        sync.Mutex
	transmit  []bool
	receive   []bool
	connected []bool
}

func (r *recordingStatus) SetTransmitActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transmit = append(r.transmit, active)
}

func (r *recordingStatus) SetReceiveActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receive = append(r.receive, active)
}

func (r *recordingStatus) SetConnected(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, connected)
}

type fakeLister struct {
	ports  []PortInfo
	busy   map[string]bool
	err    error
	lists  int
	probes []string
}

func (l *fakeLister) ListPorts() ([]PortInfo, error) {
	l.lists++
	if l.err != nil {
		return nil, l.err
	}
	return l.ports, nil
}

func (l *fakeLister) Probe(name string) error {
	l.probes = append(l.probes, name)
	if l.busy[name] {
		return errors.New("port busy")
	}
	return nil
}

func sequence(n int, start byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = start + byte(i)
	}
	return out
}

func testPortConfig() PortConfig {
	return PortConfig{
		Port:     "/dev/ttyUSB0",
		BaudRate: 9600,
		DataBits: 8,
		StopBits: StopBitsOne,
		Parity:   ParityNone,
	}
}

// openTestPort returns an opened port on ch with a counting sleeper and an
// observed logger.
func openTestPort(t *testing.T, ch *fakeChannel) (*Port, *countingSleeper, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	sleeper := &countingSleeper{}
	p := NewPort(ch, testPortConfig(), zap.New(core), NewPortOption().SetSleeper(sleeper.sleep))
	if err := p.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	return p, sleeper, logs
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
