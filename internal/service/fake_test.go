package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"dataexplorer-comm/internal/comm"
	"dataexplorer-comm/internal/config"
	"dataexplorer-comm/internal/model"
	"dataexplorer-comm/internal/protocol"
	"dataexplorer-comm/internal/repository"
)

// fakeDevice answers every complete query with the next reply
type fakeDevice struct {
	mu       sync.Mutex
	kind     protocol.Kind
	open     bool
	opens    int
	closes   int
	queryLen int
	pending  int
	replies  int
	silent   bool
	queued   []byte
	written  []byte
	writes   int
	size     int
}

func newFakeDevice(kind protocol.Kind, queryLen, size int) *fakeDevice {
	return &fakeDevice{kind: kind, queryLen: queryLen, size: size}
}

func (d *fakeDevice) Open(*comm.PortConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	d.opens++
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.closes++
	return nil
}

func (d *fakeDevice) Available() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queued), nil
}

func (d *fakeDevice) ReadRaw(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(buf, d.queued)
	d.queued = d.queued[n:]
	return n, nil
}

func (d *fakeDevice) Write(data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0, errors.New("device closed")
	}
	d.written = append(d.written, data...)
	d.writes++
	d.pending += len(data)
	if d.pending >= d.queryLen && !d.silent {
		d.pending = 0
		d.replies++
		reply := make([]byte, d.size)
		reply[0] = byte(d.replies)
		for i := 1; i < d.size; i++ {
			reply[i] = byte(i)
		}
		d.queued = append(d.queued, reply...)
	}
	return len(data), nil
}

func (d *fakeDevice) Flush() error      { return nil }
func (d *fakeDevice) ResetInput() error { return nil }
func (d *fakeDevice) Name() string      { return "fake" }
func (d *fakeDevice) Kind() protocol.Kind {
	return d.kind
}

func (d *fakeDevice) Stats() protocol.ProtocolStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return protocol.ProtocolStats{BytesWritten: int64(len(d.written)), IsConnected: d.open}
}

func (d *fakeDevice) snapshot() (written []byte, writes, opens, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.written...), d.writes, d.opens, d.closes
}

type staticLister struct {
	ports []comm.PortInfo
}

func (l *staticLister) ListPorts() ([]comm.PortInfo, error) {
	return l.ports, nil
}

func (l *staticLister) Probe(string) error {
	return nil
}

type collector struct {
	mu        sync.Mutex
	telegrams []*model.Telegram
	notify    chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 100)}
}

func (c *collector) PublishTelegram(t *model.Telegram) {
	c.mu.Lock()
	c.telegrams = append(c.telegrams, t)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *collector) waitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		got := len(c.telegrams)
		c.mu.Unlock()
		if got >= n {
			return true
		}
		select {
		case <-c.notify:
		case <-deadline:
			return false
		}
	}
}

func (c *collector) all() []*model.Telegram {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*model.Telegram(nil), c.telegrams...)
}

type memSessionRepo struct {
	mu       sync.Mutex
	created  []*model.AcquisitionSession
	finished []model.AcquisitionSession
}

func (r *memSessionRepo) Create(_ context.Context, s *model.AcquisitionSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, s)
	return nil
}

func (r *memSessionRepo) Finish(_ context.Context, s *model.AcquisitionSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, *s)
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*model.AcquisitionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.created {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *memSessionRepo) List(context.Context, int) ([]*model.AcquisitionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.AcquisitionSession(nil), r.created...), nil
}

type memTelegramRepo struct {
	mu        sync.Mutex
	telegrams []*model.Telegram
}

func (r *memTelegramRepo) Create(_ context.Context, t *model.Telegram) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.telegrams = append(r.telegrams, t)
	return nil
}

func (r *memTelegramRepo) List(_ context.Context, _ *repository.TelegramFilter) ([]*model.Telegram, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.Telegram(nil), r.telegrams...), len(r.telegrams), nil
}

func (r *memTelegramRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *memTelegramRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.telegrams)
}

func testConfig() *config.Config {
	return &config.Config{
		Port: config.PortConfig{
			Kind:     "simulator",
			Name:     "/dev/ttyUSB0",
			BaudRate: 9600,
			DataBits: 8,
		},
		Simulator: config.SimulatorConfig{File: "fake.yaml"},
		Acquisition: config.AcquisitionConfig{
			ReadMode:      config.ReadModeFixed,
			TelegramSize:  8,
			TimeoutMs:     100,
			StableIndex:   3,
			Query:         "0f 04",
			MaxFailures:   3,
			Interval:      time.Millisecond,
			TimeoutFactor: "1.5",
		},
	}
}

func noSleep(time.Duration) {}
