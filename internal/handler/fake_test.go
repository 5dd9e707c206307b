package handler

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"dataexplorer-comm/internal/model"
	"dataexplorer-comm/internal/repository"
	"dataexplorer-comm/internal/service"
)

type fakePorts struct {
	ports    []service.PortInfo
	listErr  error
	openErr  error
	closeErr error
	status   service.PortStatus
}

func (f *fakePorts) Open(context.Context) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.status.Connected = true
	return nil
}

func (f *fakePorts) Close(context.Context) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	f.status.Connected = false
	return nil
}

func (f *fakePorts) ListPorts() ([]service.PortInfo, error) { return f.ports, f.listErr }
func (f *fakePorts) Status() service.PortStatus            { return f.status }

type fakeAcquisition struct {
	running bool
	stopErr error
	session *model.AcquisitionSession
}

func (f *fakeAcquisition) Start(context.Context) (*model.AcquisitionSession, error) {
	if f.running {
		return nil, service.ErrAcquisitionRunning
	}
	f.running = true
	f.session = &model.AcquisitionSession{ID: uuid.New(), Port: "/dev/ttyUSB0", Status: model.SessionStatusRunning}
	return f.session, nil
}

func (f *fakeAcquisition) Stop(context.Context) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	if !f.running {
		return service.ErrAcquisitionNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeAcquisition) Status() service.AcquisitionStatus {
	return service.AcquisitionStatus{Running: f.running, Session: f.session}
}

type fakeDB struct {
	err error
}

func (f *fakeDB) Health(context.Context) error { return f.err }
func (f *fakeDB) Stats() sql.DBStats           { return sql.DBStats{OpenConnections: 1} }

type fakeSessions struct {
	sessions []*model.AcquisitionSession
}

func (f *fakeSessions) Create(context.Context, *model.AcquisitionSession) error { return nil }
func (f *fakeSessions) Finish(context.Context, *model.AcquisitionSession) error { return nil }

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*model.AcquisitionSession, error) {
	for _, s := range f.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, errors.New("session not found")
}

func (f *fakeSessions) List(context.Context, int) ([]*model.AcquisitionSession, error) {
	return f.sessions, nil
}

type fakeTelegrams struct {
	mu        sync.Mutex
	telegrams []*model.Telegram
	filter    *repository.TelegramFilter
}

func (f *fakeTelegrams) Create(context.Context, *model.Telegram) error { return nil }

func (f *fakeTelegrams) List(_ context.Context, filter *repository.TelegramFilter) ([]*model.Telegram, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	return f.telegrams, len(f.telegrams), nil
}

func (f *fakeTelegrams) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }
