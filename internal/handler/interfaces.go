// internal/handler/interfaces.go
package handler

import (
	"context"
	"database/sql"

	"dataexplorer-comm/internal/model"
	"dataexplorer-comm/internal/service"
)

// PortController is the port surface used by the handlers
type PortController interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	ListPorts() ([]service.PortInfo, error)
	Status() service.PortStatus
}

// AcquisitionController is the acquisition surface used by the handlers
type AcquisitionController interface {
	Start(ctx context.Context) (*model.AcquisitionSession, error)
	Stop(ctx context.Context) error
	Status() service.AcquisitionStatus
}

// DatabaseChecker reports recorder database health
type DatabaseChecker interface {
	Health(ctx context.Context) error
	Stats() sql.DBStats
}
