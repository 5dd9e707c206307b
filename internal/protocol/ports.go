// internal/protocol/ports.go
package protocol

import (
	"fmt"
	"time"

	tarm "github.com/tarm/serial"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/comm"
)

// SystemPortLister lists OS serial ports and probes them with the library
// of the selected serial binding
type SystemPortLister struct {
	kind    Kind
	bridges *BridgeDatabase
	logger  *zap.Logger
}

// NewSystemPortLister creates a lister for a serial kind
func NewSystemPortLister(kind Kind, logger *zap.Logger) *SystemPortLister {
	return &SystemPortLister{
		kind:    kind,
		bridges: NewBridgeDatabase(),
		logger:  logger.With(zap.String("component", "port-lister")),
	}
}

// ListPorts returns every serial port the OS reports, with the USB product,
// the bridge chip or VID:PID as description when known
func (l *SystemPortLister) ListPorts() ([]comm.PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		l.logger.Debug("Detailed port listing failed, using plain listing", zap.Error(err))
		names, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("failed to list serial ports: %w", err)
		}
		ports := make([]comm.PortInfo, 0, len(names))
		for _, name := range names {
			ports = append(ports, comm.PortInfo{Name: name})
		}
		return ports, nil
	}

	ports := make([]comm.PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, comm.PortInfo{Name: d.Name, Description: l.bridges.describePort(d)})
	}
	return ports, nil
}

// Probe opens and closes name
func (l *SystemPortLister) Probe(name string) error {
	if l.kind == KindSerialPortable {
		port, err := tarm.OpenPort(&tarm.Config{Name: name, Baud: 9600, ReadTimeout: 10 * time.Millisecond})
		if err != nil {
			return err
		}
		return port.Close()
	}

	port, err := serial.Open(name, &serial.Mode{BaudRate: 9600})
	if err != nil {
		return err
	}
	return port.Close()
}

func (db *BridgeDatabase) describePort(d *enumerator.PortDetails) string {
	if !d.IsUSB {
		return ""
	}
	if d.Product != "" {
		return d.Product
	}
	if name, ok := db.Describe(d.VID, d.PID); ok {
		return name
	}
	return fmt.Sprintf("USB %s:%s", d.VID, d.PID)
}
