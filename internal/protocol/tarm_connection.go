// internal/protocol/tarm_connection.go
package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	tarm "github.com/tarm/serial"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/comm"
)

// PortableSerialConnection is the portable serial binding on tarm/serial.
// The library has no modem line or flow control access; those settings are
// reported and ignored.
type PortableSerialConnection struct {
	readTick time.Duration
	logger   *zap.Logger
	mutex    sync.Mutex
	port     *tarm.Port
	name     string
	inbox    *comm.Inbox
	cancel   context.CancelFunc
	pumpDone <-chan struct{}
	statsRecorder
}

// NewPortableSerialConnection creates a new portable serial connection
func NewPortableSerialConnection(readTick time.Duration, logger *zap.Logger) *PortableSerialConnection {
	if readTick <= 0 {
		readTick = defaultReadTick
	}
	return &PortableSerialConnection{
		readTick: readTick,
		logger:   logger.With(zap.String("protocol", string(KindSerialPortable))),
		inbox:    comm.NewInbox(),
	}
}

// Open opens the serial port
func (pc *PortableSerialConnection) Open(cfg *comm.PortConfig) error {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	if pc.port != nil {
		return nil
	}

	c, err := tarmConfig(cfg, pc.readTick)
	if err != nil {
		return err
	}
	if cfg.FlowControl != comm.FlowControlNone || cfg.RTS || cfg.DTR {
		pc.logger.Warn("Modem lines and flow control are not supported by this binding, ignoring",
			zap.String("port", cfg.Port),
			zap.Stringer("flow_control", cfg.FlowControl),
			zap.Bool("rts", cfg.RTS),
			zap.Bool("dtr", cfg.DTR),
		)
	}

	port, err := tarm.OpenPort(c)
	if err != nil {
		pc.recordError()
		return &comm.PortError{Port: cfg.Port, Op: "open", Err: err}
	}

	pc.port = port
	pc.name = cfg.Port
	pc.inbox.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	pc.cancel = cancel
	pc.pumpDone = pc.inbox.Pump(ctx, port, pumpBufferSize(cfg.DataBlockSize))
	pc.setConnected(true)

	pc.logger.Info("Serial port opened successfully", zap.String("port", cfg.Port))
	return nil
}

// Close stops the pump and releases the OS handle
func (pc *PortableSerialConnection) Close() error {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	if pc.port == nil {
		return nil
	}

	pc.cancel()
	err := pc.port.Close()
	<-pc.pumpDone

	pc.port = nil
	pc.setConnected(false)
	if err != nil {
		pc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	pc.logger.Info("Serial port closed successfully", zap.String("port", pc.name))
	return nil
}

// Available returns the number of bytes queued by the pump
func (pc *PortableSerialConnection) Available() (int, error) {
	return pc.inbox.Len()
}

// ReadRaw drains queued bytes into buf
func (pc *PortableSerialConnection) ReadRaw(buf []byte) (int, error) {
	n, err := pc.inbox.Read(buf)
	if err != nil {
		pc.recordError()
		return n, err
	}
	pc.recordRead(n)
	return n, nil
}

// Write writes data to the serial port
func (pc *PortableSerialConnection) Write(data []byte) (int, error) {
	port, err := pc.openPort()
	if err != nil {
		return 0, err
	}

	startTime := time.Now()
	n, err := port.Write(data)
	if err != nil {
		pc.recordError()
		return n, fmt.Errorf("failed to write to serial port: %w", err)
	}
	pc.recordWrite(n, time.Since(startTime))
	return n, nil
}

// Flush is a no-op: tarm/serial writes synchronously and its Flush
// discards buffers instead of draining them.
func (pc *PortableSerialConnection) Flush() error {
	_, err := pc.openPort()
	return err
}

// ResetInput discards the OS buffers and the inbox
func (pc *PortableSerialConnection) ResetInput() error {
	port, err := pc.openPort()
	if err != nil {
		return err
	}
	if err := port.Flush(); err != nil {
		return fmt.Errorf("failed to reset input buffer: %w", err)
	}
	pc.inbox.Reset()
	return nil
}

// Name returns the binding name
func (pc *PortableSerialConnection) Name() string {
	return string(KindSerialPortable)
}

// Kind returns the transport kind
func (pc *PortableSerialConnection) Kind() Kind {
	return KindSerialPortable
}

func (pc *PortableSerialConnection) openPort() (*tarm.Port, error) {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()
	if pc.port == nil {
		return nil, comm.ErrNotConnected
	}
	return pc.port, nil
}

// tarmConfig maps the line settings onto a tarm/serial configuration
func tarmConfig(cfg *comm.PortConfig, readTick time.Duration) (*tarm.Config, error) {
	c := &tarm.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		ReadTimeout: readTick,
		Size:        byte(cfg.DataBits),
	}

	switch cfg.Parity {
	case comm.ParityNone:
		c.Parity = tarm.ParityNone
	case comm.ParityOdd:
		c.Parity = tarm.ParityOdd
	case comm.ParityEven:
		c.Parity = tarm.ParityEven
	case comm.ParityMark:
		c.Parity = tarm.ParityMark
	case comm.ParitySpace:
		c.Parity = tarm.ParitySpace
	default:
		return nil, &comm.ConfigurationError{Port: cfg.Port, Reason: fmt.Sprintf("unsupported parity %s", cfg.Parity)}
	}

	switch cfg.StopBits {
	case comm.StopBitsOne:
		c.StopBits = tarm.Stop1
	case comm.StopBitsOnePointFive:
		c.StopBits = tarm.Stop1Half
	case comm.StopBitsTwo:
		c.StopBits = tarm.Stop2
	default:
		return nil, &comm.ConfigurationError{Port: cfg.Port, Reason: fmt.Sprintf("unsupported stop bits %s", cfg.StopBits)}
	}

	return c, nil
}
