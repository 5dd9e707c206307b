// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/comm"
)

// SerialConnection is the native serial binding. go.bug.st/serial has no
// bytes-available query, so a pump goroutine moves received bytes into an
// inbox that answers Available and ReadRaw without blocking.
type SerialConnection struct {
	readTick time.Duration
	logger   *zap.Logger
	mutex    sync.Mutex
	port     serial.Port
	name     string
	inbox    *comm.Inbox
	cancel   context.CancelFunc
	pumpDone <-chan struct{}
	statsRecorder
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(readTick time.Duration, logger *zap.Logger) *SerialConnection {
	if readTick <= 0 {
		readTick = defaultReadTick
	}
	return &SerialConnection{
		readTick: readTick,
		logger:   logger.With(zap.String("protocol", string(KindSerial))),
		inbox:    comm.NewInbox(),
	}
}

// Open opens the serial port with the line settings of cfg
func (sc *SerialConnection) Open(cfg *comm.PortConfig) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.port != nil {
		return nil
	}

	mode, err := serialMode(cfg)
	if err != nil {
		return err
	}
	if cfg.FlowControl != comm.FlowControlNone {
		sc.logger.Warn("Flow control is not supported by this binding, ignoring",
			zap.String("port", cfg.Port),
			zap.Stringer("flow_control", cfg.FlowControl),
		)
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		sc.recordError()
		return mapSerialError(cfg.Port, err)
	}

	if err := port.SetReadTimeout(sc.readTick); err != nil {
		port.Close()
		return &comm.PortError{Port: cfg.Port, Op: "set read timeout", Err: err}
	}

	sc.port = port
	sc.name = cfg.Port
	sc.inbox.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	sc.cancel = cancel
	sc.pumpDone = sc.inbox.Pump(ctx, port, pumpBufferSize(cfg.DataBlockSize))
	sc.setConnected(true)

	sc.logger.Info("Serial port opened successfully", zap.String("port", cfg.Port))
	return nil
}

// Close stops the pump and releases the OS handle
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.port == nil {
		return nil
	}

	sc.cancel()
	err := sc.port.Close()
	<-sc.pumpDone

	sc.port = nil
	sc.setConnected(false)
	if err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.logger.Info("Serial port closed successfully", zap.String("port", sc.name))
	return nil
}

// Available returns the number of bytes queued by the pump
func (sc *SerialConnection) Available() (int, error) {
	return sc.inbox.Len()
}

// ReadRaw drains queued bytes into buf
func (sc *SerialConnection) ReadRaw(buf []byte) (int, error) {
	n, err := sc.inbox.Read(buf)
	if err != nil {
		sc.recordError()
		return n, err
	}
	sc.recordRead(n)
	return n, nil
}

// Write writes data to the serial port
func (sc *SerialConnection) Write(data []byte) (int, error) {
	port, err := sc.openPort()
	if err != nil {
		return 0, err
	}

	startTime := time.Now()
	n, err := port.Write(data)
	if err != nil {
		sc.recordError()
		return n, fmt.Errorf("failed to write to serial port: %w", err)
	}
	sc.recordWrite(n, time.Since(startTime))
	return n, nil
}

// Flush waits until the output buffer is transmitted
func (sc *SerialConnection) Flush() error {
	port, err := sc.openPort()
	if err != nil {
		return err
	}
	return port.Drain()
}

// ResetInput discards the OS input buffer and the inbox
func (sc *SerialConnection) ResetInput() error {
	port, err := sc.openPort()
	if err != nil {
		return err
	}
	if err := port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to reset input buffer: %w", err)
	}
	sc.inbox.Reset()
	return nil
}

// Name returns the binding name
func (sc *SerialConnection) Name() string {
	return string(KindSerial)
}

// Kind returns the transport kind
func (sc *SerialConnection) Kind() Kind {
	return KindSerial
}

func (sc *SerialConnection) openPort() (serial.Port, error) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	if sc.port == nil {
		return nil, comm.ErrNotConnected
	}
	return sc.port, nil
}

// serialMode maps the line settings onto a serial.Mode
func serialMode(cfg *comm.PortConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		InitialStatusBits: &serial.ModemOutputBits{
			RTS: cfg.RTS,
			DTR: cfg.DTR,
		},
	}

	switch cfg.Parity {
	case comm.ParityNone:
		mode.Parity = serial.NoParity
	case comm.ParityOdd:
		mode.Parity = serial.OddParity
	case comm.ParityEven:
		mode.Parity = serial.EvenParity
	case comm.ParityMark:
		mode.Parity = serial.MarkParity
	case comm.ParitySpace:
		mode.Parity = serial.SpaceParity
	default:
		return nil, &comm.ConfigurationError{Port: cfg.Port, Reason: fmt.Sprintf("unsupported parity %s", cfg.Parity)}
	}

	switch cfg.StopBits {
	case comm.StopBitsOne:
		mode.StopBits = serial.OneStopBit
	case comm.StopBitsOnePointFive:
		mode.StopBits = serial.OnePointFiveStopBits
	case comm.StopBitsTwo:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, &comm.ConfigurationError{Port: cfg.Port, Reason: fmt.Sprintf("unsupported stop bits %s", cfg.StopBits)}
	}

	return mode, nil
}

// mapSerialError classifies an open failure of go.bug.st/serial
func mapSerialError(port string, err error) error {
	var pe *serial.PortError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case serial.PortNotFound, serial.InvalidSerialPort:
			return &comm.ConfigurationError{Port: port, Reason: pe.EncodedErrorString()}
		case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits:
			return &comm.PortError{Port: port, Op: "set parameters", Err: err}
		case serial.PortBusy:
			return &comm.PortError{Port: port, Op: "open", Err: fmt.Errorf("port in use: %w", err)}
		}
	}
	return &comm.PortError{Port: port, Op: "open", Err: err}
}

func pumpBufferSize(blockSize int) int {
	if blockSize < 256 {
		return 256
	}
	return blockSize
}
