// internal/comm/port.go
package comm

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// PortOption carries the collaborators injected into a Port
type PortOption struct {
	sleeper       Sleeper
	status        StatusListener
	enumerator    *Enumerator
	chooser       Chooser
	onPortChanged func(port string)
}

// NewPortOption returns options with real sleeping and no status listener
func NewPortOption() *PortOption {
	return &PortOption{}
}

// SetSleeper replaces the poll loop suspension, mainly for tests
func (o *PortOption) SetSleeper(s Sleeper) *PortOption {
	o.sleeper = s
	return o
}

// SetStatusListener sets the receiver of transmit/receive/connected signals
func (o *PortOption) SetStatusListener(l StatusListener) *PortOption {
	o.status = l
	return o
}

// SetEnumerator enables port identifier validation on Open. Only serial
// bindings have enumerable ports.
func (o *PortOption) SetEnumerator(e *Enumerator) *PortOption {
	o.enumerator = e
	return o
}

// SetChooser sets the callback consulted before substituting the single
// available port for an invalid configured one.
func (o *PortOption) SetChooser(c Chooser) *PortOption {
	o.chooser = c
	return o
}

// SetPortChangedHandler is called with the substituted port so that the
// caller can persist it.
func (o *PortOption) SetPortChangedHandler(f func(port string)) *PortOption {
	o.onPortChanged = f
	return o
}

// Port drives one transport binding: it owns the open/close lifecycle,
// serializes read and write entry points and implements the polling wait
// and framed read protocol on top of the binding's raw primitives.
type Port struct {
	channel       Channel
	config        PortConfig
	active        PortConfig
	logger        *zap.Logger
	poller        *Poller
	status        StatusListener
	enumerator    *Enumerator
	chooser       Chooser
	onPortChanged func(port string)

	counters    errorCounters
	ioMu        sync.Mutex
	connected   atomic.Bool
	interrupted atomic.Bool

	closeMu   sync.Mutex
	closeDone chan struct{}
}

// NewPort creates a closed port for channel configured by config
func NewPort(channel Channel, config PortConfig, logger *zap.Logger, option *PortOption) *Port {
	if option == nil {
		option = NewPortOption()
	}
	status := option.status
	if status == nil {
		status = NopStatus{}
	}
	return &Port{
		channel:       channel,
		config:        config,
		active:        config,
		logger:        logger.With(zap.String("component", "comm-port"), zap.String("channel", channel.Name())),
		poller:        NewPoller(option.sleeper),
		status:        status,
		enumerator:    option.enumerator,
		chooser:       option.chooser,
		onPortChanged: option.onPortChanged,
	}
}

// Open validates the configuration and opens the channel. It is a no-op
// when the port is already connected.
func (p *Port) Open(ctx context.Context) error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()

	if p.connected.Load() {
		return nil
	}

	// a previous close may still be releasing the handle
	if p.closeDone != nil {
		select {
		case <-p.closeDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := p.config
	if err := cfg.Validate(); err != nil {
		p.logger.Error("Invalid port configuration", zap.Error(err))
		return err
	}

	if p.enumerator != nil {
		name, err := p.enumerator.ResolvePort(cfg.Port, p.chooser)
		if err != nil {
			p.logger.Error("Configured port is not usable", zap.String("port", cfg.Port), zap.Error(err))
			return err
		}
		if name != cfg.Port {
			// later opens start from the accepted substitute
			cfg.Port = name
			p.config.Port = name
			if p.onPortChanged != nil {
				p.onPortChanged(name)
			}
		}
	}

	p.logger.Info("Opening port",
		zap.String("port", cfg.Port),
		zap.Int("baud_rate", cfg.BaudRate),
		zap.Int("data_bits", cfg.DataBits),
		zap.Stringer("stop_bits", cfg.StopBits),
		zap.Stringer("parity", cfg.Parity),
		zap.Stringer("flow_control", cfg.FlowControl),
	)

	if err := p.channel.Open(&cfg); err != nil {
		var pe *PortError
		var ce *ConfigurationError
		if !errors.As(err, &pe) && !errors.As(err, &ce) {
			err = &PortError{Port: cfg.Port, Op: "open", Err: err}
		}
		p.logger.Error("Failed to open port", zap.String("port", cfg.Port), zap.Error(err))
		return err
	}

	if err := p.channel.ResetInput(); err != nil {
		if cerr := p.channel.Close(); cerr != nil {
			p.logger.Warn("Failed to close port after open error", zap.Error(cerr))
		}
		return &PortError{Port: cfg.Port, Op: "reset input", Err: err}
	}

	p.active = cfg
	p.closeDone = nil
	p.interrupted.Store(false)
	p.connected.Store(true)
	p.status.SetConnected(true)

	p.logger.Info("Port opened successfully", zap.String("port", cfg.Port))
	return nil
}

// Close marks the port disconnected and releases the channel in the
// background: queued input is drained, output flushed and the OS handle
// closed. The returned channel is closed once the release finished.
// Calling Close again returns the same signal without a second release.
func (p *Port) Close() <-chan struct{} {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()

	if !p.connected.Load() {
		if p.closeDone != nil {
			return p.closeDone
		}
		done := make(chan struct{})
		close(done)
		return done
	}

	p.connected.Store(false)
	p.status.SetConnected(false)

	done := make(chan struct{})
	p.closeDone = done
	go p.release(done)
	return done
}

func (p *Port) release(done chan struct{}) {
	defer close(done)

	// wait for an in-flight exchange
	p.ioMu.Lock()
	defer p.ioMu.Unlock()

	if n, err := p.channel.Available(); err == nil && n > 0 {
		leftover := make([]byte, n)
		read, _ := p.channel.ReadRaw(leftover)
		p.logger.Debug("Drained input on close", zap.String("data", HexString(leftover[:read])))
	}
	if err := p.channel.Flush(); err != nil {
		p.logger.Warn("Failed to flush output on close", zap.Error(err))
	}
	if err := p.channel.Close(); err != nil {
		p.logger.Warn("Failed to close port", zap.Error(err))
		return
	}
	p.logger.Info("Port closed", zap.String("port", p.active.Port))
}

// IsConnected reports whether the port is open. It turns false as soon as
// Close is called, before the handle is released.
func (p *Port) IsConnected() bool {
	return p.connected.Load()
}

// Name returns the identifier of the opened (or configured) port
func (p *Port) Name() string {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.active.Port
}

// Config returns the configuration the port was opened with
func (p *Port) Config() PortConfig {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.active
}

// IsInterruptedByUser is the advisory cancellation flag drivers check
// between telegram exchanges; in-flight reads are not aborted by it.
func (p *Port) IsInterruptedByUser() bool {
	return p.interrupted.Load()
}

// SetInterruptedByUser sets the advisory cancellation flag
func (p *Port) SetInterruptedByUser(interrupted bool) {
	p.interrupted.Store(interrupted)
}

// AddTransferError increments the transfer error counter
func (p *Port) AddTransferError() {
	p.counters.transfer.Add(1)
}

// AddTimeoutError increments the timeout error counter
func (p *Port) AddTimeoutError() {
	p.counters.timeout.Add(1)
}

// Counters returns the current fault counters
func (p *Port) Counters() Counters {
	return p.counters.snapshot()
}

// Write clears stale input, writes data and flushes it to the device
func (p *Port) Write(data []byte) error {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()

	if !p.connected.Load() {
		return ErrNotConnected
	}

	p.status.SetTransmitActive(true)
	defer p.status.SetTransmitActive(false)

	if err := p.clearInput(); err != nil {
		return err
	}
	if err := p.writeAll(data); err != nil {
		p.logger.Error("Write failed", zap.Error(err), zap.String("data", HexString(data)))
		return err
	}
	if err := p.channel.Flush(); err != nil {
		return &TransferError{Op: "flush", Err: err}
	}

	p.logger.Debug("Data written", zap.Int("bytes", len(data)), zap.String("data", HexString(data)))
	return nil
}

// WriteGap writes data one byte at a time with gapMs between bytes, for
// devices whose UART cannot take a full burst.
func (p *Port) WriteGap(data []byte, gapMs int) error {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()

	if !p.connected.Load() {
		return ErrNotConnected
	}

	p.status.SetTransmitActive(true)
	defer p.status.SetTransmitActive(false)

	if err := p.clearInput(); err != nil {
		return err
	}
	for i := range data {
		if err := p.writeAll(data[i : i+1]); err != nil {
			p.logger.Error("Write failed", zap.Error(err), zap.Int("written_bytes", i), zap.String("data", HexString(data)))
			return err
		}
		if err := p.channel.Flush(); err != nil {
			return &TransferError{Op: "flush", Err: err}
		}
		if i < len(data)-1 {
			p.poller.Delay(gapMs)
		}
	}

	p.logger.Debug("Data written with byte gap",
		zap.Int("bytes", len(data)),
		zap.Int("gap_ms", gapMs),
		zap.String("data", HexString(data)),
	)
	return nil
}

// AvailableBytes returns the number of queued input bytes without blocking
func (p *Port) AvailableBytes() (int, error) {
	return p.available()
}

// ReadRaw is a single non-blocking read of whatever is queued, up to len(buf)
func (p *Port) ReadRaw(buf []byte) (int, error) {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()

	if !p.connected.Load() {
		return 0, ErrNotConnected
	}
	return p.readRaw(buf)
}

// ClearInput discards every queued input byte
func (p *Port) ClearInput() error {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()

	if !p.connected.Load() {
		return ErrNotConnected
	}
	return p.clearInput()
}

// CheckForLeftOverBytes fails with *OutOfSyncError when input is queued
// although the previous exchange was complete. The leftover bytes are consumed.
func (p *Port) CheckForLeftOverBytes() error {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()

	if !p.connected.Load() {
		return ErrNotConnected
	}

	n, err := p.available()
	if err != nil || n == 0 {
		return err
	}
	leftover := make([]byte, n)
	read, err := p.readRaw(leftover)
	if err != nil {
		return err
	}
	leftover = leftover[:read]
	p.logger.Warn("Unexpected bytes left in input", zap.Int("bytes", read), zap.String("data", HexString(leftover)))
	return &OutOfSyncError{Leftover: read, Data: leftover}
}

func (p *Port) available() (int, error) {
	n, err := p.channel.Available()
	if err != nil {
		return 0, wrapTransfer("available", err)
	}
	return n, nil
}

func (p *Port) readRaw(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n, err := p.channel.ReadRaw(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, wrapTransfer("read", err)
	}
	return n, nil
}

func (p *Port) writeAll(data []byte) error {
	for len(data) > 0 {
		n, err := p.channel.Write(data)
		if err != nil {
			return wrapTransfer("write", err)
		}
		if n == 0 {
			return &TransferError{Op: "write", Err: io.ErrShortWrite}
		}
		data = data[n:]
	}
	return nil
}

func (p *Port) clearInput() error {
	n, err := p.available()
	if err != nil {
		return err
	}
	if n > 0 {
		stale := make([]byte, n)
		read, _ := p.readRaw(stale)
		p.logger.Debug("Discarding stale input", zap.Int("bytes", read), zap.String("data", HexString(stale[:read])))
	}
	if err := p.channel.ResetInput(); err != nil {
		return &TransferError{Op: "reset input", Err: err}
	}
	return nil
}

func wrapTransfer(op string, err error) error {
	var te *TransferError
	if errors.As(err, &te) {
		return err
	}
	return &TransferError{Op: op, Err: err}
}
