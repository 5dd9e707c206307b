// internal/comm/channel.go
package comm

// Channel is the transport binding contract. A binding owns exactly one OS
// handle between Open and Close and must not be shared between ports.
type Channel interface {
	// Open claims the OS resource using cfg. A binding that fails after a
	// partial open releases what it acquired before returning.
	Open(cfg *PortConfig) error

	// Close releases the OS resource
	Close() error

	// Available returns the number of queued, unread input bytes without blocking
	Available() (int, error)

	// ReadRaw copies at most len(buf) queued bytes into buf without blocking
	ReadRaw(buf []byte) (int, error)

	// Write hands data to the OS output queue
	Write(data []byte) (int, error)

	// Flush waits until queued output has left the device
	Flush() error

	// ResetInput discards queued input
	ResetInput() error

	// Name identifies the channel in logs
	Name() string
}

// StatusListener receives the fire-and-forget activity signals used by
// user interfaces to show transmit/receive/connection indicators.
type StatusListener interface {
	SetTransmitActive(active bool)
	SetReceiveActive(active bool)
	SetConnected(connected bool)
}

// NopStatus ignores every signal
type NopStatus struct{}

func (NopStatus) SetTransmitActive(bool) {}
func (NopStatus) SetReceiveActive(bool)  {}
func (NopStatus) SetConnected(bool)      {}

// StatusFanout forwards each signal to every listener in order
type StatusFanout []StatusListener

func (f StatusFanout) SetTransmitActive(active bool) {
	for _, l := range f {
		l.SetTransmitActive(active)
	}
}

func (f StatusFanout) SetReceiveActive(active bool) {
	for _, l := range f {
		l.SetReceiveActive(active)
	}
}

func (f StatusFanout) SetConnected(connected bool) {
	for _, l := range f {
		l.SetConnected(connected)
	}
}
