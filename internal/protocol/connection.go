// internal/protocol/connection.go
package protocol

import "time"

// Settings carries the binding specific configuration that is not part of
// comm.PortConfig
type Settings struct {
	// ReadTick is the read timeout of the serial receive pumps
	ReadTick  time.Duration   `json:"read_tick" mapstructure:"read_tick"`
	USB       USBConfig       `json:"usb" mapstructure:"usb"`
	Simulator SimulatorConfig `json:"simulator" mapstructure:"simulator"`
	TCP       TCPConfig       `json:"tcp" mapstructure:"tcp"`
}

// USBConfig represents USB connection configuration
type USBConfig struct {
	VendorID    string        `json:"vendor_id" mapstructure:"vendor_id"`
	ProductID   string        `json:"product_id" mapstructure:"product_id"`
	Interface   int           `json:"interface" mapstructure:"interface"`
	InEndpoint  int           `json:"in_endpoint" mapstructure:"in_endpoint"`
	OutEndpoint int           `json:"out_endpoint" mapstructure:"out_endpoint"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
}

// SimulatorConfig represents the file-based simulator configuration
type SimulatorConfig struct {
	File      string        `json:"file" mapstructure:"file"`
	ChunkSize int           `json:"chunk_size" mapstructure:"chunk_size"`
	Interval  time.Duration `json:"interval" mapstructure:"interval"`
	Loop      bool          `json:"loop" mapstructure:"loop"`
}

// TCPConfig represents a serial device server reached over TCP
type TCPConfig struct {
	DialTimeout time.Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
	KeepAlive   bool          `json:"keep_alive" mapstructure:"keep_alive"`
	TLS         bool          `json:"tls" mapstructure:"tls"`
}

const defaultReadTick = 20 * time.Millisecond
