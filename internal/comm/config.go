// internal/comm/config.go
package comm

import (
	"fmt"
	"strings"
)

// Parity ordinals as used by device configurations
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	case ParityMark:
		return "mark"
	case ParitySpace:
		return "space"
	default:
		return fmt.Sprintf("parity(%d)", int(p))
	}
}

// ParseParity accepts the names produced by String
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n":
		return ParityNone, nil
	case "odd", "o":
		return ParityOdd, nil
	case "even", "e":
		return ParityEven, nil
	case "mark", "m":
		return ParityMark, nil
	case "space", "s":
		return ParitySpace, nil
	default:
		return ParityNone, fmt.Errorf("invalid parity: %s", s)
	}
}

// StopBits ordinals
type StopBits int

const (
	StopBitsOne StopBits = iota
	StopBitsOnePointFive
	StopBitsTwo
)

func (s StopBits) String() string {
	switch s {
	case StopBitsOne:
		return "1"
	case StopBitsOnePointFive:
		return "1.5"
	case StopBitsTwo:
		return "2"
	default:
		return fmt.Sprintf("stopbits(%d)", int(s))
	}
}

// ParseStopBits accepts "1", "1.5" and "2"
func ParseStopBits(s string) (StopBits, error) {
	switch strings.TrimSpace(s) {
	case "", "1":
		return StopBitsOne, nil
	case "1.5":
		return StopBitsOnePointFive, nil
	case "2":
		return StopBitsTwo, nil
	default:
		return StopBitsOne, fmt.Errorf("invalid stop bits: %s", s)
	}
}

// FlowControl is a bit set of the handshake modes
type FlowControl int

const (
	FlowControlNone       FlowControl = 0
	FlowControlRTSCTSIn   FlowControl = 1
	FlowControlRTSCTSOut  FlowControl = 2
	FlowControlXONXOFFIn  FlowControl = 4
	FlowControlXONXOFFOut FlowControl = 8
)

func (f FlowControl) String() string {
	if f == FlowControlNone {
		return "none"
	}
	var parts []string
	if f&FlowControlRTSCTSIn != 0 {
		parts = append(parts, "rtscts_in")
	}
	if f&FlowControlRTSCTSOut != 0 {
		parts = append(parts, "rtscts_out")
	}
	if f&FlowControlXONXOFFIn != 0 {
		parts = append(parts, "xonxoff_in")
	}
	if f&FlowControlXONXOFFOut != 0 {
		parts = append(parts, "xonxoff_out")
	}
	return strings.Join(parts, "|")
}

// ParseFlowControl accepts "none", "rtscts", "xonxoff" or a '|' separated
// list of the directional names produced by String.
func ParseFlowControl(s string) (FlowControl, error) {
	var fc FlowControl
	for _, part := range strings.Split(strings.ToLower(s), "|") {
		switch strings.TrimSpace(part) {
		case "", "none":
		case "rtscts":
			fc |= FlowControlRTSCTSIn | FlowControlRTSCTSOut
		case "rtscts_in":
			fc |= FlowControlRTSCTSIn
		case "rtscts_out":
			fc |= FlowControlRTSCTSOut
		case "xonxoff":
			fc |= FlowControlXONXOFFIn | FlowControlXONXOFFOut
		case "xonxoff_in":
			fc |= FlowControlXONXOFFIn
		case "xonxoff_out":
			fc |= FlowControlXONXOFFOut
		default:
			return FlowControlNone, fmt.Errorf("invalid flow control: %s", part)
		}
	}
	return fc, nil
}

// ValidBaudRates is the fixed set of rates device configurations may use
var ValidBaudRates = []int{2400, 4800, 7200, 9600, 14400, 19200, 28800, 38400, 57600, 115200, 128000, 230400}

// MinPortNameLength is the shortest identifier accepted as a serial port (e.g. "COM1")
const MinPortNameLength = 4

// PortConfig describes one port session. It is read once when the port is
// opened and never mutated by this package.
type PortConfig struct {
	Port          string      `json:"port" mapstructure:"port"`
	BaudRate      int         `json:"baud_rate" mapstructure:"baud_rate"`
	DataBits      int         `json:"data_bits" mapstructure:"data_bits"`
	StopBits      StopBits    `json:"stop_bits" mapstructure:"-"`
	Parity        Parity      `json:"parity" mapstructure:"-"`
	FlowControl   FlowControl `json:"flow_control" mapstructure:"-"`
	RTS           bool        `json:"rts" mapstructure:"rts"`
	DTR           bool        `json:"dtr" mapstructure:"dtr"`
	DataBlockSize int         `json:"data_block_size" mapstructure:"data_block_size"`
}

// Validate checks the line settings; the port identifier is checked by the
// enumerator because only serial bindings need it.
func (c *PortConfig) Validate() error {
	if !IsValidBaudRate(c.BaudRate) {
		return &ConfigurationError{Port: c.Port, Reason: fmt.Sprintf("unsupported baud rate %d", c.BaudRate)}
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return &ConfigurationError{Port: c.Port, Reason: fmt.Sprintf("unsupported data bits %d", c.DataBits)}
	}
	if c.DataBlockSize < 0 {
		return &ConfigurationError{Port: c.Port, Reason: "negative data block size"}
	}
	return nil
}

// IsValidBaudRate reports whether rate is in ValidBaudRates
func IsValidBaudRate(rate int) bool {
	for _, r := range ValidBaudRates {
		if r == rate {
			return true
		}
	}
	return false
}

// SplitPortList splits a black/white list setting separated by ';', ',' or blanks
func SplitPortList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ',' || r == ' ' || r == '\t'
	})
}
