// internal/protocol/protocol.go
package protocol

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"dataexplorer-comm/internal/comm"
)

// Kind selects a transport binding
type Kind string

const (
	KindSerial         Kind = "serial"
	KindSerialPortable Kind = "serial-portable"
	KindUSB            Kind = "usb"
	KindSimulator      Kind = "simulator"
	KindTCP            Kind = "tcp"
)

// ParseKind converts a configuration value into a Kind
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSerial, KindSerialPortable, KindUSB, KindSimulator, KindTCP:
		return k, nil
	case "":
		return KindSerial, nil
	default:
		return "", fmt.Errorf("unsupported transport kind: %s", s)
	}
}

// IsSerial reports whether the kind addresses enumerable OS serial ports
func (k Kind) IsSerial() bool {
	return k == KindSerial || k == KindSerialPortable
}

// Binding is a comm.Channel that also reports its transport statistics
type Binding interface {
	comm.Channel

	// Kind returns the transport kind
	Kind() Kind

	// Stats returns a snapshot of the transfer statistics
	Stats() ProtocolStats
}

// ProtocolStats provides protocol-level statistics
type ProtocolStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// statsRecorder is embedded by every binding
type statsRecorder struct {
	mu    sync.Mutex
	stats ProtocolStats
}

func (s *statsRecorder) recordWrite(n int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.BytesWritten += int64(n)
	s.stats.OperationCount++
	s.stats.LastActivity = time.Now()
	if s.stats.AverageLatency == 0 {
		s.stats.AverageLatency = latency
	} else {
		s.stats.AverageLatency = (s.stats.AverageLatency + latency) / 2
	}
}

func (s *statsRecorder) recordRead(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.BytesRead += int64(n)
	s.stats.OperationCount++
	s.stats.LastActivity = time.Now()
}

func (s *statsRecorder) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ErrorCount++
}

func (s *statsRecorder) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.IsConnected = connected
	if connected {
		s.stats.LastActivity = time.Now()
	}
}

// Stats returns a snapshot of the transfer statistics
func (s *statsRecorder) Stats() ProtocolStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
