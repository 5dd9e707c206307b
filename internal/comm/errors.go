// internal/comm/errors.go
package comm

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrNotConnected is returned by read/write entry points when the port is closed
var ErrNotConnected = errors.New("port not connected")

// ConfigurationError reports an invalid, missing or unavailable port
type ConfigurationError struct {
	Port   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("port configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("port configuration error for %q: %s", e.Port, e.Reason)
}

// PortError wraps a failure to open or parameterize the OS channel
// (port in use, unsupported setting, I/O error during open).
type PortError struct {
	Port string
	Op   string
	Err  error
}

func (e *PortError) Error() string {
	return fmt.Sprintf("port %s: %s failed: %v", e.Port, e.Op, e.Err)
}

func (e *PortError) Unwrap() error {
	return e.Err
}

// TimeoutError is raised when a budgeted wait or read did not complete.
// Expected holds the requested byte count or "*" for unbounded waits.
type TimeoutError struct {
	Expected    string
	TimeoutMs   int
	Received    int
	Partial     []byte
	FailedQuery bool
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timeout waiting for %s bytes within %d ms", e.Expected, e.TimeoutMs)
	if e.Received > 0 {
		msg += fmt.Sprintf(" (received %d)", e.Received)
	}
	if e.FailedQuery {
		msg += ", device did not answer the query"
	}
	return msg
}

func newTimeoutError(expected, timeoutMs, received int) *TimeoutError {
	return &TimeoutError{
		Expected:  strconv.Itoa(expected),
		TimeoutMs: timeoutMs,
		Received:  received,
	}
}

// OutOfSyncError signals unexpected leftover bytes between two exchanges
type OutOfSyncError struct {
	Leftover int
	Data     []byte
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("read/write out of sync, %d unexpected bytes left: %s", e.Leftover, HexString(e.Data))
}

// TransferError wraps a lower level channel fault (broken pipe, device gone)
type TransferError struct {
	Op  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is, or wraps, a *TimeoutError
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsConfiguration reports whether err is, or wraps, a *ConfigurationError
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
