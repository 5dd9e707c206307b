// internal/comm/inbox.go
package comm

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Inbox is the receive queue behind bindings whose library offers no
// byte-available query. A pump goroutine fills it; Available and ReadRaw
// drain it without blocking.
type Inbox struct {
	mu  sync.Mutex
	buf []byte
	err error
}

// NewInbox creates an empty inbox
func NewInbox() *Inbox {
	return &Inbox{}
}

// Write appends received bytes
func (ib *Inbox) Write(p []byte) (int, error) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.buf = append(ib.buf, p...)
	return len(p), nil
}

// Len returns the number of queued bytes and the pump error, if any.
// The error is only reported once the queue is empty.
func (ib *Inbox) Len() (int, error) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if len(ib.buf) == 0 && ib.err != nil {
		return 0, ib.err
	}
	return len(ib.buf), nil
}

// Read moves up to len(p) queued bytes into p
func (ib *Inbox) Read(p []byte) (int, error) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if len(ib.buf) == 0 {
		return 0, ib.err
	}
	n := copy(p, ib.buf)
	ib.buf = ib.buf[n:]
	if len(ib.buf) == 0 {
		ib.buf = nil
	}
	return n, nil
}

// Reset drops queued bytes and clears the pump error
func (ib *Inbox) Reset() {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.buf = nil
	ib.err = nil
}

// Fail records a terminal pump error
func (ib *Inbox) Fail(err error) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.err = err
}

// Pump copies from r into ib until ctx is done or r fails. Reads returning
// zero bytes or io.EOF are treated as read-timeout ticks. The returned
// channel is closed when the pump exits.
func (ib *Inbox) Pump(ctx context.Context, r io.Reader, bufSize int) <-chan struct{} {
	if bufSize <= 0 {
		bufSize = 1024
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, bufSize)
		for {
			if ctx.Err() != nil {
				return
			}
			n, err := r.Read(buf)
			if n > 0 {
				ib.Write(buf[:n])
			}
			if err != nil && !errors.Is(err, io.EOF) {
				if ctx.Err() == nil {
					ib.Fail(&TransferError{Op: "receive", Err: err})
				}
				return
			}
		}
	}()
	return done
}
