// internal/comm/counters.go
package comm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Counters is a snapshot of the per-port fault counters
type Counters struct {
	TransferErrors int64 `json:"transfer_errors"`
	TimeoutErrors  int64 `json:"timeout_errors"`
}

type errorCounters struct {
	transfer atomic.Int64
	timeout  atomic.Int64
}

func (c *errorCounters) snapshot() Counters {
	return Counters{
		TransferErrors: c.transfer.Load(),
		TimeoutErrors:  c.timeout.Load(),
	}
}

// WaitTimes accumulates the wall-clock wait of timed reads so that drivers
// can tune their timeouts.
type WaitTimes struct {
	mu      sync.Mutex
	samples []time.Duration
}

// NewWaitTimes creates an empty accumulator
func NewWaitTimes() *WaitTimes {
	return &WaitTimes{}
}

// Add appends a sample
func (w *WaitTimes) Add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, d)
}

// Samples returns a copy of the recorded waits
func (w *WaitTimes) Samples() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]time.Duration, len(w.samples))
	copy(out, w.samples)
	return out
}

// Len returns the number of samples
func (w *WaitTimes) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// AverageMs returns the mean wait in milliseconds rounded to two places
func (w *WaitTimes) AverageMs() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, s := range w.samples {
		sum = sum.Add(durationMs(s))
	}
	return sum.Div(decimal.NewFromInt(int64(len(w.samples)))).Round(2)
}

// MaxMs returns the longest wait in milliseconds
func (w *WaitTimes) MaxMs() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	max := decimal.Zero
	for _, s := range w.samples {
		if ms := durationMs(s); ms.GreaterThan(max) {
			max = ms
		}
	}
	return max
}

// SuggestTimeoutMs returns factor times the longest observed wait, rounded up
// to whole milliseconds, or fallback when nothing was recorded yet.
func (w *WaitTimes) SuggestTimeoutMs(factor decimal.Decimal, fallback int) int {
	if w.Len() == 0 {
		return fallback
	}
	return int(w.MaxMs().Mul(factor).Ceil().IntPart())
}

func durationMs(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(d.Microseconds()).Div(decimal.NewFromInt(1000))
}
