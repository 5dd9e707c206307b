// internal/comm/timing.go
package comm

import "time"

// Poll cadences of the wait and read loops, in milliseconds. Device drivers
// were tuned against these exact values.
const (
	waitCycleMs        = 1
	readCycleMs        = 10
	readBlockingCostMs = 18
	failedQueryCycleMs = 5
	stableReadCycleMs  = 4
)

// Sleeper suspends the calling goroutine for d
type Sleeper func(d time.Duration)

// Poller is the single suspension point of every polling loop
type Poller struct {
	sleep Sleeper
}

// NewPoller returns a poller using sleep, or time.Sleep when nil
func NewPoller(sleep Sleeper) *Poller {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Poller{sleep: sleep}
}

// Delay sleeps ms milliseconds; non-positive values return immediately
func (p *Poller) Delay(ms int) {
	if ms <= 0 {
		return
	}
	p.sleep(time.Duration(ms) * time.Millisecond)
}

// Cycles returns the poll budget timeoutMs / cycleMs
func Cycles(timeoutMs, cycleMs int) int {
	if cycleMs <= 0 {
		return timeoutMs
	}
	if timeoutMs <= 0 {
		return 0
	}
	return timeoutMs / cycleMs
}

// MinReadTimeoutMs is the shortest timeout a fixed-size read of size bytes
// at baudRate can succeed with: the line transfer time in read cycles plus
// one cycle, each costing a poll and a blocking read.
func MinReadTimeoutMs(size, baudRate int) int {
	transferMs := 0
	if baudRate > 0 && size > 0 {
		// start bit, 8 data bits, stop bit
		transferMs = (size*10*1000 + baudRate - 1) / baudRate
	}
	cycles := (transferMs+readCycleMs-1)/readCycleMs + 1
	return cycles * (readCycleMs + readBlockingCostMs)
}
