// internal/comm/wait.go
package comm

import (
	"time"

	"go.uber.org/zap"
)

// WaitResult describes the input queue when a wait ended. Complete is false
// when the budget ran out; the wait then also returns a *TimeoutError.
type WaitResult struct {
	Available int
	Complete  bool
	At        time.Time
}

// Wait4Bytes polls every millisecond until at least one byte is queued
func (p *Port) Wait4Bytes(timeoutMs int) (WaitResult, error) {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()
	return p.wait4Bytes(timeoutMs)
}

// Wait4ByteCount polls every millisecond until numBytes are queued. On
// budget exhaustion the short count is returned along with a *TimeoutError.
func (p *Port) Wait4ByteCount(numBytes, timeoutMs int) (WaitResult, error) {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()
	return p.wait4ByteCount(numBytes, timeoutMs)
}

// WaitForStableReceiveBuffer returns the queued byte count once it stopped
// growing for stableIndex consecutive polls, or once expectedBytes arrived.
func (p *Port) WaitForStableReceiveBuffer(expectedBytes, timeoutMs, stableIndex int) (int, error) {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()
	return p.waitForStableReceiveBuffer(expectedBytes, timeoutMs, stableIndex, 0)
}

// WaitForStableReceiveBufferMin is WaitForStableReceiveBuffer where a plateau
// only counts as stable once more than minCount bytes are queued.
func (p *Port) WaitForStableReceiveBufferMin(expectedBytes, timeoutMs, stableIndex, minCount int) (int, error) {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()
	return p.waitForStableReceiveBuffer(expectedBytes, timeoutMs, stableIndex, minCount)
}

func (p *Port) wait4Bytes(timeoutMs int) (WaitResult, error) {
	cycles := Cycles(timeoutMs, waitCycleMs)
	for {
		n, err := p.available()
		if err != nil {
			return WaitResult{}, err
		}
		if n > 0 {
			return WaitResult{Available: n, Complete: true, At: time.Now()}, nil
		}
		if cycles <= 0 {
			return WaitResult{At: time.Now()}, &TimeoutError{Expected: "*", TimeoutMs: timeoutMs}
		}
		p.poller.Delay(waitCycleMs)
		cycles--
	}
}

func (p *Port) wait4ByteCount(numBytes, timeoutMs int) (WaitResult, error) {
	cycles := Cycles(timeoutMs, waitCycleMs)
	for {
		n, err := p.available()
		if err != nil {
			return WaitResult{}, err
		}
		if n >= numBytes {
			return WaitResult{Available: n, Complete: true, At: time.Now()}, nil
		}
		if cycles <= 0 {
			p.logger.Warn("Expected bytes not received in time",
				zap.Int("expected_bytes", numBytes),
				zap.Int("available_bytes", n),
				zap.Int("timeout_ms", timeoutMs),
			)
			return WaitResult{Available: n, At: time.Now()}, newTimeoutError(numBytes, timeoutMs, n)
		}
		p.poller.Delay(waitCycleMs)
		cycles--
	}
}

// waitForStableReceiveBuffer samples the queued byte count every millisecond.
// A sample equal to the previous one above floor decrements the stability
// counter, anything else resets it to stableIndex.
func (p *Port) waitForStableReceiveBuffer(expectedBytes, timeoutMs, stableIndex, floor int) (int, error) {
	if stableIndex < 1 {
		stableIndex = 1
	}
	cycles := Cycles(timeoutMs, waitCycleMs)
	if stableIndex >= cycles {
		p.logger.Warn("Stable index can not be reached within timeout",
			zap.Int("stable_index", stableIndex),
			zap.Int("timeout_ms", timeoutMs),
		)
	}

	byteCounter := 0
	stableCounter := stableIndex
	for cycles > 0 {
		p.poller.Delay(waitCycleMs)
		cycles--

		n, err := p.available()
		if err != nil {
			return 0, err
		}
		if n == byteCounter && byteCounter > floor {
			stableCounter--
		} else {
			stableCounter = stableIndex
		}
		byteCounter = n

		if stableCounter == 0 {
			p.logger.Debug("Receive buffer stable", zap.Int("bytes", byteCounter))
			return byteCounter, nil
		}
		if expectedBytes > 0 && byteCounter >= expectedBytes {
			return byteCounter, nil
		}
	}

	p.logger.Warn("Receive buffer did not become stable",
		zap.Int("expected_bytes", expectedBytes),
		zap.Int("available_bytes", byteCounter),
		zap.Int("stable_index", stableIndex),
		zap.Int("timeout_ms", timeoutMs),
	)
	return 0, newTimeoutError(expectedBytes, timeoutMs, byteCounter)
}
