// internal/comm/read.go
package comm

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// Read fills buf completely. It first waits for len(buf) bytes with a fifth
// of the timeout held back, then reads in a retry loop whose budget assumes
// each attempt costs one poll cycle plus a blocking read.
func (p *Port) Read(buf []byte, timeoutMs int) ([]byte, error) {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()

	if !p.connected.Load() {
		return nil, ErrNotConnected
	}

	p.status.SetReceiveActive(true)
	defer p.status.SetReceiveActive(false)

	// a short count is left to the read loop below
	if _, err := p.wait4ByteCount(len(buf), timeoutMs-timeoutMs/5); err != nil && !IsTimeout(err) {
		return nil, err
	}
	return p.readFixed(buf, timeoutMs)
}

// ReadCheckFailedQuery fills buf polling every few milliseconds. With
// checkFailedQuery set, a read that saw no byte at all after a quarter of
// the timeout gives up early with a *TimeoutError marked FailedQuery.
func (p *Port) ReadCheckFailedQuery(buf []byte, timeoutMs int, checkFailedQuery bool) ([]byte, error) {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()

	if !p.connected.Load() {
		return nil, ErrNotConnected
	}

	p.status.SetReceiveActive(true)
	defer p.status.SetReceiveActive(false)

	expected := len(buf)
	cycles := Cycles(timeoutMs, failedQueryCycleMs)
	quarter := Cycles(timeoutMs/4, failedQueryCycleMs)
	polls := 0
	readBytes := 0
	for readBytes < expected && cycles > 0 {
		cycles--
		n, err := p.readRaw(buf[readBytes:])
		if err != nil {
			return nil, err
		}
		readBytes += n
		if readBytes >= expected {
			break
		}
		p.poller.Delay(failedQueryCycleMs)
		polls++
		if checkFailedQuery && readBytes == 0 && polls >= quarter {
			p.logger.Warn("Device did not answer query",
				zap.Int("expected_bytes", expected),
				zap.Int("timeout_ms", timeoutMs),
			)
			te := newTimeoutError(expected, timeoutMs, 0)
			te.FailedQuery = true
			return nil, te
		}
	}

	if readBytes < expected {
		return nil, p.readTimeout("failed-query", buf[:readBytes], expected, timeoutMs)
	}
	return buf, nil
}

// ReadStable reads a telegram of unknown length: the stable-buffer detector
// decides how many bytes belong to it. The returned slice has exactly the
// received length, which may be shorter or longer than buf.
func (p *Port) ReadStable(buf []byte, timeoutMs, stableIndex int) ([]byte, error) {
	return p.ReadStableMin(buf, timeoutMs, stableIndex, 0)
}

// ReadStableMin is ReadStable with a minimum byte floor for the detector
func (p *Port) ReadStableMin(buf []byte, timeoutMs, stableIndex, minCount int) ([]byte, error) {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()

	if !p.connected.Load() {
		return nil, ErrNotConnected
	}

	p.status.SetReceiveActive(true)
	defer p.status.SetReceiveActive(false)

	size, err := p.waitForStableReceiveBuffer(len(buf), timeoutMs, stableIndex, minCount)
	if err != nil {
		var te *TimeoutError
		if !errors.As(err, &te) {
			return nil, err
		}
		// the bytes seen by the detector are still queued
		partial := make([]byte, te.Received)
		n := 0
		if len(partial) > 0 {
			if n, err = p.readRaw(partial); err != nil {
				return nil, err
			}
		}
		return nil, p.readTimeout("stable", partial[:n], len(buf), timeoutMs)
	}

	if size > len(buf) {
		buf = make([]byte, size)
	}
	readBytes, err := p.readLoop(buf, size, Cycles(timeoutMs, stableReadCycleMs), stableReadCycleMs)
	if err != nil {
		return nil, err
	}
	if readBytes < size {
		return nil, p.readTimeout("stable", buf[:readBytes], size, timeoutMs)
	}
	return buf[:readBytes], nil
}

// ReadTimed is Read that additionally records in waitTimes how long the
// complete telegram took to arrive. Failed reads record nothing.
func (p *Port) ReadTimed(buf []byte, timeoutMs int, waitTimes *WaitTimes) ([]byte, error) {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()

	if !p.connected.Load() {
		return nil, ErrNotConnected
	}

	p.status.SetReceiveActive(true)
	defer p.status.SetReceiveActive(false)

	start := time.Now()
	first, err := p.wait4Bytes(timeoutMs)
	if err != nil {
		if IsTimeout(err) {
			p.logPartial("timed", buf[:0], len(buf), timeoutMs)
			return nil, newTimeoutError(len(buf), timeoutMs, 0)
		}
		return nil, err
	}
	p.logger.Debug("Device started answering", zap.Duration("first_byte", first.At.Sub(start)))

	if _, err := p.wait4ByteCount(len(buf), timeoutMs-timeoutMs/5); err != nil && !IsTimeout(err) {
		return nil, err
	}
	out, err := p.readFixed(buf, timeoutMs)
	if err != nil {
		return nil, err
	}
	if waitTimes != nil {
		waitTimes.Add(time.Since(start))
	}
	return out, nil
}

func (p *Port) readFixed(buf []byte, timeoutMs int) ([]byte, error) {
	expected := len(buf)
	readBytes, err := p.readLoop(buf, expected, Cycles(timeoutMs, readCycleMs+readBlockingCostMs), readCycleMs)
	if err != nil {
		return nil, err
	}
	if readBytes < expected {
		return nil, p.readTimeout("fixed", buf[:readBytes], expected, timeoutMs)
	}
	return buf, nil
}

// readLoop reads until want bytes are in buf or cycles attempts were made
func (p *Port) readLoop(buf []byte, want, cycles, sleepMs int) (int, error) {
	readBytes := 0
	for readBytes < want && cycles > 0 {
		cycles--
		n, err := p.readRaw(buf[readBytes:want])
		if err != nil {
			return readBytes, err
		}
		readBytes += n
		if readBytes < want {
			p.poller.Delay(sleepMs)
		}
	}
	return readBytes, nil
}

func (p *Port) readTimeout(mode string, partial []byte, expected, timeoutMs int) error {
	p.logPartial(mode, partial, expected, timeoutMs)
	te := newTimeoutError(expected, timeoutMs, len(partial))
	te.Partial = append([]byte(nil), partial...)
	return te
}

func (p *Port) logPartial(mode string, partial []byte, expected, timeoutMs int) {
	p.logger.Warn("Read timed out",
		zap.String("read_mode", mode),
		zap.Int("expected_bytes", expected),
		zap.Int("timeout_ms", timeoutMs),
		zap.Int("received_bytes", len(partial)),
		zap.String("data", HexString(partial)),
	)
}
