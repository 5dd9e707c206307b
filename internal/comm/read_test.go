package comm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestReadCleanFixedSize(t *testing.T) {
	payload := sequence(32, 0x10)
	ch := newFakeChannel(payload)
	p, _, _ := openTestPort(t, ch)

	got, err := p.Read(make([]byte, 32), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got % X, want % X", got, payload)
	}
}

func TestReadFixedSizeInChunks(t *testing.T) {
	payload := sequence(24, 0x00)
	ch := newFakeChannel(payload[:8], payload[8:16], payload[16:])
	p, _, _ := openTestPort(t, ch)

	got, err := p.Read(make([]byte, 24), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got % X, want % X", got, payload)
	}
}

func TestReadTimeoutWithPartialData(t *testing.T) {
	partial := sequence(10, 0xA0)
	ch := newFakeChannel(partial)
	p, _, logs := openTestPort(t, ch)

	got, err := p.Read(make([]byte, 100), 200)
	if got != nil {
		t.Errorf("expected nil buffer, got %d bytes", len(got))
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !strings.Contains(err.Error(), "100") || !strings.Contains(err.Error(), "200") {
		t.Errorf("message %q should reference 100 and 200", err.Error())
	}
	if te.Received != 10 || !bytes.Equal(te.Partial, partial) {
		t.Errorf("unexpected partial context %+v", te)
	}

	entries := logs.FilterMessage("Read timed out").All()
	if len(entries) != 1 {
		t.Fatalf("expected one partial data log, got %d", len(entries))
	}
	if data := entries[0].ContextMap()["data"]; data != HexString(partial) {
		t.Errorf("logged data = %v, want %s", data, HexString(partial))
	}
}

func TestReadStableShortTelegram(t *testing.T) {
	payload := sequence(40, 0x01)
	ch := newFakeChannel(payload)
	p, sleeper, _ := openTestPort(t, ch)

	got, err := p.ReadStable(make([]byte, 64), 1000, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 40 {
		t.Fatalf("len = %d, want 40", len(got))
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got % X, want % X", got, payload)
	}
	if sleeper.count() != 6 {
		t.Errorf("polls = %d, want 6", sleeper.count())
	}
}

func TestReadStableGrowsBuffer(t *testing.T) {
	payload := sequence(40, 0x20)
	ch := newFakeChannel(payload)
	p, _, _ := openTestPort(t, ch)

	got, err := p.ReadStable(make([]byte, 16), 1000, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %d bytes, want all 40", len(got))
	}
}

func TestReadStableMinSkipsSmallPlateau(t *testing.T) {
	head := sequence(3, 0x01)
	tail := sequence(17, 0x04)
	ch := newFakeChannel(head, nil, nil, nil, tail)
	p, _, _ := openTestPort(t, ch)

	got, err := p.ReadStableMin(make([]byte, 64), 1000, 2, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("len = %d, want 20", len(got))
	}
}

func TestReadStableTimeout(t *testing.T) {
	p, _, logs := openTestPort(t, newFakeChannel())

	got, err := p.ReadStable(make([]byte, 8), 30, 5)
	if got != nil || !IsTimeout(err) {
		t.Fatalf("expected timeout without data, got %v / %v", got, err)
	}
	if logs.FilterMessage("Read timed out").Len() != 1 {
		t.Error("expected partial data log")
	}
}

func TestReadStableTimeoutLogsQueuedBytes(t *testing.T) {
	payload := []byte{0xA5, 0x01, 0x7E}
	p, _, logs := openTestPort(t, newFakeChannel(payload))

	got, err := p.ReadStableMin(make([]byte, 64), 50, 5, 10)
	var te *TimeoutError
	if got != nil || !errors.As(err, &te) {
		t.Fatalf("expected timeout, got %v / %v", got, err)
	}
	if te.Expected != "64" || te.Received != 3 || !bytes.Equal(te.Partial, payload) {
		t.Errorf("unexpected timeout error %+v", te)
	}

	entries := logs.FilterMessage("Read timed out").All()
	if len(entries) != 1 {
		t.Fatalf("expected one partial data log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["data"] != HexString(payload) || fields["received_bytes"] != int64(3) {
		t.Errorf("partial data not logged: %v", fields)
	}
}

func TestReadCheckFailedQuery(t *testing.T) {
	t.Run("fails fast on silence", func(t *testing.T) {
		p, sleeper, _ := openTestPort(t, newFakeChannel())

		_, err := p.ReadCheckFailedQuery(make([]byte, 10), 1000, true)
		var te *TimeoutError
		if !errors.As(err, &te) {
			t.Fatalf("expected timeout error, got %v", err)
		}
		if !te.FailedQuery {
			t.Error("expected failed query marker")
		}
		if sleeper.count() != 50 {
			t.Errorf("polls = %d, want 50", sleeper.count())
		}
	})

	t.Run("plain timeout without flag", func(t *testing.T) {
		p, sleeper, _ := openTestPort(t, newFakeChannel())

		_, err := p.ReadCheckFailedQuery(make([]byte, 10), 1000, false)
		var te *TimeoutError
		if !errors.As(err, &te) {
			t.Fatalf("expected timeout error, got %v", err)
		}
		if te.FailedQuery {
			t.Error("unexpected failed query marker")
		}
		if sleeper.count() != 200 {
			t.Errorf("polls = %d, want 200", sleeper.count())
		}
	})

	t.Run("completes", func(t *testing.T) {
		payload := sequence(10, 0x30)
		p, _, _ := openTestPort(t, newFakeChannel(payload[:5], payload[5:]))

		got, err := p.ReadCheckFailedQuery(make([]byte, 10), 1000, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("got % X, want % X", got, payload)
		}
	})
}

func TestReadTimedRecordsWait(t *testing.T) {
	payload := sequence(12, 0x40)
	ch := newFakeChannel(nil, nil, payload)
	p, _, _ := openTestPort(t, ch)
	waits := NewWaitTimes()

	got, err := p.ReadTimed(make([]byte, 12), 500, waits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got % X, want % X", got, payload)
	}
	if waits.Len() != 1 {
		t.Errorf("wait samples = %d, want 1", waits.Len())
	}
}

func TestReadTimedWithSuggestedTimeout(t *testing.T) {
	payload := sequence(8, 0x30)
	p, _, _ := openTestPort(t, newFakeChannel(payload))
	waits := NewWaitTimes()
	waits.Add(5 * time.Millisecond)

	timeout := waits.SuggestTimeoutMs(decimal.RequireFromString("1.5"), 2000)
	if timeout != 8 {
		t.Fatalf("suggested timeout = %d, want 8", timeout)
	}
	if floor := MinReadTimeoutMs(len(payload), p.Config().BaudRate); timeout < floor {
		timeout = floor
	}

	got, err := p.ReadTimed(make([]byte, 8), timeout, waits)
	if err != nil {
		t.Fatalf("read with %d ms: %v", timeout, err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got % X, want % X", got, payload)
	}
	if waits.Len() != 2 {
		t.Errorf("wait samples = %d, want 2", waits.Len())
	}
}

func TestReadTimedTimeoutLeavesWaitTimesUntouched(t *testing.T) {
	p, _, _ := openTestPort(t, newFakeChannel())
	waits := NewWaitTimes()

	if _, err := p.ReadTimed(make([]byte, 4), 20, waits); !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if waits.Len() != 0 {
		t.Errorf("wait samples = %d, want 0", waits.Len())
	}
}

func TestReadClearsReceiveStatus(t *testing.T) {
	status := &recordingStatus{}
	ch := newFakeChannel()
	p := NewPort(ch, testPortConfig(), testLogger(), NewPortOption().
		SetSleeper((&countingSleeper{}).sleep).
		SetStatusListener(status))
	if err := p.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := p.Read(make([]byte, 4), 10); err == nil {
		t.Fatal("expected timeout")
	}
	if len(status.receive) != 2 || !status.receive[0] || status.receive[1] {
		t.Errorf("receive signals = %v, want [true false]", status.receive)
	}
}

func TestReadRequiresConnection(t *testing.T) {
	p := NewPort(newFakeChannel(), testPortConfig(), testLogger(), nil)

	if _, err := p.Read(make([]byte, 4), 10); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := p.ReadStable(make([]byte, 4), 10, 2); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestReadWrapsTransferErrors(t *testing.T) {
	ch := newFakeChannel()
	p, _, _ := openTestPort(t, ch)
	ch.readErr = errors.New("device removed")

	_, err := p.ReadCheckFailedQuery(make([]byte, 4), 100, false)
	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("expected transfer error, got %v", err)
	}
}
