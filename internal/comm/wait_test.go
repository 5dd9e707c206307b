package comm

import (
	"errors"
	"testing"
)

func TestWaitForStableReceiveBuffer(t *testing.T) {
	tests := []struct {
		name        string
		feed        [][]byte
		expected    int
		timeoutMs   int
		stableIndex int
		minCount    int
		wantBytes   int
		wantPolls   int
		wantTimeout bool
	}{
		{
			name:        "growth then plateau",
			feed:        [][]byte{make([]byte, 10), make([]byte, 10), make([]byte, 10)},
			expected:    64,
			timeoutMs:   1000,
			stableIndex: 3,
			wantBytes:   30,
			wantPolls:   6,
		},
		{
			name:        "single burst",
			feed:        [][]byte{make([]byte, 40)},
			expected:    64,
			timeoutMs:   1000,
			stableIndex: 5,
			wantBytes:   40,
			wantPolls:   6,
		},
		{
			name:        "expected size short circuits",
			feed:        [][]byte{make([]byte, 20), make([]byte, 20)},
			expected:    32,
			timeoutMs:   1000,
			stableIndex: 50,
			wantBytes:   40,
			wantPolls:   2,
		},
		{
			name:        "silence never stable",
			expected:    10,
			timeoutMs:   50,
			stableIndex: 5,
			wantPolls:   50,
			wantTimeout: true,
		},
		{
			name:        "plateau below floor ignored",
			feed:        [][]byte{make([]byte, 4), nil, nil, nil, nil, make([]byte, 20)},
			expected:    100,
			timeoutMs:   1000,
			stableIndex: 3,
			minCount:    4,
			wantBytes:   24,
			wantPolls:   9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newFakeChannel(tt.feed...)
			p, sleeper, _ := openTestPort(t, ch)

			got, err := p.WaitForStableReceiveBufferMin(tt.expected, tt.timeoutMs, tt.stableIndex, tt.minCount)
			if tt.wantTimeout {
				var te *TimeoutError
				if !errors.As(err, &te) {
					t.Fatalf("expected timeout error, got %v", err)
				}
				if got != 0 {
					t.Errorf("expected no partial success, got %d", got)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantBytes {
				t.Errorf("bytes = %d, want %d", got, tt.wantBytes)
			}
			if sleeper.count() != tt.wantPolls {
				t.Errorf("polls = %d, want %d", sleeper.count(), tt.wantPolls)
			}
		})
	}
}

func TestWaitForStableReceiveBufferWarnsOnUnreachableIndex(t *testing.T) {
	ch := newFakeChannel(make([]byte, 8))
	p, _, logs := openTestPort(t, ch)

	if _, err := p.WaitForStableReceiveBuffer(100, 10, 20); err == nil {
		t.Fatal("expected timeout")
	}
	if logs.FilterMessage("Stable index can not be reached within timeout").Len() != 1 {
		t.Error("expected a warning about the stable index")
	}
}

func TestWait4Bytes(t *testing.T) {
	ch := newFakeChannel(nil, nil, []byte{0x01, 0x02})
	p, sleeper, _ := openTestPort(t, ch)

	res, err := p.Wait4Bytes(100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Complete || res.Available != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.At.IsZero() {
		t.Error("expected arrival timestamp")
	}
	if sleeper.count() != 2 {
		t.Errorf("polls = %d, want 2", sleeper.count())
	}
}

func TestWait4BytesTimeout(t *testing.T) {
	p, sleeper, _ := openTestPort(t, newFakeChannel())

	_, err := p.Wait4Bytes(25)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if te.Expected != "*" || te.TimeoutMs != 25 {
		t.Errorf("unexpected timeout context %+v", te)
	}
	if sleeper.count() != 25 {
		t.Errorf("polls = %d, want 25", sleeper.count())
	}
}

func TestWait4ByteCountReturnsShortCount(t *testing.T) {
	ch := newFakeChannel(make([]byte, 6))
	p, _, logs := openTestPort(t, ch)

	res, err := p.Wait4ByteCount(10, 20)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if res.Complete {
		t.Error("result must not be complete")
	}
	if res.Available != 6 {
		t.Errorf("available = %d, want 6", res.Available)
	}
	if logs.FilterMessage("Expected bytes not received in time").Len() != 1 {
		t.Error("expected warning log")
	}
}

func TestWait4ByteCountComplete(t *testing.T) {
	ch := newFakeChannel(make([]byte, 4), make([]byte, 8))
	p, _, _ := openTestPort(t, ch)

	res, err := p.Wait4ByteCount(10, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Complete || res.Available != 12 {
		t.Errorf("unexpected result %+v", res)
	}
}
