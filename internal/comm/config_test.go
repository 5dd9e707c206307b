package comm

import (
	"reflect"
	"testing"
)

func TestParseParity(t *testing.T) {
	tests := []struct {
		in      string
		want    Parity
		wantErr bool
	}{
		{"", ParityNone, false},
		{"none", ParityNone, false},
		{"Odd", ParityOdd, false},
		{"E", ParityEven, false},
		{"mark", ParityMark, false},
		{"space", ParitySpace, false},
		{"sometimes", ParityNone, true},
	}
	for _, tt := range tests {
		got, err := ParseParity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseParity(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseParity(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseStopBits(t *testing.T) {
	for in, want := range map[string]StopBits{"1": StopBitsOne, "1.5": StopBitsOnePointFive, "2": StopBitsTwo} {
		got, err := ParseStopBits(in)
		if err != nil || got != want {
			t.Errorf("ParseStopBits(%q) = %v, %v", in, got, err)
		}
		if got.String() != in {
			t.Errorf("String() = %q, want %q", got.String(), in)
		}
	}
	if _, err := ParseStopBits("3"); err == nil {
		t.Error("expected error for 3 stop bits")
	}
}

func TestParseFlowControl(t *testing.T) {
	tests := []struct {
		in   string
		want FlowControl
	}{
		{"none", FlowControlNone},
		{"rtscts", FlowControlRTSCTSIn | FlowControlRTSCTSOut},
		{"xonxoff_in|rtscts_out", FlowControlXONXOFFIn | FlowControlRTSCTSOut},
		{"XONXOFF", FlowControlXONXOFFIn | FlowControlXONXOFFOut},
	}
	for _, tt := range tests {
		got, err := ParseFlowControl(tt.in)
		if err != nil {
			t.Errorf("ParseFlowControl(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFlowControl(%q) = %v, want %v", tt.in, got, tt.want)
		}
		back, err := ParseFlowControl(got.String())
		if err != nil || back != got {
			t.Errorf("String() of %v does not parse back: %v", got, err)
		}
	}
	if _, err := ParseFlowControl("dsrdtr"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestPortConfigValidate(t *testing.T) {
	for _, rate := range ValidBaudRates {
		cfg := testPortConfig()
		cfg.BaudRate = rate
		if err := cfg.Validate(); err != nil {
			t.Errorf("baud rate %d rejected: %v", rate, err)
		}
	}

	cfg := testPortConfig()
	cfg.BaudRate = 300
	if err := cfg.Validate(); !IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}

	cfg = testPortConfig()
	cfg.DataBits = 9
	if err := cfg.Validate(); !IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestSplitPortList(t *testing.T) {
	got := SplitPortList("COM1; COM2,/dev/ttyS0\t /dev/ttyS1")
	want := []string{"COM1", "COM2", "/dev/ttyS0", "/dev/ttyS1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitPortList = %v, want %v", got, want)
	}
	if len(SplitPortList("")) != 0 {
		t.Error("empty setting must give an empty list")
	}
}

func TestHexString(t *testing.T) {
	if got := HexString([]byte{0x0F, 0xA0, 0x01}); got != "0F A0 01" {
		t.Errorf("HexString = %q", got)
	}
	if HexString(nil) != "" {
		t.Error("empty input must give an empty string")
	}
}

func TestCycles(t *testing.T) {
	tests := []struct {
		timeout, cycle, want int
	}{
		{1000, 1, 1000},
		{1000, 28, 35},
		{250, 5, 50},
		{0, 10, 0},
		{-5, 10, 0},
		{3, 10, 0},
	}
	for _, tt := range tests {
		if got := Cycles(tt.timeout, tt.cycle); got != tt.want {
			t.Errorf("Cycles(%d, %d) = %d, want %d", tt.timeout, tt.cycle, got, tt.want)
		}
	}
}

func TestMinReadTimeoutMs(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		baudRate int
		want     int
	}{
		{"queued telegram", 0, 9600, 28},
		{"8 bytes at 9600", 8, 9600, 56},
		{"64 bytes at 9600", 64, 9600, 224},
		{"64 bytes at 115200", 64, 115200, 56},
		{"unknown baud", 8, 0, 28},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinReadTimeoutMs(tt.size, tt.baudRate)
			if got != tt.want {
				t.Errorf("MinReadTimeoutMs(%d, %d) = %d, want %d", tt.size, tt.baudRate, got, tt.want)
			}
			if Cycles(got, readCycleMs+readBlockingCostMs) < 1 {
				t.Errorf("timeout %d leaves no read cycle", got)
			}
		})
	}
}
