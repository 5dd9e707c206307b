package protocol

import (
	"testing"

	"go.bug.st/serial/enumerator"
)

func TestBridgeDescribe(t *testing.T) {
	db := NewBridgeDatabase()

	tests := []struct {
		vid, pid string
		want     string
		wantOK   bool
	}{
		{"0403", "6001", "FTDI FT232R", true},
		{"10c4", "ea60", "Silicon Labs CP210x", true},
		{"0x1A86", "0x7523", "WCH CH340", true},
		{"067B", "9999", "Prolific USB 067B:9999", true},
		{"dead", "beef", "", false},
		{"zz", "6001", "", false},
	}

	for _, tt := range tests {
		got, ok := db.Describe(tt.vid, tt.pid)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Describe(%s, %s) = %q, %v; want %q, %v", tt.vid, tt.pid, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestDescribePort(t *testing.T) {
	db := NewBridgeDatabase()

	tests := []struct {
		name    string
		details enumerator.PortDetails
		want    string
	}{
		{"native", enumerator.PortDetails{Name: "/dev/ttyS0"}, ""},
		{"product", enumerator.PortDetails{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", Product: "Charger"}, "Charger"},
		{"bridge", enumerator.PortDetails{Name: "/dev/ttyUSB1", IsUSB: true, VID: "1A86", PID: "7523"}, "WCH CH340"},
		{"unknown", enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true, VID: "1234", PID: "5678"}, "USB 1234:5678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := db.describePort(&tt.details); got != tt.want {
				t.Errorf("describePort = %q, want %q", got, tt.want)
			}
		})
	}
}
