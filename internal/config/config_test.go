package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dataexplorer-comm/internal/comm"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults must load without a file: %v", err)
	}
	if cfg.Port.Kind != "serial" || cfg.Port.BaudRate != 9600 || cfg.Port.ReadTick != 20*time.Millisecond {
		t.Errorf("unexpected port defaults %+v", cfg.Port)
	}
	if cfg.Acquisition.ReadMode != ReadModeStable || cfg.Acquisition.StableIndex != 20 {
		t.Errorf("unexpected acquisition defaults %+v", cfg.Acquisition)
	}
	if cfg.GetServerAddr() != "0.0.0.0:8085" {
		t.Errorf("server addr %s", cfg.GetServerAddr())
	}
	if !cfg.IsDebugEnabled() {
		t.Error("development environment enables debug")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
port:
  name: /dev/ttyACM0
  baud_rate: 115200
  parity: even
  stop_bits: "2"
  flow_control: rtscts
  white_list: "/dev/ttyACM0; /dev/ttyACM1"
  availability_check: true
acquisition:
  read_mode: timed
  timeout_ms: 500
app:
  environment: production
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pc, err := cfg.PortSettings()
	if err != nil {
		t.Fatalf("port settings: %v", err)
	}
	if pc.Port != "/dev/ttyACM0" || pc.BaudRate != 115200 || pc.Parity != comm.ParityEven || pc.StopBits != comm.StopBitsTwo {
		t.Errorf("unexpected port settings %+v", pc)
	}
	if pc.FlowControl != comm.FlowControlRTSCTSIn|comm.FlowControlRTSCTSOut {
		t.Errorf("flow control %s", pc.FlowControl)
	}

	ec := cfg.EnumeratorConfig()
	if !ec.AvailabilityCheck || len(ec.WhiteList) != 2 || ec.WhiteList[1] != "/dev/ttyACM1" {
		t.Errorf("unexpected enumerator config %+v", ec)
	}
	if !cfg.IsProduction() || cfg.IsDebugEnabled() {
		t.Error("production must not enable debug")
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	path := writeConfig(t, "port:\n  baud_rate: 19200\n")
	t.Setenv("DATAEXPLORER_COMM_PORT_BAUD_RATE", "57600")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port.BaudRate != 57600 {
		t.Errorf("baud rate %d, want env override 57600", cfg.Port.BaudRate)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := map[string]string{
		"baud rate":   "port:\n  baud_rate: 1200\n",
		"parity":      "port:\n  parity: weird\n",
		"read mode":   "acquisition:\n  read_mode: burst\n",
		"timeout":     "acquisition:\n  timeout_ms: 0\n",
		"environment": "app:\n  environment: lab\n",
		"log level":   "logging:\n  level: trace\n",
		"mqtt qos":    "mqtt:\n  qos: 3\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("an explicit missing file must fail")
	}
}
