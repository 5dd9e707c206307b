package protocol

import (
	"bytes"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"dataexplorer-comm/internal/comm"
)

func waitAvailable(t *testing.T, b Binding, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := b.Available()
		if err != nil {
			t.Fatalf("available: %v", err)
		}
		if got >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d bytes arrived", got, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTCPConnectionExchange(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 2)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		received <- buf
		conn.Write([]byte{0x01, 0x02, 0x03, 0x04})
		time.Sleep(200 * time.Millisecond)
	}()

	tc := NewTCPConnection(TCPConfig{DialTimeout: time.Second}, 10*time.Millisecond, zap.NewNop())
	cfg := &comm.PortConfig{Port: listener.Addr().String()}
	if err := tc.Open(cfg); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !tc.Stats().IsConnected {
		t.Error("stats must report connected")
	}

	if _, err := tc.Write([]byte{0x0F, 0x04}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case query := <-received:
		if !bytes.Equal(query, []byte{0x0F, 0x04}) {
			t.Errorf("server received % X", query)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("query not received")
	}

	waitAvailable(t, tc, 4)
	buf := make([]byte, 8)
	n, err := tc.ReadRaw(buf)
	if err != nil || !bytes.Equal(buf[:n], []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Errorf("read % X, %v", buf[:n], err)
	}

	if err := tc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := tc.Write([]byte{0x00}); err != comm.ErrNotConnected {
		t.Errorf("write after close: %v", err)
	}
	stats := tc.Stats()
	if stats.IsConnected || stats.BytesWritten != 2 || stats.BytesRead != 4 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestTCPConnectionDialFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	address := listener.Addr().String()
	listener.Close()

	tc := NewTCPConnection(TCPConfig{DialTimeout: 500 * time.Millisecond}, 0, zap.NewNop())
	err = tc.Open(&comm.PortConfig{Port: address})
	if _, ok := err.(*comm.PortError); !ok {
		t.Fatalf("expected port error, got %v", err)
	}
	if tc.Stats().ErrorCount != 1 {
		t.Errorf("dial failure must be counted")
	}
}
