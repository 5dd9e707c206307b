// internal/protocol/tcp_connection.go
package protocol

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"dataexplorer-comm/internal/comm"
)

// TCPConnection reaches a device behind a serial device server in raw TCP
// mode. The port identifier is the host:port address; the line settings
// are owned by the device server.
type TCPConnection struct {
	config   TCPConfig
	readTick time.Duration
	logger   *zap.Logger
	mutex    sync.Mutex
	conn     net.Conn
	address  string
	inbox    *comm.Inbox
	cancel   context.CancelFunc
	pumpDone <-chan struct{}
	statsRecorder
}

// NewTCPConnection creates a new TCP connection
func NewTCPConnection(config TCPConfig, readTick time.Duration, logger *zap.Logger) *TCPConnection {
	if readTick <= 0 {
		readTick = defaultReadTick
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	return &TCPConnection{
		config:   config,
		readTick: readTick,
		logger:   logger.With(zap.String("protocol", string(KindTCP))),
		inbox:    comm.NewInbox(),
	}
}

// Open dials the device server at cfg.Port
func (tc *TCPConnection) Open(cfg *comm.PortConfig) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.conn != nil {
		return nil
	}

	tc.logger.Info("Opening TCP connection",
		zap.String("address", cfg.Port),
		zap.Bool("tls", tc.config.TLS),
	)

	dialer := &net.Dialer{Timeout: tc.config.DialTimeout}
	if tc.config.KeepAlive {
		dialer.KeepAlive = 30 * time.Second
	}

	var conn net.Conn
	var err error
	if tc.config.TLS {
		host, _, _ := net.SplitHostPort(cfg.Port)
		conn, err = tls.DialWithDialer(dialer, "tcp", cfg.Port, &tls.Config{ServerName: host})
	} else {
		conn, err = dialer.Dial("tcp", cfg.Port)
	}
	if err != nil {
		tc.recordError()
		tc.logger.Error("Failed to open TCP connection", zap.Error(err))
		return &comm.PortError{Port: cfg.Port, Op: "dial", Err: err}
	}

	tc.conn = conn
	tc.address = cfg.Port
	tc.inbox.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	tc.cancel = cancel
	tc.pumpDone = tc.inbox.Pump(ctx, &deadlineReader{conn: conn, tick: tc.readTick}, pumpBufferSize(cfg.DataBlockSize))
	tc.setConnected(true)

	tc.logger.Info("TCP connection opened successfully", zap.String("address", cfg.Port))
	return nil
}

// Close stops the pump and closes the connection
func (tc *TCPConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.conn == nil {
		return nil
	}

	tc.cancel()
	err := tc.conn.Close()
	<-tc.pumpDone

	tc.conn = nil
	tc.setConnected(false)
	if err != nil {
		tc.logger.Error("Failed to close TCP connection", zap.Error(err))
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}

	tc.logger.Info("TCP connection closed successfully", zap.String("address", tc.address))
	return nil
}

// Available returns the number of bytes queued by the pump
func (tc *TCPConnection) Available() (int, error) {
	return tc.inbox.Len()
}

// ReadRaw drains queued bytes into buf
func (tc *TCPConnection) ReadRaw(buf []byte) (int, error) {
	n, err := tc.inbox.Read(buf)
	if err != nil {
		tc.recordError()
		return n, err
	}
	tc.recordRead(n)
	return n, nil
}

// Write writes data to the connection
func (tc *TCPConnection) Write(data []byte) (int, error) {
	conn, err := tc.openConn()
	if err != nil {
		return 0, err
	}

	startTime := time.Now()
	n, err := conn.Write(data)
	if err != nil {
		tc.recordError()
		return n, fmt.Errorf("failed to write to TCP connection: %w", err)
	}
	tc.recordWrite(n, time.Since(startTime))
	return n, nil
}

// Flush does nothing, TCP writes are handed to the kernel immediately
func (tc *TCPConnection) Flush() error {
	_, err := tc.openConn()
	return err
}

// ResetInput discards the bytes queued by the pump
func (tc *TCPConnection) ResetInput() error {
	if _, err := tc.openConn(); err != nil {
		return err
	}
	tc.inbox.Reset()
	return nil
}

// Name returns the binding name
func (tc *TCPConnection) Name() string {
	return string(KindTCP)
}

// Kind returns the transport kind
func (tc *TCPConnection) Kind() Kind {
	return KindTCP
}

func (tc *TCPConnection) openConn() (net.Conn, error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	if tc.conn == nil {
		return nil, comm.ErrNotConnected
	}
	return tc.conn, nil
}

// deadlineReader turns read deadlines into empty reads and a peer close
// into an error, matching the tick semantics of the serial pumps
type deadlineReader struct {
	conn net.Conn
	tick time.Duration
}

func (r *deadlineReader) Read(buf []byte) (int, error) {
	r.conn.SetReadDeadline(time.Now().Add(r.tick))
	n, err := r.conn.Read(buf)
	if err == nil {
		return n, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		return n, errors.New("connection closed by peer")
	}
	return n, err
}
