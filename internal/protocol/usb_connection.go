// internal/protocol/usb_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/comm"
)

// usbPollSteps divides an asynchronous transfer timeout into poll increments
const usbPollSteps = 100

// TransferListener receives the outcome of an asynchronous transfer
type TransferListener func(n int, err error)

// USBConnection is the USB bulk binding. The configured IN endpoint feeds
// the channel inbox; ReadSync/WriteSync and ReadAsync/WriteAsync address
// arbitrary endpoints of the claimed interface.
type USBConnection struct {
	config   USBConfig
	logger   *zap.Logger
	poller   *comm.Poller
	mutex    sync.Mutex
	ctx      *gousb.Context
	device   *gousb.Device
	usbCfg   *gousb.Config
	intf     *gousb.Interface
	outEndpt *gousb.OutEndpoint
	inEndpt  *gousb.InEndpoint
	inbox    *comm.Inbox
	cancel   context.CancelFunc
	pumpDone <-chan struct{}
	statsRecorder
}

// NewUSBConnection creates a new USB connection
func NewUSBConnection(config USBConfig, logger *zap.Logger) *USBConnection {
	if config.Timeout <= 0 {
		config.Timeout = time.Second
	}
	return &USBConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", string(KindUSB)),
			zap.String("vendor_id", config.VendorID),
			zap.String("product_id", config.ProductID),
		),
		poller: comm.NewPoller(nil),
		inbox:  comm.NewInbox(),
	}
}

// Open finds the device, claims the configured interface and starts the
// receive pump. The line settings of cfg do not apply to USB.
func (uc *USBConnection) Open(cfg *comm.PortConfig) error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.device != nil {
		return nil
	}

	uc.logger.Info("Opening USB connection",
		zap.String("vendor_id", uc.config.VendorID),
		zap.String("product_id", uc.config.ProductID),
		zap.Int("interface", uc.config.Interface),
	)

	vendorID, err := parseHexID(uc.config.VendorID)
	if err != nil {
		return &comm.ConfigurationError{Port: uc.config.VendorID, Reason: fmt.Sprintf("invalid vendor ID: %v", err)}
	}
	productID, err := parseHexID(uc.config.ProductID)
	if err != nil {
		return &comm.ConfigurationError{Port: uc.config.ProductID, Reason: fmt.Sprintf("invalid product ID: %v", err)}
	}

	uc.ctx = gousb.NewContext()

	device, err := uc.findAndOpenDevice(vendorID, productID)
	if err != nil {
		uc.release()
		return err
	}
	uc.device = device

	if err := uc.claimInterface(); err != nil {
		uc.release()
		return err
	}

	inEndpt, err := uc.intf.InEndpoint(uc.config.InEndpoint)
	if err != nil {
		uc.release()
		return &comm.ConfigurationError{Port: uc.deviceName(), Reason: fmt.Sprintf("no IN endpoint %d: %v", uc.config.InEndpoint, err)}
	}
	outEndpt, err := uc.intf.OutEndpoint(uc.config.OutEndpoint)
	if err != nil {
		uc.release()
		return &comm.ConfigurationError{Port: uc.deviceName(), Reason: fmt.Sprintf("no OUT endpoint %d: %v", uc.config.OutEndpoint, err)}
	}
	uc.inEndpt = inEndpt
	uc.outEndpt = outEndpt

	uc.inbox.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	uc.cancel = cancel
	reader := &usbPumpReader{endpoint: inEndpt, tick: defaultReadTick}
	uc.pumpDone = uc.inbox.Pump(ctx, reader, inEndpt.Desc.MaxPacketSize*8)
	uc.setConnected(true)

	uc.logger.Info("USB connection opened successfully",
		zap.Int("in_endpoint", uc.config.InEndpoint),
		zap.Int("out_endpoint", uc.config.OutEndpoint),
		zap.Int("max_packet_size", inEndpt.Desc.MaxPacketSize),
	)
	return nil
}

// Close stops the pump, releases the interface and closes the device
func (uc *USBConnection) Close() error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.device == nil {
		return nil
	}

	if uc.cancel != nil {
		uc.cancel()
		<-uc.pumpDone
		uc.cancel = nil
	}
	uc.release()
	uc.setConnected(false)

	uc.logger.Info("USB connection closed successfully")
	return nil
}

// Available returns the number of bytes queued by the pump
func (uc *USBConnection) Available() (int, error) {
	return uc.inbox.Len()
}

// ReadRaw drains queued bytes into buf
func (uc *USBConnection) ReadRaw(buf []byte) (int, error) {
	n, err := uc.inbox.Read(buf)
	if err != nil {
		uc.recordError()
		return n, err
	}
	uc.recordRead(n)
	return n, nil
}

// Write writes data to the configured OUT endpoint
func (uc *USBConnection) Write(data []byte) (int, error) {
	uc.mutex.Lock()
	endpt := uc.outEndpt
	uc.mutex.Unlock()
	if endpt == nil {
		return 0, comm.ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), uc.config.Timeout)
	defer cancel()

	startTime := time.Now()
	n, err := endpt.WriteContext(ctx, data)
	if err != nil {
		uc.recordError()
		return n, fmt.Errorf("failed to write to USB device: %w", err)
	}
	uc.recordWrite(n, time.Since(startTime))
	return n, nil
}

// Flush is a no-op, bulk writes complete synchronously
func (uc *USBConnection) Flush() error {
	return nil
}

// ResetInput discards queued input
func (uc *USBConnection) ResetInput() error {
	uc.inbox.Reset()
	return nil
}

// Name returns the binding name
func (uc *USBConnection) Name() string {
	return string(KindUSB)
}

// Kind returns the transport kind
func (uc *USBConnection) Kind() Kind {
	return KindUSB
}

// ReadSync performs a synchronous bulk read from the IN endpoint number
func (uc *USBConnection) ReadSync(endpoint int, buf []byte, timeoutMs int) (int, error) {
	ep, err := uc.inEndpoint(endpoint)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	n, err := ep.ReadContext(ctx, buf)
	if err != nil {
		if isTransferTimeout(err) {
			return n, &comm.TimeoutError{Expected: strconv.Itoa(len(buf)), TimeoutMs: timeoutMs, Received: n, Partial: buf[:n]}
		}
		uc.recordError()
		return n, &comm.TransferError{Op: "usb read", Err: err}
	}
	uc.recordRead(n)
	return n, nil
}

// WriteSync performs a synchronous bulk write to the OUT endpoint number
func (uc *USBConnection) WriteSync(endpoint int, data []byte, timeoutMs int) (int, error) {
	ep, err := uc.outEndpoint(endpoint)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	startTime := time.Now()
	n, err := ep.WriteContext(ctx, data)
	if err != nil {
		if isTransferTimeout(err) {
			return n, &comm.TimeoutError{Expected: strconv.Itoa(len(data)), TimeoutMs: timeoutMs, Received: n}
		}
		uc.recordError()
		return n, &comm.TransferError{Op: "usb write", Err: err}
	}
	uc.recordWrite(n, time.Since(startTime))
	return n, nil
}

// ReadAsync submits a bulk read and polls its completion every
// timeoutMs/100 milliseconds. The listener is called with the outcome,
// a transfer still pending after the budget is cancelled.
func (uc *USBConnection) ReadAsync(endpoint int, buf []byte, timeoutMs int, listener TransferListener) (int, error) {
	ep, err := uc.inEndpoint(endpoint)
	if err != nil {
		return 0, err
	}
	n, err := uc.awaitTransfer("usb read", len(buf), timeoutMs, listener, func(ctx context.Context) (int, error) {
		return ep.ReadContext(ctx, buf)
	})
	if err == nil {
		uc.recordRead(n)
	}
	return n, err
}

// WriteAsync submits a bulk write and polls its completion like ReadAsync
func (uc *USBConnection) WriteAsync(endpoint int, data []byte, timeoutMs int, listener TransferListener) (int, error) {
	ep, err := uc.outEndpoint(endpoint)
	if err != nil {
		return 0, err
	}
	startTime := time.Now()
	n, err := uc.awaitTransfer("usb write", len(data), timeoutMs, listener, func(ctx context.Context) (int, error) {
		return ep.WriteContext(ctx, data)
	})
	if err == nil {
		uc.recordWrite(n, time.Since(startTime))
	}
	return n, err
}

type transferResult struct {
	n   int
	err error
}

func (uc *USBConnection) awaitTransfer(op string, size, timeoutMs int, listener TransferListener, transfer func(ctx context.Context) (int, error)) (int, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var completed atomic.Bool
	results := make(chan transferResult, 1)
	go func() {
		n, err := transfer(ctx)
		completed.Store(true)
		results <- transferResult{n: n, err: err}
	}()

	step, polls := asyncPollBudget(timeoutMs)
	for i := 0; i < polls && !completed.Load(); i++ {
		uc.poller.Delay(step)
	}

	timedOut := !completed.Load()
	if timedOut {
		cancel()
	}
	res := <-results
	switch {
	case res.err == nil:
	case timedOut || isTransferTimeout(res.err):
		uc.logger.Warn("Asynchronous USB transfer timed out", zap.String("op", op), zap.Int("timeout_ms", timeoutMs))
		res.err = &comm.TimeoutError{Expected: strconv.Itoa(size), TimeoutMs: timeoutMs, Received: res.n}
	default:
		uc.recordError()
		res.err = &comm.TransferError{Op: op, Err: res.err}
	}

	if listener != nil {
		listener(res.n, res.err)
	}
	return res.n, res.err
}

// asyncPollBudget splits timeoutMs into usbPollSteps increments, or into
// 1 ms increments when the timeout is shorter than that.
func asyncPollBudget(timeoutMs int) (stepMs, polls int) {
	if timeoutMs < usbPollSteps {
		if timeoutMs < 1 {
			return 1, 1
		}
		return 1, timeoutMs
	}
	return timeoutMs / usbPollSteps, usbPollSteps
}

func (uc *USBConnection) inEndpoint(num int) (*gousb.InEndpoint, error) {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()
	if uc.intf == nil {
		return nil, comm.ErrNotConnected
	}
	return uc.intf.InEndpoint(num)
}

func (uc *USBConnection) outEndpoint(num int) (*gousb.OutEndpoint, error) {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()
	if uc.intf == nil {
		return nil, comm.ErrNotConnected
	}
	return uc.intf.OutEndpoint(num)
}

// findAndOpenDevice walks every bus and hub for the vendor and product ID
func (uc *USBConnection) findAndOpenDevice(vendorID, productID gousb.ID) (*gousb.Device, error) {
	devices, err := uc.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != vendorID || desc.Product != productID {
			return false
		}
		uc.logger.Debug("USB device found",
			zap.Int("bus", desc.Bus),
			zap.Ints("path", desc.Path),
			zap.Int("address", desc.Address),
		)
		return true
	})
	if err != nil && len(devices) == 0 {
		return nil, &comm.PortError{Port: uc.deviceID(), Op: "enumerate", Err: err}
	}

	if len(devices) == 0 {
		return nil, &comm.ConfigurationError{Port: uc.deviceID(), Reason: "USB device not found"}
	}

	if len(devices) > 1 {
		for i := 1; i < len(devices); i++ {
			devices[i].Close()
		}
		uc.logger.Warn("Multiple matching USB devices found, using first one")
	}

	return devices[0], nil
}

// claimInterface claims the configured interface of the active
// configuration; on Unix-like systems a bound kernel driver is detached.
func (uc *USBConnection) claimInterface() error {
	if forceClaim(runtime.GOOS) {
		if err := uc.device.SetAutoDetach(true); err != nil {
			uc.logger.Warn("Kernel driver auto detach not available", zap.Error(err))
		}
	}

	num, err := uc.device.ActiveConfigNum()
	if err != nil {
		return &comm.PortError{Port: uc.deviceName(), Op: "read active configuration", Err: err}
	}
	usbCfg, err := uc.device.Config(num)
	if err != nil {
		return &comm.PortError{Port: uc.deviceName(), Op: "claim configuration", Err: err}
	}
	uc.usbCfg = usbCfg

	intf, err := usbCfg.Interface(uc.config.Interface, 0)
	if err != nil {
		return &comm.PortError{Port: uc.deviceName(), Op: "claim interface", Err: err}
	}
	uc.intf = intf
	return nil
}

// release closes whatever Open acquired, in reverse order
func (uc *USBConnection) release() {
	if uc.intf != nil {
		uc.intf.Close()
		uc.intf = nil
	}
	if uc.usbCfg != nil {
		if err := uc.usbCfg.Close(); err != nil {
			uc.logger.Warn("Failed to release USB configuration", zap.Error(err))
		}
		uc.usbCfg = nil
	}
	if uc.device != nil {
		if err := uc.device.Close(); err != nil {
			uc.logger.Warn("Failed to close USB device", zap.Error(err))
		}
		uc.device = nil
	}
	if uc.ctx != nil {
		uc.ctx.Close()
		uc.ctx = nil
	}
	uc.inEndpt = nil
	uc.outEndpt = nil
}

func (uc *USBConnection) deviceID() string {
	return uc.config.VendorID + ":" + uc.config.ProductID
}

func (uc *USBConnection) deviceName() string {
	if uc.device == nil {
		return uc.deviceID()
	}
	return uc.device.String()
}

// usbPumpReader adapts an IN endpoint to the inbox pump; a transfer that
// times out within tick is reported as an idle read.
type usbPumpReader struct {
	endpoint *gousb.InEndpoint
	tick     time.Duration
}

func (r *usbPumpReader) Read(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.tick)
	defer cancel()
	n, err := r.endpoint.ReadContext(ctx, p)
	if err != nil && isTransferTimeout(err) {
		return n, io.EOF
	}
	return n, err
}

func isTransferTimeout(err error) bool {
	return errors.Is(err, gousb.TransferTimedOut) ||
		errors.Is(err, gousb.TransferCancelled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// forceClaim reports whether the platform needs the kernel driver detached
func forceClaim(goos string) bool {
	switch goos {
	case "linux", "darwin", "freebsd", "netbsd", "openbsd":
		return true
	default:
		return false
	}
}

// parseHexID parses hex ID string (0x1234 or 1234)
func parseHexID(hexStr string) (gousb.ID, error) {
	hexStr = strings.TrimSpace(hexStr)
	if len(hexStr) > 2 && strings.EqualFold(hexStr[:2], "0x") {
		hexStr = hexStr[2:]
	}

	id, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, err
	}

	return gousb.ID(id), nil
}
