// internal/service/port_service.go
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"dataexplorer-comm/internal/comm"
	"dataexplorer-comm/internal/config"
	"dataexplorer-comm/internal/protocol"
	"dataexplorer-comm/internal/utils"
)

// PortStatus is the diagnostic view of the session port
type PortStatus struct {
	Port        string                 `json:"port"`
	Kind        protocol.Kind          `json:"kind"`
	Connected   bool                   `json:"connected"`
	Interrupted bool                   `json:"interrupted"`
	Config      comm.PortConfig        `json:"config"`
	Counters    comm.Counters          `json:"counters"`
	Transport   protocol.ProtocolStats `json:"transport"`
}

// PortInfo is one entry of the port listing
type PortInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PortServiceOption carries collaborators that tests replace
type PortServiceOption struct {
	Lister  comm.PortLister
	Sleeper comm.Sleeper
	Status  comm.StatusListener
}

// PortService owns the single device port of the daemon
type PortService struct {
	kind       protocol.Kind
	binding    protocol.Binding
	port       *comm.Port
	enumerator *comm.Enumerator
	config     *config.Config
	logger     *utils.PortLogger
	mutex      sync.Mutex
}

// NewPortService creates the session port on binding
func NewPortService(cfg *config.Config, binding protocol.Binding, option PortServiceOption, logger *zap.Logger) (*PortService, error) {
	portConfig, err := cfg.PortSettings()
	if err != nil {
		return nil, fmt.Errorf("invalid port configuration: %w", err)
	}

	settings := protocol.Settings{
		ReadTick:  cfg.Port.ReadTick,
		USB:       USBSettings(cfg),
		Simulator: SimulatorSettings(cfg),
		TCP:       TCPSettings(cfg),
	}
	// serial identifiers are resolved by the enumerator on open
	if !binding.Kind().IsSerial() {
		if err := protocol.ValidateConfig(binding.Kind(), &portConfig, settings); err != nil {
			return nil, fmt.Errorf("invalid port configuration: %w", err)
		}
	}

	ps := &PortService{
		kind:    binding.Kind(),
		binding: binding,
		config:  cfg,
		logger:  utils.NewPortLogger(logger, portConfig.Port, string(binding.Kind())),
	}

	portOption := comm.NewPortOption().
		SetSleeper(option.Sleeper).
		SetStatusListener(option.Status)

	if option.Lister != nil {
		ps.enumerator = comm.NewEnumerator(option.Lister, comm.NewRegistry(), cfg.EnumeratorConfig(), logger)
		portOption.SetEnumerator(ps.enumerator).
			SetChooser(ps.chooseSubstitute).
			SetPortChangedHandler(ps.portChanged)
	}

	ps.port = comm.NewPort(binding, portConfig, logger, portOption)
	return ps, nil
}

// USBSettings maps the usb section onto the binding settings
func USBSettings(cfg *config.Config) protocol.USBConfig {
	return protocol.USBConfig{
		VendorID:    cfg.USB.VendorID,
		ProductID:   cfg.USB.ProductID,
		Interface:   cfg.USB.Interface,
		InEndpoint:  cfg.USB.InEndpoint,
		OutEndpoint: cfg.USB.OutEndpoint,
		Timeout:     cfg.USB.Timeout,
	}
}

// SimulatorSettings maps the simulator section onto the binding settings
func SimulatorSettings(cfg *config.Config) protocol.SimulatorConfig {
	return protocol.SimulatorConfig{
		File:      cfg.Simulator.File,
		ChunkSize: cfg.Simulator.ChunkSize,
		Interval:  cfg.Simulator.Interval,
		Loop:      cfg.Simulator.Loop,
	}
}

// TCPSettings maps the tcp section onto the binding settings
func TCPSettings(cfg *config.Config) protocol.TCPConfig {
	return protocol.TCPConfig{
		DialTimeout: cfg.TCP.DialTimeout,
		KeepAlive:   cfg.TCP.KeepAlive,
		TLS:         cfg.TCP.TLS,
	}
}

// Port returns the session port
func (ps *PortService) Port() *comm.Port {
	return ps.port
}

// Open opens the session port
func (ps *PortService) Open(ctx context.Context) error {
	err := ps.port.Open(ctx)
	ps.logger.LogConnection("open", err == nil, err)
	if err != nil {
		return fmt.Errorf("failed to open port: %w", err)
	}
	return nil
}

// Close closes the session port and waits until the OS handle is released
// or ctx ends.
func (ps *PortService) Close(ctx context.Context) error {
	done := ps.port.Close()
	select {
	case <-done:
		counters := ps.port.Counters()
		ps.logger.LogCounters(counters.TransferErrors, counters.TimeoutErrors)
		ps.logger.LogConnection("close", true, nil)
		return nil
	case <-ctx.Done():
		ps.logger.LogConnection("close", false, ctx.Err())
		return fmt.Errorf("port close did not complete: %w", ctx.Err())
	}
}

// ListPorts rescans the OS ports with the configured black/white list
func (ps *PortService) ListPorts() ([]PortInfo, error) {
	if ps.enumerator == nil {
		return nil, fmt.Errorf("port listing is not supported for %s transport", ps.kind)
	}

	ports, err := ps.enumerator.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	result := make([]PortInfo, 0, len(ports))
	for name, description := range ports {
		result = append(result, PortInfo{Name: name, Description: description})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Status returns the diagnostic view of the port
func (ps *PortService) Status() PortStatus {
	return PortStatus{
		Port:        ps.port.Name(),
		Kind:        ps.kind,
		Connected:   ps.port.IsConnected(),
		Interrupted: ps.port.IsInterruptedByUser(),
		Config:      ps.port.Config(),
		Counters:    ps.port.Counters(),
		Transport:   ps.binding.Stats(),
	}
}

// chooseSubstitute accepts the single available port when configured to
func (ps *PortService) chooseSubstitute(configured, candidate string) bool {
	ps.logger.Warn("Configured port is not available",
		zap.String("configured", configured),
		zap.String("candidate", candidate),
		zap.Bool("accepted", ps.config.Port.SubstituteSingle),
	)
	return ps.config.Port.SubstituteSingle
}

func (ps *PortService) portChanged(port string) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	ps.logger.Info("Port substituted", zap.String("new_port", port))
	ps.config.Port.Name = port
}
