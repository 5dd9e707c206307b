// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"net"

	"go.uber.org/zap"

	"dataexplorer-comm/internal/comm"
)

// CreateChannel creates the binding selected by kind
func CreateChannel(kind Kind, settings Settings, logger *zap.Logger) (Binding, error) {
	switch kind {
	case KindSerial:
		logger.Info("Creating serial binding", zap.Duration("read_tick", settings.ReadTick))
		return NewSerialConnection(settings.ReadTick, logger), nil
	case KindSerialPortable:
		logger.Info("Creating portable serial binding", zap.Duration("read_tick", settings.ReadTick))
		return NewPortableSerialConnection(settings.ReadTick, logger), nil
	case KindUSB:
		if err := validateUSBConfig(settings.USB); err != nil {
			return nil, err
		}
		logger.Info("Creating USB binding",
			zap.String("vendor_id", settings.USB.VendorID),
			zap.String("product_id", settings.USB.ProductID),
			zap.Int("interface", settings.USB.Interface),
		)
		return NewUSBConnection(settings.USB, logger), nil
	case KindSimulator:
		if settings.Simulator.File == "" {
			return nil, &comm.ConfigurationError{Reason: "simulator file is required"}
		}
		logger.Info("Creating simulator binding", zap.String("file", settings.Simulator.File))
		return NewSimConnection(settings.Simulator, logger), nil
	case KindTCP:
		logger.Info("Creating TCP binding", zap.Bool("tls", settings.TCP.TLS))
		return NewTCPConnection(settings.TCP, settings.ReadTick, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport kind: %s", kind)
	}
}

// NewPortLister returns the OS port lister of a serial kind, nil otherwise
func NewPortLister(kind Kind, logger *zap.Logger) comm.PortLister {
	if !kind.IsSerial() {
		return nil
	}
	return NewSystemPortLister(kind, logger)
}

// ValidateConfig validates the port configuration for a transport kind
func ValidateConfig(kind Kind, cfg *comm.PortConfig, settings Settings) error {
	switch kind {
	case KindSerial, KindSerialPortable:
		return validateSerialConfig(cfg)
	case KindUSB:
		return validateUSBConfig(settings.USB)
	case KindSimulator:
		if settings.Simulator.File == "" {
			return &comm.ConfigurationError{Reason: "simulator file is required"}
		}
		return nil
	case KindTCP:
		return validateTCPAddress(cfg.Port)
	default:
		return fmt.Errorf("unsupported transport kind: %s", kind)
	}
}

// validateSerialConfig validates serial configuration
func validateSerialConfig(cfg *comm.PortConfig) error {
	if cfg.Port == "" {
		return &comm.ConfigurationError{Reason: "serial port is required"}
	}
	if len(cfg.Port) < comm.MinPortNameLength {
		return &comm.ConfigurationError{Port: cfg.Port, Reason: "port identifier too short"}
	}
	return cfg.Validate()
}

// validateTCPAddress validates a device server host:port address
func validateTCPAddress(address string) error {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || port == "" {
		return &comm.ConfigurationError{Port: address, Reason: "TCP port must be a host:port address"}
	}
	return nil
}

// validateUSBConfig validates USB configuration
func validateUSBConfig(cfg USBConfig) error {
	if _, err := parseHexID(cfg.VendorID); err != nil {
		return &comm.ConfigurationError{Port: cfg.VendorID, Reason: "USB vendor_id is required as hex"}
	}
	if _, err := parseHexID(cfg.ProductID); err != nil {
		return &comm.ConfigurationError{Port: cfg.ProductID, Reason: "USB product_id is required as hex"}
	}
	if cfg.Interface < 0 {
		return &comm.ConfigurationError{Reason: "USB interface must not be negative"}
	}
	if cfg.InEndpoint <= 0 || cfg.OutEndpoint <= 0 {
		return &comm.ConfigurationError{Reason: "USB in_endpoint and out_endpoint are required"}
	}
	return nil
}
