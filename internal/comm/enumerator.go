// internal/comm/enumerator.go
package comm

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// PortInfo is one OS visible port
type PortInfo struct {
	Name        string
	Description string
}

// PortLister is the OS side of port enumeration, implemented by the serial bindings
type PortLister interface {
	// ListPorts returns every port the OS reports
	ListPorts() ([]PortInfo, error)

	// Probe opens and closes name to check that no one else holds it
	Probe(name string) error
}

// Chooser is asked whether the single available port should replace an
// invalid configured one. Returning true accepts the substitution.
type Chooser func(configured, candidate string) bool

// EnumeratorConfig holds the filter used for implicit rescans
type EnumeratorConfig struct {
	AvailabilityCheck bool
	BlackList         []string
	WhiteList         []string
}

// Enumerator lists configured ports into a Registry
type Enumerator struct {
	lister   PortLister
	registry *Registry
	config   EnumeratorConfig
	logger   *zap.Logger
	goos     string
	mu       sync.Mutex
}

// NewEnumerator creates an enumerator writing into registry
func NewEnumerator(lister PortLister, registry *Registry, config EnumeratorConfig, logger *zap.Logger) *Enumerator {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Enumerator{
		lister:   lister,
		registry: registry,
		config:   config,
		logger:   logger.With(zap.String("component", "port-enumerator")),
		goos:     runtime.GOOS,
	}
}

// Registry returns the registry written by this enumerator
func (e *Enumerator) Registry() *Registry {
	return e.registry
}

// Scan rebuilds the registry with the configured filter
func (e *Enumerator) Scan() (map[string]string, error) {
	return e.ListConfiguredPorts(e.config.AvailabilityCheck, e.config.BlackList, e.config.WhiteList)
}

// ListConfiguredPorts enumerates ports and rebuilds the registry. A non-empty
// whiteList restricts the result to its entries and ignores blackList;
// otherwise every OS port whose name contains a blackList entry is dropped.
// With doAvailabilityCheck each candidate is opened and closed, ports that
// fail are left out.
func (e *Enumerator) ListConfiguredPorts(doAvailabilityCheck bool, blackList, whiteList []string) (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	osPorts, err := e.lister.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	descriptions := make(map[string]string, len(osPorts))
	for _, p := range osPorts {
		descriptions[p.Name] = p.Description
	}

	result := make(map[string]string)
	if len(whiteList) > 0 {
		for _, name := range whiteList {
			if name == "" {
				continue
			}
			if doAvailabilityCheck && !e.probe(name) {
				continue
			}
			result[name] = describe(name, descriptions[name])
		}
	} else {
		for _, p := range osPorts {
			if isBlackListed(p.Name, blackList) {
				e.logger.Debug("Port excluded by black list", zap.String("port", p.Name))
				continue
			}
			if doAvailabilityCheck && !e.probe(p.Name) {
				continue
			}
			result[p.Name] = describe(p.Name, p.Description)
		}
	}

	e.filterPlatformDuplicates(result)
	e.registry.Replace(result)

	e.logger.Debug("Port enumeration completed",
		zap.Int("ports_found", len(result)),
		zap.Bool("availability_check", doAvailabilityCheck),
	)
	return result, nil
}

// IsMatchAvailablePorts reports whether candidate is a currently available
// port. The registry is rescanned when it is empty or lacks candidate.
func (e *Enumerator) IsMatchAvailablePorts(candidate string) bool {
	if candidate == "" {
		return false
	}
	if e.registry.Len() == 0 || !e.registry.Contains(candidate) {
		if _, err := e.Scan(); err != nil {
			e.logger.Warn("Port rescan failed", zap.Error(err))
			return false
		}
	}
	return e.registry.Contains(candidate)
}

// ResolvePort validates configured and returns the port to open. When the
// configured port is unusable and exactly one port is available, chooser
// decides whether that port is used instead.
func (e *Enumerator) ResolvePort(configured string, chooser Chooser) (string, error) {
	reason := ""
	switch {
	case configured == "":
		reason = "no port configured"
	case len(configured) < MinPortNameLength:
		reason = "port identifier too short"
	case !e.IsMatchAvailablePorts(configured):
		reason = "port not available"
	default:
		return configured, nil
	}

	if e.registry.Len() == 0 {
		if _, err := e.Scan(); err != nil {
			e.logger.Warn("Port rescan failed", zap.Error(err))
		}
	}
	names := e.registry.Names()
	if len(names) == 1 && chooser != nil && chooser(configured, names[0]) {
		e.logger.Info("Substituting configured port",
			zap.String("configured", configured),
			zap.String("port", names[0]),
		)
		return names[0], nil
	}

	return "", &ConfigurationError{Port: configured, Reason: reason}
}

func (e *Enumerator) probe(name string) bool {
	if err := e.lister.Probe(name); err != nil {
		e.logger.Debug("Port not available", zap.String("port", name), zap.Error(err))
		return false
	}
	return true
}

// filterPlatformDuplicates drops the dial-in /dev/tty.* nodes macOS lists
// next to the /dev/cu.* call-out node of the same device.
func (e *Enumerator) filterPlatformDuplicates(ports map[string]string) {
	if e.goos != "darwin" {
		return
	}
	for name := range ports {
		if strings.HasPrefix(name, "/dev/tty.") {
			delete(ports, name)
		}
	}
}

func isBlackListed(name string, blackList []string) bool {
	for _, entry := range blackList {
		if entry != "" && strings.Contains(name, entry) {
			return true
		}
	}
	return false
}

func describe(name, description string) string {
	if description == "" {
		return name
	}
	return fmt.Sprintf("%s - %s", name, description)
}
