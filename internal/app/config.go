package app

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/flowlb/common/go/logging"
	"github.com/yanet-platform/flowlb/common/go/xnetip"
	"github.com/yanet-platform/flowlb/internal/balancer"
	"github.com/yanet-platform/flowlb/internal/controller"
	"github.com/yanet-platform/flowlb/internal/flow"
)

// defaultBackendMAC is the destination MAC redirected packets get when
// neither the backend nor the service configures one.
const defaultBackendMAC = "00:00:00:00:00:01"

// Config is the configuration of the balancer agent.
type Config struct {
	// Logging configuration.
	Logging logging.Config `yaml:"logging"`
	// Controller is the OpenDaylight RESTCONF API configuration.
	Controller controller.Config `yaml:"controller"`
	// Switch is the switch table the balancer owns.
	Switch SwitchConfig `yaml:"switch"`
	// Startup controls retries of the initial table clear and ARP
	// installs.
	Startup StartupConfig `yaml:"startup"`
	// Metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
	// Services is the list of virtual services to balance.
	Services []ServiceConfig `yaml:"services"`
}

// SwitchConfig identifies the managed switch table.
type SwitchConfig struct {
	// Node is the controller's identifier of the switch.
	Node  string `yaml:"node"`
	Table uint8  `yaml:"table"`
}

// StartupConfig controls retries of the startup requests.
type StartupConfig struct {
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration `yaml:"initial_interval"`
	// MaxElapsedTime bounds the total retry time; zero retries forever.
	MaxElapsedTime time.Duration `yaml:"max_elapsed_time"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Endpoint to serve /metrics on, metrics are not served when empty.
	Endpoint string `yaml:"endpoint"`
}

// ServiceConfig describes a virtual service.
type ServiceConfig struct {
	Name string `yaml:"name"`
	// Address is the virtual host address, bare or as a /32.
	Address string `yaml:"address"`
	// Source is the client network whose traffic is redirected, host bits
	// must be zero.
	Source string `yaml:"source"`
	// IdleTimeout in seconds, also used as the rotation period.
	IdleTimeout uint16           `yaml:"idle_timeout"`
	Handoff     balancer.Handoff `yaml:"handoff"`
	// BackendMAC is the default destination MAC of the backends.
	BackendMAC string          `yaml:"backend_mac"`
	Backends   []BackendConfig `yaml:"backends"`
}

// BackendConfig is either a bare address or an address with a MAC.
type BackendConfig struct {
	Address string `yaml:"address"`
	MAC     string `yaml:"mac"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging:    logging.DefaultConfig(),
		Controller: controller.DefaultConfig(),
		Switch: SwitchConfig{
			Node:  "openflow:1",
			Table: 0,
		},
		Startup: StartupConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxElapsedTime:  time.Minute,
		},
	}
}

func defaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		IdleTimeout: 10,
		Handoff:     balancer.HandoffReplace,
		BackendMAC:  defaultBackendMAC,
	}
}

// UnmarshalYAML applies service defaults before decoding.
func (m *ServiceConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain ServiceConfig

	cfg := plain(defaultServiceConfig())
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	*m = ServiceConfig(cfg)
	return nil
}

// UnmarshalYAML accepts both "10.0.0.2/32" and {address: ..., mac: ...}.
func (m *BackendConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&m.Address)
	}

	type plain BackendConfig
	return node.Decode((*plain)(m))
}

// LoadConfig loads and validates a configuration from the specified file
// path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors that would prevent the
// balancer from starting.
func (m *Config) Validate() error {
	if m.Controller.Endpoint == "" {
		return errors.New("controller endpoint is required")
	}
	if m.Switch.Node == "" {
		return errors.New("switch node is required")
	}
	if m.Controller.Timeout < 0 {
		return errors.New("controller timeout must not be negative")
	}
	if m.Startup.InitialInterval <= 0 {
		return errors.New("startup initial_interval must be positive")
	}
	if m.Startup.MaxElapsedTime < 0 {
		return errors.New("startup max_elapsed_time must not be negative")
	}
	_, err := m.BalancerServices()
	return err
}

// Target returns the managed switch table.
func (m *Config) Target() balancer.Target {
	return balancer.Target{
		Node:  m.Switch.Node,
		Table: m.Switch.Table,
	}
}

// BalancerServices converts the configured services.
func (m *Config) BalancerServices() ([]balancer.Service, error) {
	if len(m.Services) == 0 {
		return nil, errors.New("no services configured")
	}

	names := map[string]struct{}{}
	services := make([]balancer.Service, 0, len(m.Services))
	for idx, cfg := range m.Services {
		if cfg.Name == "" {
			return nil, fmt.Errorf("service #%d: name is required", idx)
		}
		if _, ok := names[cfg.Name]; ok {
			return nil, fmt.Errorf("service %q: duplicate name", cfg.Name)
		}
		names[cfg.Name] = struct{}{}

		svc, err := cfg.convert()
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", cfg.Name, err)
		}
		services = append(services, svc)
	}

	return services, nil
}

func (m *ServiceConfig) convert() (balancer.Service, error) {
	address, err := xnetip.ParseHost4(m.Address)
	if err != nil {
		return balancer.Service{}, fmt.Errorf("address: %w", err)
	}
	source, err := xnetip.ParseNetwork4(m.Source)
	if err != nil {
		return balancer.Service{}, fmt.Errorf("source: %w", err)
	}
	if m.IdleTimeout == 0 {
		return balancer.Service{}, errors.New("idle_timeout must be positive")
	}
	defaultMAC, err := parseMAC(m.BackendMAC)
	if err != nil {
		return balancer.Service{}, fmt.Errorf("backend_mac: %w", err)
	}
	if len(m.Backends) == 0 {
		return balancer.Service{}, balancer.ErrEmptyPool
	}

	backends := make([]flow.Backend, 0, len(m.Backends))
	for idx, b := range m.Backends {
		backend := flow.Backend{MAC: defaultMAC}
		if backend.Address, err = xnetip.ParseHost4(b.Address); err != nil {
			return balancer.Service{}, fmt.Errorf("backend #%d: %w", idx, err)
		}
		if b.MAC != "" {
			if backend.MAC, err = parseMAC(b.MAC); err != nil {
				return balancer.Service{}, fmt.Errorf("backend #%d: %w", idx, err)
			}
		}
		backends = append(backends, backend)
	}

	return balancer.Service{
		Name:        m.Name,
		Address:     address,
		Source:      source,
		IdleTimeout: m.IdleTimeout,
		Handoff:     m.Handoff,
		Backends:    backends,
	}, nil
}

func parseMAC(s string) (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(s)
	if err != nil {
		return nil, fmt.Errorf("malformed MAC address %q", s)
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("not an Ethernet MAC address %q", s)
	}
	return mac, nil
}
