package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/cellgate/internal/ingest"
)

// DefaultConfigPath is the path to the canonical gateway defaults file.
const DefaultConfigPath = "config/gateway.defaults.json"

const (
	SourceTCP    = "tcp"
	SourceSerial = "serial"
	SinkUDP      = "udp"
	SinkCAN      = "can"
)

// GatewayConfig is the root configuration shared by the gateway and monitor
// binaries. Every field is optional; the Get* methods supply defaults for
// anything the file leaves out, so partial configs are safe.
type GatewayConfig struct {
	Source     *string             `json:"source,omitempty"`
	TCPAddr    *string             `json:"tcp_addr,omitempty"`
	SerialPath *string             `json:"serial_path,omitempty"`
	Serial     *ingest.PortOptions `json:"serial,omitempty"`

	Sink         *string `json:"sink,omitempty"`
	UDPAddr      *string `json:"udp_addr,omitempty"`
	CANInterface *string `json:"can_interface,omitempty"`

	// Connect retry, duration strings like "2s".
	DialTimeout       *string  `json:"dial_timeout,omitempty"`
	RetryInitialDelay *string  `json:"retry_initial_delay,omitempty"`
	RetryMultiplier   *float64 `json:"retry_multiplier,omitempty"`
	RetryMaxDelay     *string  `json:"retry_max_delay,omitempty"`
	RetryJitter       *bool    `json:"retry_jitter,omitempty"`
	RetryMaxAttempts  *int     `json:"retry_max_attempts,omitempty"`
	Reconnect         *bool    `json:"reconnect,omitempty"`

	DBPath        *string `json:"db_path,omitempty"`
	AdminListen   *string `json:"admin_listen,omitempty"`
	StatsInterval *string `json:"stats_interval,omitempty"`

	Monitor *MonitorConfig `json:"monitor,omitempty"`
}

// MonitorConfig holds the anomaly monitor parameters.
type MonitorConfig struct {
	ListenAddr        *string  `json:"listen_addr,omitempty"`
	NoiseWindow       *int     `json:"noise_window,omitempty"`
	TrainingSamples   *int     `json:"training_samples,omitempty"`
	DebounceWindow    *int     `json:"debounce_window,omitempty"`
	DebounceThreshold *int     `json:"debounce_threshold,omitempty"`
	ZThreshold        *float64 `json:"z_threshold,omitempty"`
	PlotPath          *string  `json:"plot_path,omitempty"`
}

func ptrString(v string) *string { return &v }

// EmptyGatewayConfig returns a config with every field unset.
func EmptyGatewayConfig() *GatewayConfig {
	return &GatewayConfig{}
}

// LoadGatewayConfig loads a GatewayConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyGatewayConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded; intended for
// test setup.
func MustLoadDefaultConfig() *GatewayConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadGatewayConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Source != nil && *c.Source != SourceTCP && *c.Source != SourceSerial {
		return fmt.Errorf("source must be %q or %q, got %q", SourceTCP, SourceSerial, *c.Source)
	}
	if c.Sink != nil && *c.Sink != SinkUDP && *c.Sink != SinkCAN {
		return fmt.Errorf("sink must be %q or %q, got %q", SinkUDP, SinkCAN, *c.Sink)
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("invalid serial options: %w", err)
		}
	}
	for name, v := range map[string]*string{
		"dial_timeout":        c.DialTimeout,
		"retry_initial_delay": c.RetryInitialDelay,
		"retry_max_delay":     c.RetryMaxDelay,
		"stats_interval":      c.StatsInterval,
	} {
		if v != nil && *v != "" {
			d, err := time.ParseDuration(*v)
			if err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
			if d <= 0 {
				return fmt.Errorf("%s must be positive, got %s", name, *v)
			}
		}
	}
	if c.RetryMultiplier != nil && *c.RetryMultiplier < 1 {
		return fmt.Errorf("retry_multiplier must be >= 1, got %f", *c.RetryMultiplier)
	}
	if c.RetryMaxAttempts != nil && *c.RetryMaxAttempts < 0 {
		return fmt.Errorf("retry_max_attempts must be non-negative, got %d", *c.RetryMaxAttempts)
	}
	if c.Monitor != nil {
		if err := c.Monitor.Validate(); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// GetSource returns the ingest transport, "tcp" by default.
func (c *GatewayConfig) GetSource() string { return stringOr(c.Source, SourceTCP) }

// GetTCPAddr returns the sensor TCP address.
func (c *GatewayConfig) GetTCPAddr() string { return stringOr(c.TCPAddr, "127.0.0.1:4000") }

// GetSerialPath returns the sensor serial device.
func (c *GatewayConfig) GetSerialPath() string { return stringOr(c.SerialPath, "/dev/ttyUSB0") }

// GetSerialOptions returns the serial settings, normalised.
func (c *GatewayConfig) GetSerialOptions() ingest.PortOptions {
	var opts ingest.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	norm, err := opts.Normalize()
	if err != nil {
		norm, _ = ingest.PortOptions{}.Normalize()
	}
	return norm
}

// GetSink returns the egress transport, "udp" by default.
func (c *GatewayConfig) GetSink() string { return stringOr(c.Sink, SinkUDP) }

// GetUDPAddr returns the egress UDP destination.
func (c *GatewayConfig) GetUDPAddr() string { return stringOr(c.UDPAddr, "127.0.0.1:5000") }

// GetCANInterface returns the SocketCAN interface name.
func (c *GatewayConfig) GetCANInterface() string { return stringOr(c.CANInterface, "vcan0") }

// GetDialTimeout returns the TCP dial timeout.
func (c *GatewayConfig) GetDialTimeout() time.Duration {
	return durationOr(c.DialTimeout, 3*time.Second)
}

// GetRetryPolicy assembles the connect retry policy.
func (c *GatewayConfig) GetRetryPolicy() ingest.RetryPolicy {
	p := ingest.DefaultRetryPolicy()
	p.InitialDelay = durationOr(c.RetryInitialDelay, p.InitialDelay)
	p.MaxDelay = durationOr(c.RetryMaxDelay, p.MaxDelay)
	if c.RetryMultiplier != nil {
		p.Multiplier = *c.RetryMultiplier
	}
	if c.RetryJitter != nil {
		p.Jitter = *c.RetryJitter
	}
	if c.RetryMaxAttempts != nil {
		p.MaxAttempts = *c.RetryMaxAttempts
	}
	return p
}

// GetReconnect reports whether the gateway reconnects after the stream ends.
func (c *GatewayConfig) GetReconnect() bool {
	if c.Reconnect == nil {
		return false
	}
	return *c.Reconnect
}

// GetDBPath returns the sqlite path; empty disables recording.
func (c *GatewayConfig) GetDBPath() string { return stringOr(c.DBPath, "") }

// GetAdminListen returns the admin HTTP address; empty disables it.
func (c *GatewayConfig) GetAdminListen() string { return stringOr(c.AdminListen, "") }

// GetStatsInterval returns how often pipeline counters are logged.
func (c *GatewayConfig) GetStatsInterval() time.Duration {
	return durationOr(c.StatsInterval, 30*time.Second)
}

// GetMonitor returns the monitor section, never nil.
func (c *GatewayConfig) GetMonitor() *MonitorConfig {
	if c.Monitor == nil {
		return &MonitorConfig{}
	}
	return c.Monitor
}
