package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iotlink/device-core/identity"
)

// Config is the root configuration structure for an IoTLink device.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Session   SessionConfig   `yaml:"session"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Journal   JournalConfig   `yaml:"journal"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies this device to the IoTLink backend.
type DeviceConfig struct {
	UniqueID    string `yaml:"unique_id"`
	CompanyID   string `yaml:"company_id"`
	Environment string `yaml:"environment"`
	Platform    string `yaml:"platform"`
}

// DiscoveryConfig contains discovery endpoint settings.
type DiscoveryConfig struct {
	BaseURL string `yaml:"base_url"`
	Cache   bool   `yaml:"cache"`
}

// SessionConfig contains session lifecycle settings.
type SessionConfig struct {
	AutoReconnect bool `yaml:"auto_reconnect"`
}

// MQTTConfig contains transport-level MQTT settings. Broker address and
// credentials come from identity negotiation, not from configuration.
type MQTTConfig struct {
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"`
	TLS       MQTTTLSConfig       `yaml:"tls"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTTLSConfig contains TLS settings for the broker connection. The
// certificate files are only consulted for x509 authentication.
type MQTTTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// JournalConfig contains settings for the optional InfluxDB telemetry
// journal used during development and field diagnostics.
type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: IOTLINK_SECTION_KEY
// For example: IOTLINK_DEVICE_UNIQUE_ID, IOTLINK_DISCOVERY_BASE_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Environment: "poc",
			Platform:    string(identity.PlatformAWS),
		},
		Discovery: DiscoveryConfig{
			Cache: true,
		},
		Session: SessionConfig{
			AutoReconnect: true,
		},
		MQTT: MQTTConfig{
			QoS:       1,
			KeepAlive: 60,
			TLS:       MQTTTLSConfig{Enabled: true},
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Journal: JournalConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: IOTLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("IOTLINK_DEVICE_UNIQUE_ID"); v != "" {
		cfg.Device.UniqueID = v
	}
	if v := os.Getenv("IOTLINK_DEVICE_COMPANY_ID"); v != "" {
		cfg.Device.CompanyID = v
	}
	if v := os.Getenv("IOTLINK_DEVICE_ENVIRONMENT"); v != "" {
		cfg.Device.Environment = v
	}
	if v := os.Getenv("IOTLINK_DEVICE_PLATFORM"); v != "" {
		cfg.Device.Platform = v
	}

	// Discovery
	if v := os.Getenv("IOTLINK_DISCOVERY_BASE_URL"); v != "" {
		cfg.Discovery.BaseURL = v
	}

	// Journal
	if v := os.Getenv("IOTLINK_JOURNAL_TOKEN"); v != "" {
		cfg.Journal.Token = v
	}

	// Logging
	if v := os.Getenv("IOTLINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device identity is delegated to the identity package so the rules
	// stay in one place.
	if _, err := c.Identity(); err != nil {
		errs = append(errs, err.Error())
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 1 {
		errs = append(errs, "mqtt.keep_alive must be at least 1 second")
	}

	// Journal validation
	if c.Journal.Enabled {
		if c.Journal.URL == "" {
			errs = append(errs, "journal.url is required when journal is enabled")
		}
		if c.Journal.Bucket == "" {
			errs = append(errs, "journal.bucket is required when journal is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Identity builds the device identity from the device section.
func (c *Config) Identity() (identity.Identity, error) {
	return identity.New(
		c.Device.UniqueID,
		c.Device.CompanyID,
		c.Device.Environment,
		identity.Platform(c.Device.Platform),
	)
}

// GetKeepAlive returns the MQTT keep-alive as a Duration.
func (c *Config) GetKeepAlive() time.Duration {
	return time.Duration(c.MQTT.KeepAlive) * time.Second
}

// GetFlushInterval returns the journal flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.Journal.FlushInterval) * time.Second
}
