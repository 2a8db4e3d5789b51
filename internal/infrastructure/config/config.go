package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for SignGrid Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Fleet     FleetConfig     `yaml:"fleet"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	TCP       TCPConfig       `yaml:"tcp"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Retry     RetryConfig     `yaml:"retry"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// FleetConfig contains fleet-level identification.
type FleetConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection and transport settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicConfig     `yaml:"topics"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// MQTTTopicConfig contains the per-device topic layout and payload mode.
type MQTTTopicConfig struct {
	// Prefix is the leading topic segment for all sign topics.
	// Default: "display" (topics look like display/{deviceId}/message).
	Prefix string `yaml:"prefix"`

	// PayloadEncoding selects how encoded frames are published:
	// "binary" for the raw frame bytes, "hex" for an uppercase
	// hexadecimal string rendering of the same bytes.
	PayloadEncoding string `yaml:"payload_encoding"`
}

// TCPConfig contains the direct TCP listener settings.
type TCPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// HandshakeTimeout is how long a new connection may take to present
	// its device ID before being dropped (seconds).
	HandshakeTimeout int `yaml:"handshake_timeout"`

	// SendTimeout bounds a single frame write to a device socket (seconds).
	SendTimeout int `yaml:"send_timeout"`
}

// HeartbeatConfig contains liveness tracking settings (seconds).
type HeartbeatConfig struct {
	// CheckInterval is how often each session evaluates its liveness.
	CheckInterval int `yaml:"check_interval"`

	// Timeout is the maximum heartbeat silence before a session is
	// considered dead. Simulated devices are exempt.
	Timeout int `yaml:"timeout"`
}

// RetryConfig contains the outbound send retry policy.
type RetryConfig struct {
	// Attempts is the total number of send attempts before giving up.
	Attempts int `yaml:"attempts"`

	// BaseDelay is the initial backoff delay in milliseconds.
	BaseDelay int `yaml:"base_delay"`

	// MaxDelay caps the backoff delay in milliseconds.
	MaxDelay int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
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
// Environment variables follow the pattern: SIGNGRID_SECTION_KEY
// For example: SIGNGRID_DATABASE_PATH, SIGNGRID_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading a file or
// the environment. Callers that need deviations mutate the result.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Fleet: FleetConfig{
			ID:       "fleet-001",
			Name:     "SignGrid",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/signgrid.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "signgrid-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			Topics: MQTTTopicConfig{
				Prefix:          "display",
				PayloadEncoding: "hex",
			},
		},
		TCP: TCPConfig{
			Host:             "0.0.0.0",
			Port:             7200,
			HandshakeTimeout: 5,
			SendTimeout:      10,
		},
		Heartbeat: HeartbeatConfig{
			CheckInterval: 30,
			Timeout:       300,
		},
		Retry: RetryConfig{
			Attempts:  3,
			BaseDelay: 500,
			MaxDelay:  5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SIGNGRID_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("SIGNGRID_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SIGNGRID_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SIGNGRID_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SIGNGRID_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("SIGNGRID_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.Topics.Prefix = v
	}

	// TCP
	if v := os.Getenv("SIGNGRID_TCP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.TCP.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("SIGNGRID_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Fleet.ID == "" {
		errs = append(errs, "fleet.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	switch c.MQTT.Topics.PayloadEncoding {
	case "binary", "hex":
	default:
		errs = append(errs, "mqtt.topics.payload_encoding must be \"binary\" or \"hex\"")
	}

	if c.TCP.Port < 1 || c.TCP.Port > 65535 {
		errs = append(errs, "tcp.port must be between 1 and 65535")
	}
	if c.TCP.HandshakeTimeout < 1 {
		errs = append(errs, "tcp.handshake_timeout must be at least 1 second")
	}

	if c.Heartbeat.Timeout < c.Heartbeat.CheckInterval {
		errs = append(errs, "heartbeat.timeout must not be shorter than heartbeat.check_interval")
	}

	if c.Retry.Attempts < 1 {
		errs = append(errs, "retry.attempts must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetHandshakeTimeout returns the TCP handshake timeout as a Duration.
func (c *Config) GetHandshakeTimeout() time.Duration {
	return time.Duration(c.TCP.HandshakeTimeout) * time.Second
}

// GetSendTimeout returns the per-frame send timeout as a Duration.
func (c *Config) GetSendTimeout() time.Duration {
	return time.Duration(c.TCP.SendTimeout) * time.Second
}

// GetHeartbeatInterval returns the liveness check interval as a Duration.
func (c *Config) GetHeartbeatInterval() time.Duration {
	return time.Duration(c.Heartbeat.CheckInterval) * time.Second
}

// GetHeartbeatTimeout returns the heartbeat expiry timeout as a Duration.
func (c *Config) GetHeartbeatTimeout() time.Duration {
	return time.Duration(c.Heartbeat.Timeout) * time.Second
}

// GetRetryBaseDelay returns the retry base delay as a Duration.
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelay) * time.Millisecond
}

// GetRetryMaxDelay returns the retry delay cap as a Duration.
func (c *Config) GetRetryMaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelay) * time.Millisecond
}
