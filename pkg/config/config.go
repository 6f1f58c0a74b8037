package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/publish"
	"github.com/srg/blesense/internal/sensor"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string        `yaml:"log_level" default:"info"`
	Target   TargetConfig  `yaml:"target"`
	Timeouts TimeoutConfig `yaml:"timeouts"`

	// RequestDelay postpones every BLE request.
	RequestDelay time.Duration `yaml:"request_delay" default:"0s"`
	PreferNotify bool          `yaml:"prefer_notify"`

	MQTT publish.Config `yaml:"mqtt"`
}

// TargetConfig identifies the monitored peripheral and characteristic.
type TargetConfig struct {
	Address        string `yaml:"address" default:"1FE8527F-87F3-7D8B-BC84-9BA529FB8BAA"`
	Characteristic string `yaml:"characteristic" default:"0000fff1-0000-1000-8000-00805f9b34fb"`
	Service        string `yaml:"service" default:"fff0"`
}

// TimeoutConfig bounds each connection stage. Zero disables a stage's timeout.
type TimeoutConfig struct {
	Scan      time.Duration `yaml:"scan" default:"30s"`
	Connect   time.Duration `yaml:"connect" default:"10s"`
	Discovery time.Duration `yaml:"discovery" default:"10s"`
	Read      time.Duration `yaml:"read" default:"10s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	defaults.SetDefaults(&cfg.Target)
	defaults.SetDefaults(&cfg.Timeouts)
	cfg.MQTT = publish.DefaultConfig()
	return cfg
}

// Load reads a YAML file over the defaults and validates the result.
// Keys missing from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that can be checked without touching hardware.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.SensorTarget(); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}

	for name, d := range map[string]time.Duration{
		"timeouts.scan":      c.Timeouts.Scan,
		"timeouts.connect":   c.Timeouts.Connect,
		"timeouts.discovery": c.Timeouts.Discovery,
		"timeouts.read":      c.Timeouts.Read,
		"request_delay":      c.RequestDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}

	if c.MQTT.Enabled() {
		u, err := url.Parse(c.MQTT.Broker)
		if err != nil {
			return fmt.Errorf("invalid mqtt.broker: %w", err)
		}
		switch u.Scheme {
		case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
		default:
			return fmt.Errorf("invalid mqtt.broker %q: unsupported scheme %q", c.MQTT.Broker, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("invalid mqtt.broker %q: missing host", c.MQTT.Broker)
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("invalid mqtt.qos %d (must be 0, 1 or 2)", c.MQTT.QoS)
		}
	}
	return nil
}

// Level parses LogLevel. An empty level means info.
func (c *Config) Level() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}
	return ParseLevel(c.LogLevel)
}

// ParseLevel parses a log level name; "warning" is accepted for warn.
func ParseLevel(name string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return 0, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", name)
	}
	return level, nil
}

// SensorTarget builds the validated client target.
func (c *Config) SensorTarget() (sensor.Target, error) {
	if c.Target.Address == "" {
		return sensor.Target{}, errors.New("target.address is required")
	}
	return sensor.NewTarget(c.Target.Address, c.Target.Characteristic, c.Target.Service)
}

// ClientOptions maps the timeouts and request settings onto sensor.Options.
func (c *Config) ClientOptions() *sensor.Options {
	return &sensor.Options{
		ScanTimeout:      c.Timeouts.Scan,
		ConnectTimeout:   c.Timeouts.Connect,
		DiscoveryTimeout: c.Timeouts.Discovery,
		ReadTimeout:      c.Timeouts.Read,
		RequestDelay:     c.RequestDelay,
		PreferNotify:     c.PreferNotify,
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
