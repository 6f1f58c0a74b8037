package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/sensor"
	"github.com/srg/blesense/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, sensor.DefaultAddress, cfg.Target.Address)
	assert.Equal(t, sensor.DefaultCharacteristicUUID, cfg.Target.Characteristic)
	assert.Equal(t, sensor.DefaultServiceUUID, cfg.Target.Service)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Scan)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connect)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Discovery)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Read)
	assert.Zero(t, cfg.RequestDelay)
	assert.False(t, cfg.PreferNotify)

	assert.False(t, cfg.MQTT.Enabled(), "MQTT MUST be disabled by default")
	assert.Equal(t, "blesense", cfg.MQTT.TopicPrefix)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, 5*time.Second, cfg.MQTT.PublishTimeout)

	require.NoError(t, cfg.Validate(), "defaults MUST be valid")
}

func TestDefaultClientOptionsMatchSensorDefaults(t *testing.T) {
	assert.Equal(t, sensor.DefaultOptions(), DefaultConfig().ClientOptions())
}

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "blesense.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Target.Address)
	assert.Equal(t, 45*time.Second, cfg.Timeouts.Scan)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connect, "missing keys MUST keep defaults")
	assert.Zero(t, cfg.Timeouts.Read, "explicit zero MUST disable the timeout")
	assert.Equal(t, 250*time.Millisecond, cfg.RequestDelay)
	assert.True(t, cfg.PreferNotify)

	assert.True(t, cfg.MQTT.Enabled())
	assert.Equal(t, "home/sensors", cfg.MQTT.TopicPrefix)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
	assert.Equal(t, "blesense", cfg.MQTT.ClientID)

	target, err := cfg.SensorTarget()
	require.NoError(t, err)
	assert.Equal(t, sensor.Target{Address: "AA:BB:CC:DD:EE:FF", CharacteristicUUID: "2a6e", ServiceUUID: "181a"}, target)

	opts := cfg.ClientOptions()
	assert.Equal(t, 45*time.Second, opts.ScanTimeout)
	assert.Zero(t, opts.ReadTimeout)
	assert.Equal(t, 250*time.Millisecond, opts.RequestDelay)
	assert.True(t, opts.PreferNotify)
}

func TestParseFixture(t *testing.T) {
	data, err := testutils.LoadFixture("pkg/config/testdata/blesense.yaml")
	require.NoError(t, err)

	cfg, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker.local:1883", cfg.MQTT.Broker)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Load(filepath.Join("testdata", "invalid.yaml"))
	assert.ErrorContains(t, err, "invalid target")

	_, err = Parse([]byte("timeouts: [1, 2"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: "invalid log level",
		},
		{
			name:    "missing address",
			mutate:  func(c *Config) { c.Target.Address = "" },
			wantErr: "target.address is required",
		},
		{
			name:    "invalid service",
			mutate:  func(c *Config) { c.Target.Service = "xyz" },
			wantErr: "service",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Timeouts.Connect = -time.Second },
			wantErr: "timeouts.connect must not be negative",
		},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.RequestDelay = -time.Millisecond },
			wantErr: "request_delay",
		},
		{
			name:    "broker scheme",
			mutate:  func(c *Config) { c.MQTT.Broker = "http://broker:1883" },
			wantErr: "unsupported scheme",
		},
		{
			name:    "broker host",
			mutate:  func(c *Config) { c.MQTT.Broker = "tcp://" },
			wantErr: "missing host",
		},
		{
			name:   "qos",
			mutate: func(c *Config) {
				c.MQTT.Broker = "tcp://broker:1883"
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name:   "empty service is allowed",
			mutate: func(c *Config) { c.Target.Service = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", expected: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", expected: logrus.ErrorLevel},
		{name: "empty level means info", logLevel: "", expected: logrus.InfoLevel},
		{name: "invalid level falls back to info", logLevel: "loud", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, level)

	_, err = ParseLevel("loud")
	assert.ErrorContains(t, err, "invalid log level: loud")
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}
