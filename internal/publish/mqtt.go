package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/sensor"
)

// ErrNotConnected is returned when publishing before Connect succeeded.
var ErrNotConnected = errors.New("mqtt client not connected")

const connectPoll = 200 * time.Millisecond

// Config configures the MQTT sink. The sink is disabled when Broker is empty.
type Config struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id" default:"blesense"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic_prefix" default:"blesense"`
	QoS            byte          `yaml:"qos" default:"1"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
	PublishTimeout time.Duration `yaml:"publish_timeout" default:"5s"`
}

// DefaultConfig returns a disabled Config with the default tags applied.
func DefaultConfig() Config {
	var cfg Config
	defaults.SetDefaults(&cfg)
	return cfg
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool {
	return c.Broker != ""
}

// ReadingMessage is the JSON body published for every reading.
type ReadingMessage struct {
	Address        string    `json:"address"`
	Characteristic string    `json:"characteristic"`
	Temperature    float64   `json:"temperature_c"`
	Raw            string    `json:"raw"`
	Timestamp      time.Time `json:"timestamp"`
}

// StatusMessage is the JSON body published, retained, when the client fails.
type StatusMessage struct {
	Address   string    `json:"address"`
	State     string    `json:"state"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTSink publishes sensor events for one target to an MQTT broker.
type MQTTSink struct {
	cfg    Config
	target sensor.Target
	logger *logrus.Logger
	client publisher

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMQTTSink creates a sink for target's events. Nothing is sent until
// Connect succeeds.
func NewMQTTSink(cfg Config, target sensor.Target, logger *logrus.Logger) (*MQTTSink, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mqtt broker is not configured")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid mqtt qos %d (must be 0, 1 or 2)", cfg.QoS)
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &MQTTSink{
		cfg:    cfg,
		target: target,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		s.setConnected(true)
		logger.WithField("broker", cfg.Broker).Info("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.WithError(err).Warn("MQTT connection lost")
	})

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Connect waits for the initial broker connection, honoring ctx and Close.
func (s *MQTTSink) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return errors.New("mqtt sink closed")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()
	for {
		if token.WaitTimeout(connectPoll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			s.setConnected(true)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return errors.New("mqtt sink closed")
		default:
		}
	}
}

// IsConnected reports whether the broker connection is up.
func (s *MQTTSink) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Handle publishes a reading event, or a failed status event. Other status
// events are not published.
func (s *MQTTSink) Handle(ev sensor.Event) error {
	switch ev.Kind {
	case sensor.EventReading:
		return s.publishReading(ev.Reading)
	case sensor.EventStatus:
		if ev.Status.State != sensor.StateFailed {
			return nil
		}
		return s.publishStatus(ev.Status)
	default:
		return nil
	}
}

func (s *MQTTSink) publishReading(r sensor.Reading) error {
	ts := r.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return s.publish(s.ReadingTopic(), false, ReadingMessage{
		Address:        s.target.Address,
		Characteristic: s.target.CharacteristicUUID,
		Temperature:    r.Value,
		Raw:            r.Hex,
		Timestamp:      ts,
	})
}

func (s *MQTTSink) publishStatus(st sensor.Status) error {
	msg := StatusMessage{
		Address:   s.target.Address,
		State:     st.State.String(),
		Message:   st.Message,
		Timestamp: time.Now(),
	}
	if st.Err != nil {
		msg.Error = st.Err.Error()
	}
	return s.publish(s.StatusTopic(), true, msg)
}

func (s *MQTTSink) publish(topic string, retained bool, body any) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}

	token := s.client.Publish(topic, s.cfg.QoS, retained, data)
	if !token.WaitTimeout(s.cfg.PublishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		s.logger.WithFields(logrus.Fields{
			"topic": topic,
			"error": err,
		}).Error("Failed to publish")
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	s.logger.WithField("topic", topic).Debug("Published")
	return nil
}

// ReadingTopic is <prefix>/<address>/temperature.
func (s *MQTTSink) ReadingTopic() string {
	return s.topic("temperature")
}

// StatusTopic is <prefix>/<address>/status.
func (s *MQTTSink) StatusTopic() string {
	return s.topic("status")
}

func (s *MQTTSink) topic(leaf string) string {
	parts := []string{topicSegment(s.target.Address), leaf}
	if prefix := strings.Trim(s.cfg.TopicPrefix, "/"); prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

// topicSegment replaces the characters MQTT reserves in topic names.
func topicSegment(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}

// Close disconnects from the broker. Safe to call more than once.
func (s *MQTTSink) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.client.Disconnect(250)
	s.setConnected(false)
	s.logger.Debug("MQTT disconnected")
}

func (s *MQTTSink) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
