package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/srg/blesense/internal/sensor"
	"github.com/srg/blesense/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeToken struct {
	done     chan struct{}
	err      error
	complete bool
}

func newToken(complete bool, err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err, complete: complete}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

var _ mqtt.Token = (*fakeToken)(nil)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu           sync.Mutex
	connectToken *fakeToken
	publishToken *fakeToken
	connected    bool
	messages     []published
	disconnects  int
}

func (p *fakePublisher) Connect() mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connectToken.complete && p.connectToken.err == nil {
		p.connected = true
	}
	return p.connectToken
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic, qos, retained, payload.([]byte)})
	return p.publishToken
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePublisher) Disconnect(uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	p.disconnects++
}

// MQTTSinkTestSuite checks what the sink sends for client events.
type MQTTSinkTestSuite struct {
	suite.Suite
	pub  *fakePublisher
	sink *MQTTSink
}

func (s *MQTTSinkTestSuite) SetupTest() {
	helper := testutils.NewTestHelper(s.T())
	target, err := sensor.NewTarget("AA:BB", "fff1", "")
	s.Require().NoError(err)

	sink, err := NewMQTTSink(Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       "test",
		TopicPrefix:    "home/sensors/",
		QoS:            1,
		PublishTimeout: 50 * time.Millisecond,
	}, target, helper.Logger)
	s.Require().NoError(err)

	s.pub = &fakePublisher{
		connectToken: newToken(true, nil),
		publishToken: newToken(true, nil),
	}
	sink.client = s.pub
	s.sink = sink
}

func (s *MQTTSinkTestSuite) TestPublishesReading() {
	// GOAL: Verify readings are published as JSON to the temperature topic
	//
	// TEST SCENARIO: connect → reading 35.59 → one QoS 1, non-retained message with all fields

	s.Require().NoError(s.sink.Connect(context.Background()))

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	reading, err := sensor.Decode([]byte{0, 0, 0, 0, 0, 0x23, 0x3b})
	s.Require().NoError(err)
	reading.ReceivedAt = at

	s.Require().NoError(s.sink.Handle(sensor.Event{Kind: sensor.EventReading, Reading: reading}))

	s.Require().Len(s.pub.messages, 1)
	msg := s.pub.messages[0]
	s.Equal("home/sensors/AA:BB/temperature", msg.topic)
	s.Equal(byte(1), msg.qos)
	s.False(msg.retained, "readings MUST NOT be retained")

	var body ReadingMessage
	s.Require().NoError(json.Unmarshal(msg.payload, &body))
	s.Equal("AA:BB", body.Address)
	s.Equal("fff1", body.Characteristic)
	s.InDelta(35.59, body.Temperature, 1e-9)
	s.Equal("0000000000233b", body.Raw)
	s.True(at.Equal(body.Timestamp))
}

func (s *MQTTSinkTestSuite) TestPublishesOnlyFailedStatus() {
	s.Require().NoError(s.sink.Connect(context.Background()))

	s.Require().NoError(s.sink.Handle(sensor.Event{Kind: sensor.EventStatus, Status: sensor.Status{
		State: sensor.StateScanning, Message: "Scanning...",
	}}))
	s.Empty(s.pub.messages, "non-failed statuses MUST NOT be published")

	s.Require().NoError(s.sink.Handle(sensor.Event{Kind: sensor.EventStatus, Status: sensor.Status{
		State: sensor.StateFailed, Message: "Bluetooth is not ready.", Err: sensor.ErrRadioUnavailable,
	}}))

	s.Require().Len(s.pub.messages, 1)
	msg := s.pub.messages[0]
	s.Equal("home/sensors/AA:BB/status", msg.topic)
	s.True(msg.retained, "status MUST be retained")

	var body StatusMessage
	s.Require().NoError(json.Unmarshal(msg.payload, &body))
	s.Equal("Failed", body.State)
	s.Equal("Bluetooth is not ready.", body.Message)
	s.Equal(sensor.ErrRadioUnavailable.Error(), body.Error)
}

func (s *MQTTSinkTestSuite) TestPublishBeforeConnect() {
	err := s.sink.Handle(sensor.Event{Kind: sensor.EventReading, Reading: sensor.Reading{Value: 1}})
	s.ErrorIs(err, ErrNotConnected)
	s.Empty(s.pub.messages)
}

func (s *MQTTSinkTestSuite) TestPublishTimeoutAndError() {
	s.Require().NoError(s.sink.Connect(context.Background()))

	s.pub.publishToken = newToken(false, nil)
	err := s.sink.Handle(sensor.Event{Kind: sensor.EventReading})
	s.ErrorContains(err, "publish timeout")

	boom := errors.New("broker rejected")
	s.pub.publishToken = newToken(true, boom)
	err = s.sink.Handle(sensor.Event{Kind: sensor.EventReading})
	s.ErrorIs(err, boom)
}

func (s *MQTTSinkTestSuite) TestConnectError() {
	boom := errors.New("connection refused")
	s.pub.connectToken = newToken(true, boom)

	err := s.sink.Connect(context.Background())
	s.ErrorIs(err, boom)
	s.False(s.sink.IsConnected())
}

func (s *MQTTSinkTestSuite) TestConnectHonorsContext() {
	s.pub.connectToken = newToken(false, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.ErrorIs(s.sink.Connect(ctx), context.DeadlineExceeded)
}

func (s *MQTTSinkTestSuite) TestClose() {
	s.Require().NoError(s.sink.Connect(context.Background()))
	s.sink.Close()
	s.sink.Close()

	s.False(s.sink.IsConnected())
	s.Equal(2, s.pub.disconnects)
	s.Error(s.sink.Connect(context.Background()), "Connect after Close MUST fail")
}

func TestMQTTSinkTestSuite(t *testing.T) {
	suite.Run(t, new(MQTTSinkTestSuite))
}

func TestNewMQTTSinkValidation(t *testing.T) {
	target := sensor.DefaultTarget()

	_, err := NewMQTTSink(Config{}, target, nil)
	assert.Error(t, err, "missing broker MUST be rejected")

	_, err = NewMQTTSink(Config{Broker: "tcp://localhost:1883", QoS: 3}, target, nil)
	assert.ErrorContains(t, err, "qos")
}

func TestTopics(t *testing.T) {
	target, err := sensor.NewTarget("a/b+c#", "fff1", "")
	require.NoError(t, err)

	sink, err := NewMQTTSink(Config{Broker: "tcp://localhost:1883"}, target, nil)
	require.NoError(t, err)
	assert.Equal(t, "a_b_c_/temperature", sink.ReadingTopic())
	assert.Equal(t, "a_b_c_/status", sink.StatusTopic())
}
