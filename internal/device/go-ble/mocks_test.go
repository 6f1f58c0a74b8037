package goble

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/blesense/internal/device"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRadio struct {
	mock.Mock
}

func (m *mockRadio) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return m.Called(ctx, allowDup, h).Error(0)
}

func (m *mockRadio) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a)
	c, _ := args.Get(0).(ble.Client)
	return c, args.Error(1)
}

func (m *mockRadio) Stop() error {
	return m.Called().Error(0)
}

type mockClient struct {
	mock.Mock
	disconnected chan struct{}
}

func newMockClient() *mockClient {
	return &mockClient{disconnected: make(chan struct{})}
}

func (m *mockClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	s, _ := args.Get(0).([]*ble.Service)
	return s, args.Error(1)
}

func (m *mockClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	c, _ := args.Get(0).([]*ble.Characteristic)
	return c, args.Error(1)
}

func (m *mockClient) DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error) {
	args := m.Called(filter, c)
	d, _ := args.Get(0).([]*ble.Descriptor)
	return d, args.Error(1)
}

func (m *mockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *mockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *mockClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// fakeAdv is a minimal ble.Advertisement.
type fakeAdv struct {
	name     string
	addr     string
	rssi     int
	services []ble.UUID
}

func (a fakeAdv) LocalName() string              { return a.name }
func (a fakeAdv) ManufacturerData() []byte       { return nil }
func (a fakeAdv) ServiceData() []ble.ServiceData { return nil }
func (a fakeAdv) Services() []ble.UUID           { return a.services }
func (a fakeAdv) OverflowService() []ble.UUID    { return nil }
func (a fakeAdv) TxPowerLevel() int              { return 127 }
func (a fakeAdv) Connectable() bool              { return true }
func (a fakeAdv) SolicitedService() []ble.UUID   { return nil }
func (a fakeAdv) RSSI() int                      { return a.rssi }
func (a fakeAdv) Addr() ble.Addr                 { return ble.NewAddr(a.addr) }

// recordingHandler is a device.EventHandler that records callbacks in order.
type recordingHandler struct {
	mu       sync.Mutex
	calls    chan string
	radio    []device.RadioState
	found    []device.Peripheral
	services []device.Service
	chars    []device.Characteristic
	values   [][]byte
	errs     []error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{calls: make(chan string, 64)}
}

func (h *recordingHandler) record(name string, fn func()) error {
	h.mu.Lock()
	fn()
	h.mu.Unlock()
	h.calls <- name
	return nil
}

func (h *recordingHandler) OnRadioStateChanged(s device.RadioState) error {
	return h.record("OnRadioStateChanged", func() { h.radio = append(h.radio, s) })
}

func (h *recordingHandler) OnDeviceDiscovered(p device.Peripheral) error {
	return h.record("OnDeviceDiscovered", func() { h.found = append(h.found, p) })
}

func (h *recordingHandler) OnConnected(device.Peripheral) error {
	return h.record("OnConnected", func() {})
}

func (h *recordingHandler) OnConnectFailed(_ device.Peripheral, err error) error {
	return h.record("OnConnectFailed", func() { h.errs = append(h.errs, err) })
}

func (h *recordingHandler) OnServicesDiscovered(s []device.Service) error {
	return h.record("OnServicesDiscovered", func() { h.services = s })
}

func (h *recordingHandler) OnCharacteristicsDiscovered(c []device.Characteristic) error {
	return h.record("OnCharacteristicsDiscovered", func() { h.chars = c })
}

func (h *recordingHandler) OnValueUpdated(data []byte) error {
	return h.record("OnValueUpdated", func() { h.values = append(h.values, data) })
}

func (h *recordingHandler) OnDisconnected(_ device.Peripheral, err error) error {
	return h.record("OnDisconnected", func() { h.errs = append(h.errs, err) })
}

// waitFor blocks until the handler receives the named callback.
func (h *recordingHandler) waitFor(t *testing.T, name string) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case got := <-h.calls:
			if got == name {
				return
			}
		case <-deadline:
			require.FailNow(t, "callback not received", name)
		}
	}
}
