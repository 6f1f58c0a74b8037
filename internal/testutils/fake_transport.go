package testutils

import (
	"sync"

	"github.com/srg/blesense/internal/device"
)

// Transport method names as recorded by FakeTransport.
const (
	CallStartScan               = "StartScan"
	CallStopScan                = "StopScan"
	CallConnect                 = "Connect"
	CallCancelConnection        = "CancelConnection"
	CallDiscoverServices        = "DiscoverServices"
	CallDiscoverCharacteristics = "DiscoverCharacteristics"
	CallReadCharacteristic      = "ReadCharacteristic"
	CallSetNotify               = "SetNotify"
)

// Call is one recorded transport request.
type Call struct {
	Method string
	Args   []any
}

// FakeTransport is a device.Transport that records every request and never
// calls back. Tests drive the handler side themselves.
type FakeTransport struct {
	mu     sync.Mutex
	ready  bool
	errors map[string]error
	calls  []Call
}

var _ device.Transport = (*FakeTransport)(nil)

// NewFakeTransport returns a fake with the radio powered on.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{ready: true, errors: map[string]error{}}
}

// SetRadioReady controls IsRadioReady.
func (f *FakeTransport) SetRadioReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
}

// FailWith makes every later call to method return err. A nil err clears it.
func (f *FakeTransport) FailWith(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errors, method)
		return
	}
	f.errors[method] = err
}

// Calls returns a copy of every recorded request in order.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded requests to one method.
func (f *FakeTransport) CallsTo(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times method was called.
func (f *FakeTransport) Count(method string) int {
	return len(f.CallsTo(method))
}

// Methods returns the recorded method names in order.
func (f *FakeTransport) Methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method
	}
	return out
}

// ClearCalls forgets the recorded requests.
func (f *FakeTransport) ClearCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeTransport) record(method string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: method, Args: args})
	return f.errors[method]
}

func (f *FakeTransport) IsRadioReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *FakeTransport) StartScan(serviceFilter []string) error {
	return f.record(CallStartScan, serviceFilter)
}

func (f *FakeTransport) StopScan() error {
	return f.record(CallStopScan)
}

func (f *FakeTransport) Connect(deviceID string) error {
	return f.record(CallConnect, deviceID)
}

func (f *FakeTransport) CancelConnection(deviceID string) error {
	return f.record(CallCancelConnection, deviceID)
}

func (f *FakeTransport) DiscoverServices(p device.Peripheral, serviceFilter []string) error {
	return f.record(CallDiscoverServices, p, serviceFilter)
}

func (f *FakeTransport) DiscoverCharacteristics(s device.Service, charFilter []string) error {
	return f.record(CallDiscoverCharacteristics, s, charFilter)
}

func (f *FakeTransport) ReadCharacteristic(c device.Characteristic) error {
	return f.record(CallReadCharacteristic, c)
}

func (f *FakeTransport) SetNotify(c device.Characteristic, enabled bool) error {
	return f.record(CallSetNotify, c, enabled)
}

// FakeService is a device.Service with a fixed UUID.
type FakeService struct {
	ID string
}

func (s FakeService) UUID() string { return s.ID }

// FakeCharacteristic is a device.Characteristic with fixed UUID and properties.
type FakeCharacteristic struct {
	ID    string
	Props device.Property
}

func (c FakeCharacteristic) UUID() string                { return c.ID }
func (c FakeCharacteristic) Properties() device.Property { return c.Props }
