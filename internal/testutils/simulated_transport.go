package testutils

import (
	"context"
	"sync"

	"github.com/srg/blesense/internal/device"
)

// SimulatedTransport answers requests the way a single cooperative
// peripheral would: every request is recorded like FakeTransport does and
// the matching callback is delivered on its own goroutine.
type SimulatedTransport struct {
	*FakeTransport

	Peripheral     device.Peripheral
	Service        FakeService
	Characteristic FakeCharacteristic

	mu      sync.Mutex
	handler device.EventHandler
	values  [][]byte
	wg      sync.WaitGroup
}

// NewSimulatedTransport returns a transport exposing one peripheral with one
// service and characteristic. values are handed out one per read, or all in
// order once notifications are enabled.
func NewSimulatedTransport(p device.Peripheral, svc FakeService, char FakeCharacteristic, values ...[]byte) *SimulatedTransport {
	return &SimulatedTransport{
		FakeTransport:  NewFakeTransport(),
		Peripheral:     p,
		Service:        svc,
		Characteristic: char,
		values:         values,
	}
}

// Open reports the radio state to handler.
func (s *SimulatedTransport) Open(_ context.Context, handler device.EventHandler) error {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()

	state := device.RadioPoweredOn
	if !s.IsRadioReady() {
		state = device.RadioPoweredOff
	}
	_ = handler.OnRadioStateChanged(state)
	return nil
}

// Close waits for callbacks still in flight.
func (s *SimulatedTransport) Close() error {
	s.wg.Wait()
	return nil
}

func (s *SimulatedTransport) async(fn func(h device.EventHandler)) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(h)
	}()
}

func (s *SimulatedTransport) StartScan(serviceFilter []string) error {
	if err := s.FakeTransport.StartScan(serviceFilter); err != nil {
		return err
	}
	s.async(func(h device.EventHandler) { _ = h.OnDeviceDiscovered(s.Peripheral) })
	return nil
}

func (s *SimulatedTransport) Connect(deviceID string) error {
	if err := s.FakeTransport.Connect(deviceID); err != nil {
		return err
	}
	s.async(func(h device.EventHandler) {
		if deviceID != s.Peripheral.ID {
			_ = h.OnConnectFailed(device.Peripheral{ID: deviceID}, device.ErrNotConnected)
			return
		}
		_ = h.OnConnected(s.Peripheral)
	})
	return nil
}

func (s *SimulatedTransport) DiscoverServices(p device.Peripheral, serviceFilter []string) error {
	if err := s.FakeTransport.DiscoverServices(p, serviceFilter); err != nil {
		return err
	}
	s.async(func(h device.EventHandler) {
		_ = h.OnServicesDiscovered([]device.Service{s.Service})
	})
	return nil
}

func (s *SimulatedTransport) DiscoverCharacteristics(svc device.Service, charFilter []string) error {
	if err := s.FakeTransport.DiscoverCharacteristics(svc, charFilter); err != nil {
		return err
	}
	s.async(func(h device.EventHandler) {
		_ = h.OnCharacteristicsDiscovered([]device.Characteristic{s.Characteristic})
	})
	return nil
}

func (s *SimulatedTransport) ReadCharacteristic(c device.Characteristic) error {
	if err := s.FakeTransport.ReadCharacteristic(c); err != nil {
		return err
	}
	s.mu.Lock()
	var next []byte
	if len(s.values) > 0 {
		next, s.values = s.values[0], s.values[1:]
	}
	s.mu.Unlock()

	if next != nil {
		s.async(func(h device.EventHandler) { _ = h.OnValueUpdated(next) })
	}
	return nil
}

func (s *SimulatedTransport) SetNotify(c device.Characteristic, enabled bool) error {
	if err := s.FakeTransport.SetNotify(c, enabled); err != nil {
		return err
	}
	if !enabled {
		return nil
	}
	s.mu.Lock()
	values := s.values
	s.values = nil
	s.mu.Unlock()

	s.async(func(h device.EventHandler) {
		for _, v := range values {
			_ = h.OnValueUpdated(v)
		}
	})
	return nil
}
