package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/bledb"
	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/groutine"
)

const (
	// DefaultConnectTimeout bounds a single Dial.
	DefaultConnectTimeout = 30 * time.Second

	closeWait = 2 * time.Second
)

// radio is the part of ble.Device the transport uses.
type radio interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, a ble.Addr) (ble.Client, error)
	Stop() error
}

// gattClient is the part of ble.Client the transport uses.
type gattClient interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// Option configures a Transport.
type Option func(*Transport)

// WithConnectTimeout bounds each Dial. Zero leaves dialing unbounded.
func WithConnectTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.connectTimeout = d
	}
}

// Transport implements device.Transport over go-ble.
//
// Every request starts the blocking go-ble call on a named goroutine and
// returns at once; the result is delivered to the handler given to Open.
// The handler is never called with the transport lock held.
type Transport struct {
	logger         *logrus.Logger
	connectTimeout time.Duration

	mu         sync.Mutex
	handler    device.EventHandler
	dev        radio
	ready      bool
	ctx        context.Context
	cancel     context.CancelFunc
	scanCancel context.CancelFunc
	dialCancel context.CancelFunc
	dialSeq    uint64 // identifies the dial dialCancel belongs to
	client     gattClient
	peer       device.Peripheral

	dial  func(ctx context.Context, addr string) (gattClient, error)
	group groutine.Group
}

var _ device.Transport = (*Transport)(nil)

// NewTransport creates an unopened transport.
func NewTransport(logger *logrus.Logger, opts ...Option) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	t := &Transport{
		logger:         logger,
		connectTimeout: DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.dial = t.dialDevice
	return t
}

// Open creates the platform device and reports the radio state to handler.
// A powered-off adapter is not an error: the handler is told
// RadioPoweredOff and IsRadioReady stays false.
func (t *Transport) Open(ctx context.Context, handler device.EventHandler) error {
	var r radio
	dev, err := DeviceFactory()
	switch {
	case err == nil:
		r = dev
	case errors.Is(NormalizeError(err), device.ErrBluetoothOff):
		t.logger.WithError(err).Warn("Bluetooth adapter is powered off")
	default:
		return fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	return t.open(ctx, handler, r)
}

func (t *Transport) open(ctx context.Context, handler device.EventHandler, dev radio) error {
	t.mu.Lock()
	if t.handler != nil {
		t.mu.Unlock()
		return device.ErrAlreadyConnected
	}
	t.handler = handler
	t.dev = dev
	t.ready = dev != nil
	t.ctx, t.cancel = context.WithCancel(ctx)
	ready := t.ready
	t.mu.Unlock()

	if ready {
		t.deliver("OnRadioStateChanged", handler.OnRadioStateChanged(device.RadioPoweredOn))
	} else {
		t.deliver("OnRadioStateChanged", handler.OnRadioStateChanged(device.RadioPoweredOff))
	}
	return nil
}

// IsRadioReady reports whether the adapter was opened and is powered on.
func (t *Transport) IsRadioReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// StartScan scans until StopScan, reporting advertisements that match
// serviceFilter (all when empty).
func (t *Transport) StartScan(serviceFilter []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkOpenLocked(); err != nil {
		return err
	}
	if t.scanCancel != nil {
		t.scanCancel()
	}

	scanCtx, cancel := context.WithCancel(t.ctx)
	t.scanCancel = cancel
	dev, h := t.dev, t.handler
	filter := bledb.NormalizeUUIDs(serviceFilter)

	t.logger.WithField("filter", filter).Debug("Starting BLE scan")
	t.group.Go(t.ctx, "ble-scan", func(context.Context) {
		err := dev.Scan(scanCtx, false, func(a ble.Advertisement) {
			adv := NewBLEAdvertisement(a)
			if !matchesServiceFilter(adv.Services(), filter) {
				return
			}
			t.deliver("OnDeviceDiscovered", h.OnDeviceDiscovered(device.PeripheralFromAdvertisement(adv)))
		})
		if err != nil && scanCtx.Err() == nil {
			t.reportFailure("scan", err)
		}
	})
	return nil
}

// StopScan stops a running scan. Stopping when not scanning is a no-op.
func (t *Transport) StopScan() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.scanCancel != nil {
		t.scanCancel()
		t.scanCancel = nil
		t.logger.Debug("BLE scan stopped")
	}
	return nil
}

// Connect dials deviceID and reports OnConnected or OnConnectFailed.
func (t *Transport) Connect(deviceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkOpenLocked(); err != nil {
		return err
	}
	if t.client != nil || t.dialCancel != nil {
		return device.ErrAlreadyConnected
	}

	var dialCtx context.Context
	var cancel context.CancelFunc
	if t.connectTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(t.ctx, t.connectTimeout)
	} else {
		dialCtx, cancel = context.WithCancel(t.ctx)
	}
	t.dialSeq++
	seq := t.dialSeq
	t.dialCancel = cancel
	h := t.handler
	peer := device.Peripheral{ID: deviceID}

	t.logger.WithField("address", deviceID).Debug("Dialing BLE device...")
	t.group.Go(t.ctx, "ble-connect", func(context.Context) {
		defer cancel()

		client, err := t.dial(dialCtx, deviceID)
		if err == nil && dialCtx.Err() != nil {
			// connected after the deadline
			if cerr := client.CancelConnection(); cerr != nil {
				t.logger.WithError(cerr).Debug("Failed to cancel late connection")
			}
			client, err = nil, dialCtx.Err()
		}

		t.mu.Lock()
		current := t.finishDialLocked(seq)
		if err != nil || !current {
			t.mu.Unlock()
			if err == nil {
				// cancelled or superseded while dialing
				if cerr := client.CancelConnection(); cerr != nil {
					t.logger.WithError(cerr).Debug("Failed to cancel late connection")
				}
				return
			}
			if !current {
				t.logger.WithError(err).Debug("Dropping result of a cancelled dial")
				return
			}
			err = NormalizeError(err)
			t.logger.WithFields(logrus.Fields{
				"address": deviceID,
				"error":   err,
			}).Error("Failed to dial BLE device")
			t.deliver("OnConnectFailed", h.OnConnectFailed(peer, err))
			return
		}
		t.client = client
		t.peer = peer
		t.mu.Unlock()

		t.watchDisconnect(client)
		t.logger.WithField("address", deviceID).Info("BLE device connected")
		t.deliver("OnConnected", h.OnConnected(peer))
	})
	return nil
}

// watchDisconnect reports OnDisconnected when a client that exposes a
// Disconnected channel drops while still current.
func (t *Transport) watchDisconnect(client gattClient) {
	dc, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		t.logger.Debug("Client does not expose Disconnected(), link loss is detected by request errors only")
		return
	}

	ctx := t.ctx
	groutine.Go(ctx, "ble-connection-monitor", func(context.Context) {
		select {
		case <-dc.Disconnected():
			t.handleDisconnect(client, device.ErrNotConnected)
		case <-ctx.Done():
		}
	})
}

func (t *Transport) handleDisconnect(client gattClient, cause error) {
	t.mu.Lock()
	if t.client != client {
		t.mu.Unlock()
		return
	}
	t.client = nil
	peer, h := t.peer, t.handler
	t.mu.Unlock()

	t.logger.WithField("address", peer.ID).Warn("BLE device disconnected")
	t.deliver("OnDisconnected", h.OnDisconnected(peer, cause))
}

// CancelConnection aborts a pending dial or drops the established link.
func (t *Transport) CancelConnection(deviceID string) error {
	t.mu.Lock()
	if t.dialCancel != nil {
		t.dialCancel()
		t.dialCancel = nil
	}
	client := t.client
	if client != nil && t.peer.ID == deviceID {
		t.client = nil
	} else {
		client = nil
	}
	t.mu.Unlock()

	if client == nil {
		return nil
	}
	t.group.Go(context.Background(), "ble-disconnect", func(context.Context) {
		if err := NormalizeError(client.CancelConnection()); err != nil && !errors.Is(err, device.ErrNotConnected) {
			t.logger.WithError(err).Warn("Failed to cancel connection")
		}
	})
	return nil
}

// DiscoverServices reports the services matching serviceFilter (all when empty).
func (t *Transport) DiscoverServices(p device.Peripheral, serviceFilter []string) error {
	client, h, err := t.connected()
	if err != nil {
		return err
	}
	filter, err := parseUUIDs(serviceFilter)
	if err != nil {
		return err
	}

	t.group.Go(context.Background(), "ble-discover-services", func(context.Context) {
		svcs, err := client.DiscoverServices(filter)
		if err != nil {
			if t.requestFailed(client, "discover services", err) {
				return
			}
			svcs = nil
		}
		t.logger.WithFields(logrus.Fields{
			"address":  p.ID,
			"services": len(svcs),
		}).Debug("Services discovered")
		t.deliver("OnServicesDiscovered", h.OnServicesDiscovered(wrapServices(svcs)))
	})
	return nil
}

// DiscoverCharacteristics reports the characteristics of s matching charFilter.
func (t *Transport) DiscoverCharacteristics(s device.Service, charFilter []string) error {
	svc, ok := s.(*BLEService)
	if !ok {
		return fmt.Errorf("%w: service %T was not discovered by this transport", device.ErrUnsupported, s)
	}
	client, h, err := t.connected()
	if err != nil {
		return err
	}
	filter, err := parseUUIDs(charFilter)
	if err != nil {
		return err
	}

	t.group.Go(context.Background(), "ble-discover-characteristics", func(context.Context) {
		chars, err := client.DiscoverCharacteristics(filter, svc.svc)
		if err != nil {
			if t.requestFailed(client, "discover characteristics", err) {
				return
			}
			chars = nil
		}
		t.deliver("OnCharacteristicsDiscovered", h.OnCharacteristicsDiscovered(wrapCharacteristics(chars)))
	})
	return nil
}

// ReadCharacteristic reads c once and reports the value through OnValueUpdated.
func (t *Transport) ReadCharacteristic(c device.Characteristic) error {
	char, ok := c.(*BLECharacteristic)
	if !ok {
		return fmt.Errorf("%w: characteristic %T was not discovered by this transport", device.ErrUnsupported, c)
	}
	client, h, err := t.connected()
	if err != nil {
		return err
	}

	t.group.Go(context.Background(), "ble-read", func(context.Context) {
		data, err := client.ReadCharacteristic(char.char)
		if err != nil {
			t.requestFailed(client, "read", err)
			return
		}
		t.deliver("OnValueUpdated", h.OnValueUpdated(data))
	})
	return nil
}

// SetNotify enables or disables notifications (or indications) on c.
// Every notification is reported through OnValueUpdated.
func (t *Transport) SetNotify(c device.Characteristic, enabled bool) error {
	char, ok := c.(*BLECharacteristic)
	if !ok {
		return fmt.Errorf("%w: characteristic %T was not discovered by this transport", device.ErrUnsupported, c)
	}
	client, h, err := t.connected()
	if err != nil {
		return err
	}

	props := char.Properties()
	indicate := !props.Has(device.PropNotify) && props.Has(device.PropIndicate)

	t.group.Go(context.Background(), "ble-subscribe", func(context.Context) {
		if !enabled {
			if err := client.Unsubscribe(char.char, indicate); err != nil {
				t.logger.WithError(NormalizeError(err)).Debug("Failed to unsubscribe")
			}
			return
		}

		if char.char.CCCD == nil {
			if err := t.discoverCCCD(client, char.char); err != nil {
				t.requestFailed(client, "discover descriptors", err)
				return
			}
		}

		err := client.Subscribe(char.char, indicate, func(data []byte) {
			t.deliver("OnValueUpdated", h.OnValueUpdated(append([]byte(nil), data...)))
		})
		if err != nil {
			t.requestFailed(client, "subscribe", err)
			return
		}
		t.logger.WithField("uuid", char.UUID()).Info("Subscribed to notifications")
	})
	return nil
}

func (t *Transport) discoverCCCD(client gattClient, c *ble.Characteristic) error {
	descs, err := client.DiscoverDescriptors(nil, c)
	if err != nil {
		return err
	}
	for _, d := range descs {
		t.logger.WithFields(logrus.Fields{
			"uuid": d.UUID.String(),
			"name": bledb.LookupDescriptor(d.UUID.String()),
		}).Debug("Discovered descriptor")
		if d.UUID.Equal(ble.ClientCharacteristicConfigUUID) {
			c.CCCD = d
			return nil
		}
	}
	return &device.NotFoundError{Resource: "descriptor", UUIDs: []string{"2902"}}
}

// Close stops scanning, drops the connection and stops the platform device.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.cancel == nil {
		t.mu.Unlock()
		return nil
	}
	if t.scanCancel != nil {
		t.scanCancel()
		t.scanCancel = nil
	}
	if t.dialCancel != nil {
		t.dialCancel()
		t.dialCancel = nil
	}
	client, dev := t.client, t.dev
	t.client = nil
	t.ready = false
	t.cancel()
	t.mu.Unlock()

	if client != nil {
		if err := client.CancelConnection(); err != nil {
			t.logger.WithError(NormalizeError(err)).Debug("Failed to cancel connection on close")
		}
	}

	done := make(chan struct{})
	go func() {
		t.group.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeWait):
		t.logger.Warn("Timed out waiting for BLE requests to finish")
	}

	if dev != nil {
		if err := dev.Stop(); err != nil {
			return fmt.Errorf("failed to stop BLE device: %w", NormalizeError(err))
		}
	}
	return nil
}

func (t *Transport) dialDevice(ctx context.Context, addr string) (gattClient, error) {
	t.mu.Lock()
	dev := t.dev
	t.mu.Unlock()

	client, err := dev.Dial(ctx, ble.NewAddr(addr))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (t *Transport) checkOpenLocked() error {
	if t.handler == nil || t.ctx == nil || t.ctx.Err() != nil {
		return device.ErrNotInitialized
	}
	if !t.ready {
		return device.ErrBluetoothOff
	}
	return nil
}

func (t *Transport) connected() (gattClient, device.EventHandler, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkOpenLocked(); err != nil {
		return nil, nil, err
	}
	if t.client == nil {
		return nil, nil, device.ErrNotConnected
	}
	return t.client, t.handler, nil
}

// finishDialLocked releases the pending dial if it is still attempt seq. It
// reports false when CancelConnection, Close or a newer Connect got there
// first.
func (t *Transport) finishDialLocked(seq uint64) bool {
	if t.dialCancel == nil || t.dialSeq != seq {
		return false
	}
	t.dialCancel = nil
	return true
}

// requestFailed logs a failed GATT request. A request failing because the
// link is gone is reported as a disconnect; returns true in that case.
func (t *Transport) requestFailed(client gattClient, op string, err error) bool {
	err = NormalizeError(err)
	t.logger.WithFields(logrus.Fields{
		"op":    op,
		"error": err,
	}).Error("BLE request failed")

	if errors.Is(err, device.ErrNotConnected) {
		t.handleDisconnect(client, err)
		return true
	}
	if errors.Is(err, device.ErrBluetoothOff) {
		t.reportFailure(op, err)
		return true
	}
	return false
}

// reportFailure turns an adapter-level failure into a radio state change.
func (t *Transport) reportFailure(op string, err error) {
	err = NormalizeError(err)
	if !errors.Is(err, device.ErrBluetoothOff) {
		t.logger.WithFields(logrus.Fields{
			"op":    op,
			"error": err,
		}).Error("BLE operation failed")
		return
	}

	t.mu.Lock()
	t.ready = false
	h := t.handler
	t.mu.Unlock()

	t.logger.WithField("op", op).Warn("Bluetooth adapter powered off")
	t.deliver("OnRadioStateChanged", h.OnRadioStateChanged(device.RadioPoweredOff))
}

// deliver logs a handler's rejection of an event.
func (t *Transport) deliver(callback string, err error) {
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"callback": callback,
			"error":    err,
		}).Debug("Handler rejected event")
	}
}
