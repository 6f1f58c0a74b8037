package sensor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/bledb"
	"github.com/srg/blesense/internal/device"
)

// Client monitors one characteristic on one peripheral.
//
// All exported methods, transport callbacks and timer callbacks are
// serialized by an internal mutex. No method blocks on the transport: every
// request is fire-and-forget and its outcome arrives through the
// device.EventHandler methods.
type Client struct {
	target    Target
	transport device.Transport
	opts      Options
	logger    *logrus.Logger

	mu         sync.Mutex
	state      State
	status     Status
	latest     *Reading
	peripheral *device.Peripheral
	char       device.Characteristic
	notifying  bool
	pending    int // services still owing a characteristic report
	gen        uint64
	timer      *time.Timer
	closed     bool

	subs   *hashmap.Map[uint64, *subscriber]
	nextID atomic.Uint64
}

var _ device.EventHandler = (*Client)(nil)

// New creates an idle client. A nil opts uses DefaultOptions; a nil logger
// uses logrus.New.
func New(target Target, transport device.Transport, opts *Options, logger *logrus.Logger) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		target:    target,
		transport: transport,
		opts:      *opts,
		logger:    logger,
		state:     StateIdle,
		status:    Status{State: StateIdle, Message: "Ready"},
		subs:      hashmap.New[uint64, *subscriber](),
	}
}

// Target returns the monitored target.
func (c *Client) Target() Target {
	return c.target
}

// CurrentStatus returns the latest status.
func (c *Client) CurrentStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LatestReading returns the most recent reading, if any.
func (c *Client) LatestReading() (Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return Reading{}, false
	}
	return *c.latest, true
}

// StartScanning begins looking for the target. Allowed from Idle and Failed.
func (c *Client) StartScanning() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateIdle && c.state != StateFailed {
		return &TransitionError{From: c.state, Event: "StartScanning"}
	}

	c.clearLinkLocked()

	if !c.transport.IsRadioReady() {
		c.failLocked(ErrRadioUnavailable, "Bluetooth is not ready.", false)
		return ErrRadioUnavailable
	}

	c.transitionLocked(StateScanning, "Scanning...")
	c.armTimerLocked(c.opts.ScanTimeout, "scan")
	return c.requestLocked("StartScan", ErrRadioUnavailable, func() error {
		return c.transport.StartScan(nil)
	})
}

// OnDeviceDiscovered handles one scan result. Only an exact address match
// has an effect; results outside Scanning are ignored.
func (c *Client) OnDeviceDiscovered(p device.Peripheral) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateScanning || p.ID != c.target.Address {
		return nil
	}

	c.logger.WithFields(logrus.Fields{
		"address": p.ID,
		"name":    p.Name,
		"rssi":    p.RSSI,
	}).Info("Target device found")

	if err := c.transport.StopScan(); err != nil {
		c.logger.WithError(err).Debug("Failed to stop scan")
	}

	found := p
	c.peripheral = &found
	c.transitionLocked(StateConnecting, "Found device, connecting to "+p.DisplayName())
	c.armTimerLocked(c.opts.ConnectTimeout, "connect")
	return c.requestLocked("Connect", ErrConnectFailed, func() error {
		return c.transport.Connect(p.ID)
	})
}

// OnConnected handles a completed connection to the pending device.
func (c *Client) OnConnected(p device.Peripheral) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateConnecting || !c.isPendingLocked(p) {
		return &TransitionError{From: c.state, Event: "OnConnected"}
	}

	if p.Name == "" {
		p.Name = c.peripheral.Name
	}
	connected := p
	c.peripheral = &connected

	c.transitionLocked(StateConnected, "Connected to "+p.DisplayName())
	c.transitionLocked(StateDiscoveringServices, "Discovering services on "+p.DisplayName())
	c.armTimerLocked(c.opts.DiscoveryTimeout, "service discovery")

	filter := c.target.serviceFilter()
	return c.requestLocked("DiscoverServices", ErrTransport, func() error {
		return c.transport.DiscoverServices(connected, filter)
	})
}

// OnConnectFailed handles a failed connection attempt.
func (c *Client) OnConnectFailed(p device.Peripheral, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateConnecting || !c.isPendingLocked(p) {
		return &TransitionError{From: c.state, Event: "OnConnectFailed"}
	}

	c.failLocked(wrapReason(ErrConnectFailed, err), "Failed to connect to "+p.DisplayName(), false)
	return nil
}

// OnServicesDiscovered requests characteristic discovery on every reported
// service.
func (c *Client) OnServicesDiscovered(services []device.Service) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateDiscoveringServices {
		return &TransitionError{From: c.state, Event: "OnServicesDiscovered"}
	}

	if len(services) == 0 {
		c.failLocked(&device.NotFoundError{Resource: "service", UUIDs: c.target.serviceFilter()}, "No services found.", true)
		return nil
	}

	c.pending = len(services)
	filter := []string{c.target.CharacteristicUUID}
	for _, svc := range services {
		c.logger.WithFields(logrus.Fields{
			"service": svc.UUID(),
			"name":    bledb.LookupService(svc.UUID()),
		}).Info("Discovered service")

		msg := "Discovered service: " + svc.UUID()
		if c.state == StateDiscoveringCharacteristics {
			c.setMessageLocked(msg, nil)
		} else {
			c.transitionLocked(StateDiscoveringCharacteristics, msg)
			c.armTimerLocked(c.opts.DiscoveryTimeout, "characteristic discovery")
		}

		if err := c.requestLocked("DiscoverCharacteristics", ErrTransport, func() error {
			return c.transport.DiscoverCharacteristics(svc, filter)
		}); err != nil {
			return err
		}
	}
	return nil
}

// OnCharacteristicsDiscovered reads or subscribes to the first characteristic
// matching the target.
func (c *Client) OnCharacteristicsDiscovered(chars []device.Characteristic) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	switch c.state {
	case StateDiscoveringCharacteristics:
	case StateReadingOrSubscribing, StateReceiving:
		// a later service reported after the target was already found
		return nil
	default:
		return &TransitionError{From: c.state, Event: "OnCharacteristicsDiscovered"}
	}

	c.pending--

	for _, ch := range chars {
		if !bledb.EqualUUID(ch.UUID(), c.target.CharacteristicUUID) {
			continue
		}
		return c.useCharacteristicLocked(ch)
	}

	if c.pending <= 0 {
		c.failLocked(&device.NotFoundError{
			Resource: "characteristic",
			UUIDs:    []string{c.target.CharacteristicUUID},
		}, "Characteristic not found.", true)
	}
	return nil
}

func (c *Client) useCharacteristicLocked(ch device.Characteristic) error {
	props := ch.Properties()
	read := props.CanRead()
	notify := props.CanNotify()
	if read && notify && c.opts.PreferNotify {
		read = false
	}

	log := c.logger.WithFields(logrus.Fields{
		"uuid":       ch.UUID(),
		"name":       bledb.LookupCharacteristic(ch.UUID()),
		"properties": props.String(),
	})

	switch {
	case read:
		log.Info("Reading characteristic")
		c.char = ch
		c.transitionLocked(StateReadingOrSubscribing, fmt.Sprintf("Characteristic %s is readable", ch.UUID()))
		c.armTimerLocked(c.opts.ReadTimeout, "read")
		return c.requestLocked("ReadCharacteristic", ErrTransport, func() error {
			return c.transport.ReadCharacteristic(ch)
		})
	case notify:
		log.Info("Subscribing to characteristic")
		c.char = ch
		c.transitionLocked(StateReadingOrSubscribing, fmt.Sprintf("Characteristic %s supports notifications. Subscribing...", ch.UUID()))
		c.armTimerLocked(c.opts.ReadTimeout, "subscribe")
		return c.requestLocked("SetNotify", ErrTransport, func() error {
			if err := c.transport.SetNotify(ch, true); err != nil {
				return err
			}
			c.notifying = true
			return nil
		})
	default:
		c.failLocked(fmt.Errorf("%w: %s has %s", ErrUnsupportedCharacteristic, ch.UUID(), props), "Characteristic is neither readable nor notifiable.", true)
		return nil
	}
}

// OnValueUpdated decodes a characteristic value. Values outside
// ReadingOrSubscribing and Receiving are ignored. A payload that fails to
// decode is reported in the status but is not fatal.
func (c *Client) OnValueUpdated(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateReadingOrSubscribing && c.state != StateReceiving {
		c.logger.WithField("state", c.state).Debug("Ignoring value outside receiving states")
		return nil
	}

	reading, err := Decode(data)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to decode value")
		c.setMessageLocked("Error in processing data.", err)
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"hex":   reading.Hex,
		"value": reading.Value,
	}).Debug("Received value")

	msg := "Received raw data: " + reading.Hex
	if c.state == StateReceiving {
		c.setMessageLocked(msg, nil)
	} else {
		c.transitionLocked(StateReceiving, msg)
	}

	c.latest = &reading
	c.publishLocked(Event{Kind: EventReading, Status: c.status, Reading: reading})
	return nil
}

// OnRadioStateChanged tracks the adapter power state. Losing the radio in
// any active state fails the client.
func (c *Client) OnRadioStateChanged(state device.RadioState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.logger.WithField("radio", state).Debug("Radio state changed")

	if c.state.Active() {
		if !state.Ready() {
			c.failLocked(fmt.Errorf("%w: radio is %s", ErrRadioLost, state), "Bluetooth is Off.", true)
		}
		return nil
	}

	switch state {
	case device.RadioPoweredOn:
		c.setMessageLocked("Bluetooth is On.", c.status.Err)
	case device.RadioPoweredOff:
		c.setMessageLocked("Bluetooth is Off.", c.status.Err)
	default:
		c.setMessageLocked("Unknown Bluetooth status.", c.status.Err)
	}
	return nil
}

// OnDisconnected fails the client when the tracked peripheral drops an
// established link. Other disconnects are ignored.
func (c *Client) OnDisconnected(p device.Peripheral, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.isPendingLocked(p) {
		return nil
	}

	switch {
	case c.state == StateConnecting:
		c.failLocked(wrapReason(ErrConnectFailed, err), "Failed to connect to "+p.DisplayName(), false)
	case c.state.Linked():
		c.notifying = false
		c.failLocked(wrapReason(ErrConnectionLost, err), "Disconnected from "+p.DisplayName(), false)
	}
	return nil
}

// Reset releases everything the client holds on the transport and returns
// it to Idle. The latest reading is kept.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.resetLocked()
	return nil
}

// Close resets the client and closes every observer channel. Every later
// call returns ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.resetLocked()
	c.closed = true
	c.closeSubscribersLocked()
	return nil
}

func (c *Client) resetLocked() {
	c.releaseLocked()
	c.clearLinkLocked()
	c.transitionLocked(StateIdle, "Ready")
}

// transitionLocked moves to a new state. Entering a state starts a new
// generation, which invalidates pending timers and delayed requests.
func (c *Client) transitionLocked(to State, msg string) {
	c.enterLocked(to, msg, nil)
}

func (c *Client) enterLocked(to State, msg string, err error) {
	from := c.state
	c.state = to
	c.gen++
	c.stopTimerLocked()

	c.logger.WithFields(logrus.Fields{
		"address": c.target.Address,
		"from":    from,
		"to":      to,
	}).Debug("State transition")

	c.setMessageLocked(msg, err)
}

func (c *Client) setMessageLocked(msg string, err error) {
	c.status = Status{State: c.state, Message: msg, Err: err}
	c.publishLocked(Event{Kind: EventStatus, Status: c.status})
}

func (c *Client) failLocked(reason error, msg string, release bool) {
	if release {
		c.releaseLocked()
	}

	c.logger.WithFields(logrus.Fields{
		"address": c.target.Address,
		"state":   c.state,
	}).WithError(reason).Error("Sensor client failed")

	c.enterLocked(StateFailed, msg, reason)
}

// releaseLocked undoes whatever the current state has asked the transport for.
func (c *Client) releaseLocked() {
	if c.state == StateScanning {
		if err := c.transport.StopScan(); err != nil {
			c.logger.WithError(err).Debug("Failed to stop scan")
		}
	}
	if c.notifying && c.char != nil {
		if err := c.transport.SetNotify(c.char, false); err != nil {
			c.logger.WithError(err).Debug("Failed to disable notifications")
		}
		c.notifying = false
	}
	if c.peripheral != nil && (c.state == StateConnecting || c.state.Linked()) {
		if err := c.transport.CancelConnection(c.peripheral.ID); err != nil {
			c.logger.WithError(err).Debug("Failed to cancel connection")
		}
	}
}

func (c *Client) clearLinkLocked() {
	c.peripheral = nil
	c.char = nil
	c.notifying = false
	c.pending = 0
}

func (c *Client) isPendingLocked(p device.Peripheral) bool {
	return c.peripheral != nil && c.peripheral.ID == p.ID
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// armTimerLocked fails the client if it is still in the current generation
// after d. A zero d disables the deadline.
func (c *Client) armTimerLocked(d time.Duration, stage string) {
	if d <= 0 {
		return
	}
	gen := c.gen
	c.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.closed || c.gen != gen {
			return
		}
		c.failLocked(fmt.Errorf("%w: %s did not complete within %s", ErrTimeout, stage, d), "Timed out during "+stage+".", true)
	})
}

// requestLocked issues a transport request, after RequestDelay if one is
// configured. A request that cannot be issued fails the client with reason
// wrapping both sentinel and the transport error.
func (c *Client) requestLocked(name string, sentinel error, fn func() error) error {
	if c.opts.RequestDelay <= 0 {
		return c.issueLocked(name, sentinel, fn)
	}

	gen := c.gen
	time.AfterFunc(c.opts.RequestDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.closed || c.gen != gen {
			c.logger.WithField("request", name).Debug("Dropping delayed request for a finished stage")
			return
		}
		_ = c.issueLocked(name, sentinel, fn)
	})
	return nil
}

func (c *Client) issueLocked(name string, sentinel error, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	reason := fmt.Errorf("%w: %s: %w", sentinel, name, device.NormalizeError(err))
	msg := "Request failed: " + name
	if errors.Is(reason, ErrRadioUnavailable) {
		msg = "Bluetooth is not ready."
	}
	c.failLocked(reason, msg, true)
	return reason
}

func wrapReason(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, device.NormalizeError(cause))
}
