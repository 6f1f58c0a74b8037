package device

// Peripheral is a remote device surfaced by a scan or a connection callback.
type Peripheral struct {
	ID   string // platform address (MAC on Linux, UUID on macOS)
	Name string // advertised local name, may be empty
	RSSI int
}

// DisplayName returns the advertised name, falling back to the ID.
func (p Peripheral) DisplayName() string {
	if p.Name == "" {
		return p.ID
	}
	return p.Name
}

// Service is a discovered GATT service.
type Service interface {
	UUID() string
}

// Characteristic is a discovered GATT characteristic.
type Characteristic interface {
	UUID() string
	Properties() Property
}

// Advertisement is the subset of an advertising report the transports need
// to turn a scan result into a Peripheral.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Services() []string
	Connectable() bool
}

// PeripheralFromAdvertisement builds a Peripheral from an advertising report.
func PeripheralFromAdvertisement(adv Advertisement) Peripheral {
	return Peripheral{
		ID:   adv.Addr(),
		Name: adv.LocalName(),
		RSSI: adv.RSSI(),
	}
}

// Transport is the request side of a platform BLE stack.
//
// Every method only starts the operation and returns. The result arrives
// later through the EventHandler the transport was opened with. A non-nil
// error means the request could not be issued at all.
type Transport interface {
	IsRadioReady() bool
	StartScan(serviceFilter []string) error
	StopScan() error
	Connect(deviceID string) error
	CancelConnection(deviceID string) error
	DiscoverServices(p Peripheral, serviceFilter []string) error
	DiscoverCharacteristics(s Service, charFilter []string) error
	ReadCharacteristic(c Characteristic) error
	SetNotify(c Characteristic, enabled bool) error
}

// EventHandler receives the asynchronous results of Transport requests.
//
// A handler may reject an event that does not fit its current state; the
// returned error is informational for the transport, which logs it.
type EventHandler interface {
	OnRadioStateChanged(state RadioState) error
	OnDeviceDiscovered(p Peripheral) error
	OnConnected(p Peripheral) error
	OnConnectFailed(p Peripheral, err error) error
	OnServicesDiscovered(services []Service) error
	OnCharacteristicsDiscovered(chars []Characteristic) error
	OnValueUpdated(data []byte) error
	OnDisconnected(p Peripheral, err error) error
}
