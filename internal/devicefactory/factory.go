package devicefactory

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/device"
	goble "github.com/srg/blesense/internal/device/go-ble"
)

// Transport is a device.Transport that must be opened with an event
// handler before use and closed afterwards.
type Transport interface {
	device.Transport
	Open(ctx context.Context, handler device.EventHandler) error
	Close() error
}

// TransportFactory creates the platform BLE transport.
// This is a variable so that it can be overridden in tests.
var TransportFactory = func(logger *logrus.Logger, connectTimeout time.Duration) Transport {
	return goble.NewTransport(logger, goble.WithConnectTimeout(connectTimeout))
}

// NewTransport creates the platform BLE transport with Dial bounded by
// connectTimeout.
func NewTransport(logger *logrus.Logger, connectTimeout time.Duration) Transport {
	return TransportFactory(logger, connectTimeout)
}

// CanonicalAddress returns address in the form the platform transport
// reports discovered peripherals in.
func CanonicalAddress(address string) string {
	return goble.CanonicalAddress(address)
}
