package goble

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/srg/blesense/internal/bledb"
	"github.com/srg/blesense/internal/device"
)

// BLEService wraps a discovered *ble.Service.
type BLEService struct {
	svc *ble.Service
}

var _ device.Service = (*BLEService)(nil)

func (s *BLEService) UUID() string {
	return bledb.NormalizeUUID(s.svc.UUID.String())
}

// BLECharacteristic wraps a discovered *ble.Characteristic.
type BLECharacteristic struct {
	char *ble.Characteristic
}

var _ device.Characteristic = (*BLECharacteristic)(nil)

func (c *BLECharacteristic) UUID() string {
	return bledb.NormalizeUUID(c.char.UUID.String())
}

func (c *BLECharacteristic) Properties() device.Property {
	return NewProperties(c.char.Property)
}

func wrapServices(in []*ble.Service) []device.Service {
	out := make([]device.Service, 0, len(in))
	for _, s := range in {
		out = append(out, &BLEService{svc: s})
	}
	return out
}

func wrapCharacteristics(in []*ble.Characteristic) []device.Characteristic {
	out := make([]device.Characteristic, 0, len(in))
	for _, c := range in {
		out = append(out, &BLECharacteristic{char: c})
	}
	return out
}

// parseUUIDs converts UUID strings in any accepted form to ble.UUIDs.
func parseUUIDs(in []string) ([]ble.UUID, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]ble.UUID, 0, len(in))
	for _, s := range in {
		n := bledb.NormalizeUUID(s)
		if n == "" {
			return nil, fmt.Errorf("invalid UUID %q", s)
		}
		u, err := ble.Parse(n)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		out = append(out, u)
	}
	return out, nil
}

func matchesServiceFilter(advertised, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		for _, a := range advertised {
			if bledb.NormalizeUUID(f) == a {
				return true
			}
		}
	}
	return false
}

// CanonicalAddress returns address in the form go-ble reports peripherals
// in, so it can be compared to device IDs with plain string equality.
func CanonicalAddress(address string) string {
	return ble.NewAddr(address).String()
}
