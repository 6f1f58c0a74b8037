package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blesense/internal/device"
)

var propertyBits = []struct {
	ble ble.Property
	dev device.Property
}{
	{ble.CharBroadcast, device.PropBroadcast},
	{ble.CharRead, device.PropRead},
	{ble.CharWriteNR, device.PropWriteNR},
	{ble.CharWrite, device.PropWrite},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
	{ble.CharSignedWrite, device.PropSignedWrite},
	{ble.CharExtended, device.PropExtendedProps},
}

// NewProperties converts ble.Property bit flags to a device.Property set.
func NewProperties(p ble.Property) device.Property {
	var out device.Property
	for _, b := range propertyBits {
		if p&b.ble != 0 {
			out |= b.dev
		}
	}
	return out
}
