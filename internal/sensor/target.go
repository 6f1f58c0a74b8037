package sensor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blesense/internal/bledb"
)

// Defaults for the vendor thermometer this client was written for.
const (
	DefaultAddress            = "1FE8527F-87F3-7D8B-BC84-9BA529FB8BAA"
	DefaultServiceUUID        = "fff0"
	DefaultCharacteristicUUID = "0000fff1-0000-1000-8000-00805f9b34fb"
)

// Target identifies the one peripheral and characteristic a Client monitors.
// UUIDs are kept in normalized form.
type Target struct {
	Address            string
	CharacteristicUUID string
	ServiceUUID        string // optional, narrows service discovery
}

// NewTarget validates and normalizes a target. serviceUUID may be empty.
func NewTarget(address, characteristicUUID, serviceUUID string) (Target, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Target{}, errors.New("target address is required")
	}

	char, err := normalizeTargetUUID(characteristicUUID)
	if err != nil {
		return Target{}, fmt.Errorf("characteristic: %w", err)
	}

	var svc string
	if strings.TrimSpace(serviceUUID) != "" {
		if svc, err = normalizeTargetUUID(serviceUUID); err != nil {
			return Target{}, fmt.Errorf("service: %w", err)
		}
	}

	return Target{Address: address, CharacteristicUUID: char, ServiceUUID: svc}, nil
}

// DefaultTarget returns the built-in thermometer target.
func DefaultTarget() Target {
	t, _ := NewTarget(DefaultAddress, DefaultCharacteristicUUID, DefaultServiceUUID)
	return t
}

func (t Target) serviceFilter() []string {
	if t.ServiceUUID == "" {
		return nil
	}
	return []string{t.ServiceUUID}
}

func (t Target) String() string {
	if t.ServiceUUID == "" {
		return fmt.Sprintf("%s/%s", t.Address, t.CharacteristicUUID)
	}
	return fmt.Sprintf("%s/%s/%s", t.Address, t.ServiceUUID, t.CharacteristicUUID)
}

func normalizeTargetUUID(u string) (string, error) {
	if _, err := bledb.ExpandUUID(u); err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", u, err)
	}
	return bledb.NormalizeUUID(u), nil
}
