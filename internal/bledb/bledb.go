// Package bledb normalizes Bluetooth UUIDs and resolves the handful of
// well-known names the sensor client reports in its status messages.
package bledb

import (
	"strings"

	"github.com/google/uuid"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) in normalized form.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal BLE library format (lowercase, no dashes).
// Handles both standard UUID format (with dashes) and already normalized format (without dashes).
// Also strips 0x prefix and braces if present (e.g., "0x2902" -> "2902").
// For full 128-bit UUIDs in Bluetooth SIG base format (0000xxxx-0000-1000-8000-00805f9b34fb),
// extracts the 16-bit short form (xxxx). 32-bit forms are kept as written.
// Returns "" when the input is not a 16-, 32- or 128-bit hex UUID.
func NormalizeUUID(u string) string {
	s := strings.ToLower(strings.TrimSpace(u))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	if !isHex(s) {
		return ""
	}

	switch len(s) {
	case 4:
		return s
	case 8:
		return s
	case 32:
		if strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
			return s[4:8]
		}
		return s
	default:
		return ""
	}
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	if uuids == nil {
		return nil
	}
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = NormalizeUUID(u)
	}
	return result
}

// ExpandUUID returns the canonical dashed 128-bit form of u, filling short
// forms in with the Bluetooth SIG base UUID.
func ExpandUUID(u string) (uuid.UUID, error) {
	n := NormalizeUUID(u)
	switch len(n) {
	case 4:
		n = "0000" + n + sigBaseSuffix
	case 8:
		n = n + sigBaseSuffix
	}
	return uuid.Parse(n)
}

// EqualUUID reports whether a and b name the same UUID in any accepted form.
func EqualUUID(a, b string) bool {
	na, nb := NormalizeUUID(a), NormalizeUUID(b)
	return na != "" && na == nb
}

// LookupService returns the SIG name of a service UUID, or "" if unknown.
func LookupService(u string) string {
	return services[NormalizeUUID(u)]
}

// LookupCharacteristic returns the SIG name of a characteristic UUID, or "" if unknown.
func LookupCharacteristic(u string) string {
	return characteristics[NormalizeUUID(u)]
}

// LookupDescriptor returns the SIG name of a descriptor UUID, or "" if unknown.
func LookupDescriptor(u string) string {
	return descriptors[NormalizeUUID(u)]
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
