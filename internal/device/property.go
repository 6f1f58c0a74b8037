package device

import "strings"

// Property is the GATT characteristic property bit set.
type Property int

const (
	PropBroadcast     Property = 0x01
	PropRead          Property = 0x02
	PropWriteNR       Property = 0x04
	PropWrite         Property = 0x08
	PropNotify        Property = 0x10
	PropIndicate      Property = 0x20
	PropSignedWrite   Property = 0x40
	PropExtendedProps Property = 0x80
)

var propertyNames = []struct {
	bit  Property
	name string
}{
	{PropBroadcast, "Broadcast"},
	{PropRead, "Read"},
	{PropWriteNR, "WriteWithoutResponse"},
	{PropWrite, "Write"},
	{PropNotify, "Notify"},
	{PropIndicate, "Indicate"},
	{PropSignedWrite, "AuthenticatedSignedWrites"},
	{PropExtendedProps, "ExtendedProperties"},
}

// Has reports whether all bits of q are set.
func (p Property) Has(q Property) bool {
	return q != 0 && p&q == q
}

// CanRead reports on-demand read support.
func (p Property) CanRead() bool {
	return p.Has(PropRead)
}

// CanNotify reports notification or indication support.
func (p Property) CanNotify() bool {
	return p.Has(PropNotify) || p.Has(PropIndicate)
}

// String renders the set bits as "Read|Notify".
func (p Property) String() string {
	var names []string
	for _, pn := range propertyNames {
		if p&pn.bit != 0 {
			names = append(names, pn.name)
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// ParseProperties converts a comma-separated list such as "read,notify".
// Unknown names are ignored.
func ParseProperties(s string) Property {
	var p Property
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "broadcast":
			p |= PropBroadcast
		case "read":
			p |= PropRead
		case "write-without-response", "writenr":
			p |= PropWriteNR
		case "write":
			p |= PropWrite
		case "notify":
			p |= PropNotify
		case "indicate":
			p |= PropIndicate
		}
	}
	return p
}
