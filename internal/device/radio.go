package device

// RadioState is the power state of the local Bluetooth adapter.
type RadioState int

const (
	RadioUnknown RadioState = iota
	RadioPoweredOff
	RadioPoweredOn
	RadioUnauthorized
	RadioUnsupported
)

func (s RadioState) String() string {
	switch s {
	case RadioPoweredOff:
		return "PoweredOff"
	case RadioPoweredOn:
		return "PoweredOn"
	case RadioUnauthorized:
		return "Unauthorized"
	case RadioUnsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// Ready reports whether requests can be issued in this state.
func (s RadioState) Ready() bool {
	return s == RadioPoweredOn
}
