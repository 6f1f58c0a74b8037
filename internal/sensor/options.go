package sensor

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// Options tune the client lifecycle. A zero timeout disables that stage's
// deadline.
type Options struct {
	// ScanTimeout bounds the time spent looking for the target.
	ScanTimeout time.Duration `default:"30s"`
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration `default:"10s"`
	// DiscoveryTimeout bounds service discovery and, separately,
	// characteristic discovery.
	DiscoveryTimeout time.Duration `default:"10s"`
	// ReadTimeout bounds the wait from the read or subscribe request to the
	// first value.
	ReadTimeout time.Duration `default:"10s"`
	// RequestDelay postpones every transport request. A request whose stage
	// is gone by the time the delay expires is dropped.
	RequestDelay time.Duration `default:"0s"`
	// PreferNotify subscribes instead of reading when the characteristic
	// supports both.
	PreferNotify bool `default:"false"`
}

// DefaultOptions returns Options populated from the default tags.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}
