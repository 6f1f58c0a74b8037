package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProperty(t *testing.T) {
	p := PropRead | PropNotify
	assert.True(t, p.CanRead())
	assert.True(t, p.CanNotify())
	assert.False(t, p.Has(PropWrite))
	assert.False(t, p.Has(0), "empty mask MUST never match")
	assert.Equal(t, "Read|Notify", p.String())
	assert.Equal(t, "None", Property(0).String())

	assert.True(t, PropIndicate.CanNotify(), "indicate MUST count as notify-capable")
	assert.False(t, PropWrite.CanRead())
}

func TestParseProperties(t *testing.T) {
	assert.Equal(t, PropRead|PropNotify, ParseProperties("read, notify"))
	assert.Equal(t, PropWrite|PropIndicate, ParseProperties("WRITE,indicate,bogus"))
	assert.Equal(t, Property(0), ParseProperties(""))
}

func TestRadioState(t *testing.T) {
	assert.True(t, RadioPoweredOn.Ready())
	assert.False(t, RadioPoweredOff.Ready())
	assert.False(t, RadioUnknown.Ready())
	assert.Equal(t, "PoweredOff", RadioPoweredOff.String())
	assert.Equal(t, "Unknown", RadioState(42).String())
}

func TestPeripheral(t *testing.T) {
	assert.Equal(t, "AA:BB", Peripheral{ID: "AA:BB"}.DisplayName())
	assert.Equal(t, "Thermo", Peripheral{ID: "AA:BB", Name: "Thermo"}.DisplayName())
}
