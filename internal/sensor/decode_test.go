package sensor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "sample frame", input: "0000000000233b", expected: 35.59},
		{name: "uppercase", input: "AABBCCDDEE233B", expected: 35.59},
		{name: "zero", input: "ffffffffff0000", expected: 0},
		{name: "max bytes", input: "0000000000ffff", expected: 255 + 2.55},
		{name: "fraction above 99 is not range checked", input: "0000000000016e", expected: 1 + 1.10},
		{name: "trailing bytes ignored", input: "0000000000233bdeadbeef", expected: 35.59},
		{name: "prefix ignored even if not hex", input: "zzzzzzzzzz233b", expected: 35.59},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := DecodeHex(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, v, 1e-9)
		})
	}
}

func TestDecodeHex_AllByteCombinations(t *testing.T) {
	for i := 0; i <= 0xff; i += 17 {
		for f := 0; f <= 0xff; f += 13 {
			h := fmt.Sprintf("0102030405%02x%02x", i, f)
			v, err := DecodeHex(h)
			require.NoError(t, err, h)
			assert.InDelta(t, float64(i)+float64(f)*0.01, v, 1e-9, h)
		}
	}
}

func TestDecodeHex_OutOfRange(t *testing.T) {
	for _, in := range []string{"", "00", "0000000000", "0000000000233"} {
		t.Run(fmt.Sprintf("len=%d", len(in)), func(t *testing.T) {
			_, err := DecodeHex(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrOutOfRange)
			assert.ErrorIs(t, err, ErrDecode)
			assert.NotErrorIs(t, err, ErrInvalidHex)

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, DecodeOutOfRange, de.Kind)
			assert.Equal(t, in, de.Input)
		})
	}
}

func TestDecodeHex_TooShortGuard(t *testing.T) {
	_, err := DecodeHex("000000")
	assert.ErrorIs(t, err, ErrTooShort, "frames under 8 characters MUST also report too short")
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = DecodeHex("0000000000")
	assert.NotErrorIs(t, err, ErrTooShort, "frames of 8 to 13 characters are only out of range")
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestDecodeHex_InvalidHex(t *testing.T) {
	for _, in := range []string{"00000000002g3b", "0000000000233z", "0000000000+1ff", "0000000000 1ff"} {
		t.Run(in, func(t *testing.T) {
			_, err := DecodeHex(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidHex)
			assert.ErrorIs(t, err, ErrDecode)
			assert.NotErrorIs(t, err, ErrOutOfRange)
			assert.Contains(t, err.Error(), "invalid hex")
		})
	}
}

func TestDecode(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x23, 0x3b}
	r, err := Decode(raw)
	require.NoError(t, err)

	assert.InDelta(t, 35.59, r.Value, 1e-9)
	assert.Equal(t, "0000000000233b", r.Hex)
	assert.Equal(t, raw, r.Raw)
	assert.False(t, r.ReceivedAt.IsZero())
	assert.Equal(t, "35.59°C", r.String())

	raw[5] = 0x99
	assert.Equal(t, byte(0x23), r.Raw[5], "reading MUST own a copy of the payload")

	_, err = Decode([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrOutOfRange)
}
