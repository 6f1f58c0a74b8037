package sensor

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// minPayloadHexLen is the historical minimum frame length. Frames between
	// this and payloadHexLen are still rejected, as out of range.
	minPayloadHexLen = 8
	payloadHexLen    = 14

	valueOffset = 10
)

// Reading is one decoded temperature sample.
type Reading struct {
	Value      float64 // degrees Celsius
	Raw        []byte
	Hex        string
	ReceivedAt time.Time
}

// String renders the value the way the status display shows it.
func (r Reading) String() string {
	return fmt.Sprintf("%.2f°C", r.Value)
}

// DecodeHex decodes a temperature from the hex rendering of a payload.
//
// Characters [10,14) hold the value: the first byte is the integer part and
// the second byte the hundredths.
func DecodeHex(s string) (float64, error) {
	h := strings.ToLower(s)
	if len(h) < payloadHexLen {
		return 0, &DecodeError{Kind: DecodeOutOfRange, Input: s}
	}

	sub := h[valueOffset:payloadHexLen]
	intPart, err := strconv.ParseUint(sub[:2], 16, 8)
	if err != nil {
		return 0, &DecodeError{Kind: DecodeInvalidHex, Input: s, Err: err}
	}
	fracPart, err := strconv.ParseUint(sub[2:], 16, 8)
	if err != nil {
		return 0, &DecodeError{Kind: DecodeInvalidHex, Input: s, Err: err}
	}

	return float64(intPart) + float64(fracPart)*0.01, nil
}

// Decode hex-encodes raw and decodes it into a Reading stamped with the
// current time.
func Decode(raw []byte) (Reading, error) {
	h := hex.EncodeToString(raw)
	v, err := DecodeHex(h)
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		Value:      v,
		Raw:        append([]byte(nil), raw...),
		Hex:        h,
		ReceivedAt: time.Now(),
	}, nil
}
