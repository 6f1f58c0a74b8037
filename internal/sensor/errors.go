package sensor

import (
	"errors"
	"fmt"

	"github.com/srg/blesense/internal/device"
)

// Lifecycle errors. Every one of them except the decode errors moves the
// client to StateFailed.
var (
	ErrRadioUnavailable          = errors.New("bluetooth radio unavailable")
	ErrRadioLost                 = errors.New("bluetooth radio lost")
	ErrConnectFailed             = errors.New("connection failed")
	ErrConnectionLost            = errors.New("connection lost")
	ErrUnsupportedCharacteristic = errors.New("characteristic supports neither read nor notify")
	ErrTimeout                   = device.ErrTimeout
	ErrTransport                 = errors.New("transport request failed")
	ErrInvalidTransition         = errors.New("invalid state transition")
	ErrClosed                    = errors.New("client closed")
)

// Decode errors.
var (
	ErrDecode     = errors.New("decode error")
	ErrTooShort   = errors.New("payload too short")
	ErrOutOfRange = errors.New("payload out of range")
	ErrInvalidHex = errors.New("invalid hex")
)

// TransitionError reports an event that is not valid in the current state.
type TransitionError struct {
	From  State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s in state %s", e.Event, e.From)
}

// Is makes errors.Is(err, ErrInvalidTransition) hold for every TransitionError.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// DecodeKind classifies a DecodeError.
type DecodeKind int

const (
	DecodeTooShort DecodeKind = iota
	DecodeOutOfRange
	DecodeInvalidHex
)

func (k DecodeKind) String() string {
	switch k {
	case DecodeTooShort:
		return "too short"
	case DecodeOutOfRange:
		return "out of range"
	case DecodeInvalidHex:
		return "invalid hex"
	default:
		return "unknown"
	}
}

// DecodeError is returned by DecodeHex and Decode.
type DecodeError struct {
	Kind  DecodeKind
	Input string
	Err   error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case DecodeInvalidHex:
		return fmt.Sprintf("decode %q: %s: %v", e.Input, e.Kind, e.Err)
	default:
		return fmt.Sprintf("decode %q: %s: need %d hex characters, got %d", e.Input, e.Kind, payloadHexLen, len(e.Input))
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches ErrDecode and the sentinel of the error's kind. A payload
// shorter than minPayloadHexLen also matches ErrTooShort.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrDecode:
		return true
	case ErrTooShort:
		return e.Kind == DecodeTooShort || (e.Kind == DecodeOutOfRange && len(e.Input) < minPayloadHexLen)
	case ErrOutOfRange:
		return e.Kind == DecodeOutOfRange
	case ErrInvalidHex:
		return e.Kind == DecodeInvalidHex
	}
	return false
}
