package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		input  error
		target error
	}{
		{
			name:   "darwin powered off",
			input:  errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			target: ErrBluetoothOff,
		},
		{
			name:   "linux hci init",
			input:  errors.New("can't init hci: no devices available"),
			target: ErrBluetoothOff,
		},
		{
			name:   "not connected",
			input:  errors.New("Device Not Connected"),
			target: ErrNotConnected,
		},
		{
			name:   "already connected",
			input:  errors.New("device already connected"),
			target: ErrAlreadyConnected,
		},
		{
			name:   "not initialized",
			input:  errors.New("connection is not initialized"),
			target: ErrNotInitialized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.input)
			assert.ErrorIs(t, got, tt.target)
			assert.Contains(t, got.Error(), tt.input.Error(), "original message MUST be preserved")
		})
	}

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, NormalizeError(nil))
	})

	t.Run("unknown passes through", func(t *testing.T) {
		orig := errors.New("something else")
		assert.Same(t, orig, NormalizeError(orig))
	})
}

func TestConnectionErrorIs(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &ConnectionError{State: NotConnected, Msg: "gone"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NotErrorIs(t, err, ErrAlreadyConnected)
	assert.True(t, IsConnectionState(err, NotConnected))
	assert.False(t, IsConnectionState(errors.New("x"), NotConnected))
	assert.Equal(t, "not_connected: gone", (&ConnectionError{State: NotConnected, Msg: "gone"}).Error())
}

func TestNotFoundError(t *testing.T) {
	assert.Equal(t, "service not found", (&NotFoundError{Resource: "service"}).Error())
	assert.Equal(t, `characteristic "fff1" not found`, (&NotFoundError{Resource: "characteristic", UUIDs: []string{"fff1"}}).Error())
	assert.Equal(t, "service not found (any of fff0, 180d)", (&NotFoundError{Resource: "service", UUIDs: []string{"fff0", "180d"}}).Error())

	err := fmt.Errorf("discovery: %w", &NotFoundError{Resource: "service", UUIDs: []string{"fff0"}})
	assert.ErrorIs(t, err, &NotFoundError{Resource: "service"})
	assert.ErrorIs(t, err, &NotFoundError{})
	assert.NotErrorIs(t, err, &NotFoundError{Resource: "characteristic"})
}
