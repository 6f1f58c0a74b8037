package main

import (
	"errors"
	"fmt"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/sensor"
)

// FormatUserError turns an error into a one-line message for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var notFound *device.NotFoundError
	switch {
	case errors.Is(err, sensor.ErrRadioUnavailable), errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is not ready. Turn Bluetooth on and try again."
	case errors.Is(err, sensor.ErrRadioLost):
		return "Bluetooth was turned off while monitoring."
	case errors.Is(err, sensor.ErrConnectionLost):
		return "connection to the sensor was lost"
	case errors.Is(err, sensor.ErrConnectFailed):
		return fmt.Sprintf("could not connect to the sensor: %v", err)
	case errors.Is(err, sensor.ErrTimeout):
		return fmt.Sprintf("timed out: %v", err)
	case errors.As(err, &notFound):
		return fmt.Sprintf("%v on the sensor; check --service and --char", notFound)
	case errors.Is(err, sensor.ErrDecode):
		return fmt.Sprintf("cannot decode payload: %v", err)
	default:
		return err.Error()
	}
}
