package thermal

import "errors"

// Domain errors for the thermal package.
var (
	// ErrNotReady is returned when Klipper is not in the ready state.
	ErrNotReady = errors.New("thermal: printer not ready")

	// ErrObjectNotFound is returned when no Klipper object answers for
	// the requested heater or sensor.
	ErrObjectNotFound = errors.New("thermal: klipper object not found")

	// ErrBadReading is returned when an object answers without a usable
	// temperature field.
	ErrBadReading = errors.New("thermal: malformed temperature reading")

	// ErrTempOutOfRange is returned when a target temperature falls
	// outside the heater's allowed range.
	ErrTempOutOfRange = errors.New("thermal: temperature out of range")

	// ErrWaitTimeout is returned when a temperature wait loop passes its
	// deadline before reaching the target band.
	ErrWaitTimeout = errors.New("thermal: timeout waiting for temperature")

	// ErrInvalidConfig is returned when the driver is constructed with
	// unusable dependencies.
	ErrInvalidConfig = errors.New("thermal: invalid configuration")
)
