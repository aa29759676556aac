package motion

import "errors"

// Domain errors for the motion package.
var (
	// ErrNotReady is returned when Klipper is not in the ready state or
	// the driver has not been initialized.
	ErrNotReady = errors.New("motion: printer not ready")

	// ErrNotHomed is returned when a move requires axes the printer has
	// not homed.
	ErrNotHomed = errors.New("motion: axis not homed")

	// ErrBadSpeed is returned when a speed, velocity or acceleration
	// argument is not positive.
	ErrBadSpeed = errors.New("motion: speed must be positive")

	// ErrZClamp is returned when a relative move requests a Z delta
	// larger than the configured bound.
	ErrZClamp = errors.New("motion: relative Z delta exceeds limit")

	// ErrWaitTimeout is returned when the printer still reports motion
	// after the idle wait deadline.
	ErrWaitTimeout = errors.New("motion: timeout waiting for motion to finish")

	// ErrHomingCancelled is returned when the operator declines the
	// homing confirmation, or no confirmation callback is registered.
	ErrHomingCancelled = errors.New("motion: homing cancelled")

	// ErrInvalidConfig is returned when the driver is constructed with
	// unusable dependencies.
	ErrInvalidConfig = errors.New("motion: invalid configuration")
)
