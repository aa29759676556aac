package toolhead

import "errors"

// Domain errors for the toolhead package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, toolhead.ErrOutOfRange) {
//	    // the requested position was rejected
//	}
var (
	// ErrLimitsNotInitialized is returned when the axis limit cache is read
	// before the first fetch from the printer.
	ErrLimitsNotInitialized = errors.New("toolhead: limits not initialized")

	// ErrBadLimits is returned when the printer reports malformed axis
	// limit arrays.
	ErrBadLimits = errors.New("toolhead: malformed axis limits")

	// ErrBadEnvelope is returned when attachment envelope validation fails.
	ErrBadEnvelope = errors.New("toolhead: invalid attachment envelope")

	// ErrOutOfRange is returned when a candidate position, extended by the
	// attachment envelope, would leave the machine's travel volume.
	ErrOutOfRange = errors.New("toolhead: position out of range")

	// ErrBadAxes is returned when a homing axes string contains anything
	// but X, Y and Z.
	ErrBadAxes = errors.New("toolhead: invalid axes")
)
