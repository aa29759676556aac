package toolhead

import (
	"fmt"
	"strings"
)

// Axis indices into Klipper's position and limit arrays.
// The fourth element (extruder) is carried on the wire but never
// validated here.
const (
	axisX = 0
	axisY = 1
	axisZ = 2

	// minLimitArrayLen is the shortest axis_minimum/axis_maximum array
	// this package accepts. Klipper reports four elements.
	minLimitArrayLen = 3
)

// Point is an absolute toolhead position in machine coordinates,
// millimetres.
type Point struct {
	X float64
	Y float64
	Z float64
}

// String renders the point with the same fixed precision used in
// generated G-code, which keeps log lines and scripts comparable.
func (p Point) String() string {
	return fmt.Sprintf("X%.3f Y%.3f Z%.3f", p.X, p.Y, p.Z)
}

// Range is an inclusive [Min, Max] interval on one axis, millimetres.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Limits holds the machine's travel bounds per axis as reported by the
// firmware's toolhead object.
type Limits struct {
	X Range
	Y Range
	Z Range
}

// LimitsFromArrays builds Limits from Klipper's axis_minimum and
// axis_maximum arrays. Both arrays must carry at least the X, Y and Z
// elements; anything past index 2 (the extruder) is ignored.
//
// Returns:
//   - Limits: the parsed travel bounds
//   - error: ErrBadLimits when either array is too short
func LimitsFromArrays(axisMin, axisMax []float64) (Limits, error) {
	if len(axisMin) < minLimitArrayLen || len(axisMax) < minLimitArrayLen {
		return Limits{}, fmt.Errorf("%w: need %d elements, got min=%d max=%d",
			ErrBadLimits, minLimitArrayLen, len(axisMin), len(axisMax))
	}
	return Limits{
		X: Range{Min: axisMin[axisX], Max: axisMax[axisX]},
		Y: Range{Min: axisMin[axisY], Max: axisMax[axisY]},
		Z: Range{Min: axisMin[axisZ], Max: axisMax[axisZ]},
	}, nil
}

// String renders the limits one axis per line for operator output.
func (l Limits) String() string {
	return fmt.Sprintf("X: [%.3f, %.3f]\nY: [%.3f, %.3f]\nZ: [%.3f, %.3f]",
		l.X.Min, l.X.Max, l.Y.Min, l.Y.Max, l.Z.Min, l.Z.Max)
}

// Cache holds the most recently fetched travel limits. A fresh cache is
// invalid: Get fails with ErrLimitsNotInitialized until Set has been
// called once. Limits are fetched from the printer exactly once and
// reused until a caller explicitly refreshes them, so a stale cache is
// possible after the printer re-homes with different kinematics; the
// owner decides when to refresh.
type Cache struct {
	limits Limits
	valid  bool
}

// Set stores fresh limits and marks the cache valid.
func (c *Cache) Set(l Limits) {
	c.limits = l
	c.valid = true
}

// Invalidate drops the cached limits. Subsequent Get calls fail until
// Set is called again. Used after a firmware restart, when the old
// bounds can no longer be trusted.
func (c *Cache) Invalidate() {
	c.valid = false
	c.limits = Limits{}
}

// Get returns the cached limits.
//
// Returns:
//   - Limits: the last value passed to Set
//   - error: ErrLimitsNotInitialized when Set has never been called
func (c *Cache) Get() (Limits, error) {
	if !c.valid {
		return Limits{}, fmt.Errorf("%w: fetch printer limits first", ErrLimitsNotInitialized)
	}
	return c.limits, nil
}

// Valid reports whether the cache holds fetched limits.
func (c *Cache) Valid() bool {
	return c.valid
}

// NormalizeAxes uppercases and de-duplicates a homing axes string such
// as "xyz" or "ZX", preserving canonical X, Y, Z order.
//
// Returns:
//   - string: the normalized axes, e.g. "XZ"
//   - error: ErrBadAxes when empty or containing anything but X, Y, Z
func NormalizeAxes(axes string) (string, error) {
	trimmed := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(axes)), " ", "")
	if trimmed == "" {
		return "", fmt.Errorf("%w: no axes given", ErrBadAxes)
	}
	seen := make(map[rune]bool, 3)
	for _, r := range trimmed {
		switch r {
		case 'X', 'Y', 'Z':
			seen[r] = true
		default:
			return "", fmt.Errorf("%w: %q is not one of X, Y, Z", ErrBadAxes, string(r))
		}
	}
	var out strings.Builder
	for _, r := range []rune{'X', 'Y', 'Z'} {
		if seen[r] {
			out.WriteRune(r)
		}
	}
	return out.String(), nil
}

// ContainsAxes reports whether every axis in want appears in the
// firmware's homed_axes string. Both sides are compared
// case-insensitively, matching Klipper's lowercase reporting against
// operator-supplied uppercase axes.
func ContainsAxes(homed, want string) bool {
	h := strings.ToLower(homed)
	for _, r := range strings.ToLower(want) {
		if !strings.ContainsRune(h, r) {
			return false
		}
	}
	return true
}
