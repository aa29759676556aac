package toolhead

import "fmt"

// Validator rejects toolhead targets whose attachment envelope would
// leave the machine's travel volume. It combines the cached axis limits
// with the configured envelope and an optional minimum safe Z floor.
//
// Checks run in a fixed order and stop at the first violation: Z floor,
// then X min, X max, Y min, Y max, Z min, Z max. Callers get exactly
// one offending extreme per rejection, named after the axis and the
// envelope offset that produced it.
type Validator struct {
	cache    *Cache
	envelope Envelope

	// minSafeZ is an absolute Z floor for the toolhead reference point.
	// Zero disables the check.
	minSafeZ float64
}

// NewValidator builds a Validator over the given limits cache.
//
// Parameters:
//   - cache: shared limits cache, owned by the motion driver
//   - envelope: attachment bounding box offsets
//   - minSafeZ: absolute Z floor in mm, 0 to disable
func NewValidator(cache *Cache, envelope Envelope, minSafeZ float64) *Validator {
	return &Validator{
		cache:    cache,
		envelope: envelope,
		minSafeZ: minSafeZ,
	}
}

// Envelope returns the attachment offsets the validator was built with.
func (v *Validator) Envelope() Envelope {
	return v.envelope
}

// CheckPoint validates a candidate target position. For each axis the
// point is extended by the envelope's min and max offsets and both
// extremes must lie within the machine's travel bounds.
//
// Returns:
//   - error: ErrLimitsNotInitialized before the first limits fetch,
//     ErrOutOfRange naming the first violating extreme, nil when safe
func (v *Validator) CheckPoint(p Point) error {
	limits, err := v.cache.Get()
	if err != nil {
		return err
	}

	if v.minSafeZ != 0 && p.Z < v.minSafeZ {
		return fmt.Errorf("%w: Z=%.3f below minimum safe height %.3f",
			ErrOutOfRange, p.Z, v.minSafeZ)
	}

	checks := []struct {
		name   string
		value  float64
		bounds Range
	}{
		{"X+attach_min_x", p.X + v.envelope.MinX, limits.X},
		{"X+attach_max_x", p.X + v.envelope.MaxX, limits.X},
		{"Y+attach_min_y", p.Y + v.envelope.MinY, limits.Y},
		{"Y+attach_max_y", p.Y + v.envelope.MaxY, limits.Y},
		{"Z+attach_min_z", p.Z + v.envelope.MinZ, limits.Z},
		{"Z+attach_max_z", p.Z + v.envelope.MaxZ, limits.Z},
	}
	for _, c := range checks {
		if !c.bounds.Contains(c.value) {
			return fmt.Errorf("%w: %s=%.3f out of range [%.3f, %.3f]",
				ErrOutOfRange, c.name, c.value, c.bounds.Min, c.bounds.Max)
		}
	}
	return nil
}
