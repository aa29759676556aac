package toolhead

import "fmt"

// Envelope describes the attachment's bounding box as signed offsets
// from the toolhead reference point, millimetres. Min offsets extend in
// the negative direction and are typically negative or zero; Max
// offsets extend in the positive direction. A zero Envelope describes a
// bare toolhead.
//
// Example: a probe that sticks out 30mm in +X and hangs 41mm below the
// nozzle has MaxX=30 and MinZ=-41.
type Envelope struct {
	MinX float64
	MaxX float64
	MinY float64
	MaxY float64
	MinZ float64
	MaxZ float64
}

// Validate checks that each axis's min offset does not exceed its max
// offset. Returns an error describing the first inconsistent pair
// found.
//
// Returns:
//   - error: ErrBadEnvelope when a min/max pair is inverted, nil otherwise
func (e Envelope) Validate() error {
	pairs := []struct {
		name   string
		mn, mx float64
	}{
		{"x", e.MinX, e.MaxX},
		{"y", e.MinY, e.MaxY},
		{"z", e.MinZ, e.MaxZ},
	}
	for _, p := range pairs {
		if p.mn > p.mx {
			return fmt.Errorf("%w: attach_min_%s must be <= attach_max_%s (got %v > %v)",
				ErrBadEnvelope, p.name, p.name, p.mn, p.mx)
		}
	}
	return nil
}
