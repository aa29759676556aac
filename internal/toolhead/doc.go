// Package toolhead models the machine's travel volume and the safety
// envelope of whatever is bolted to the toolhead.
//
// The core idea: the printer's firmware only knows where the nozzle
// reference point may travel, not that a camera arm sticks out 30mm in
// +X or that a probe hangs 41mm below the nozzle. This package extends
// every candidate position by the attachment's bounding box and rejects
// targets whose extremes would leave the machine's axis limits, before
// any G-code is generated.
//
// # Key Types
//
//   - Point: an absolute toolhead position in machine coordinates
//   - Limits: per-axis travel bounds as reported by the firmware
//   - Cache: holds fetched limits; invalid until the first fetch
//   - Envelope: the attachment bounding box as offsets from the nozzle
//   - Validator: the position check combining all of the above
//
// # Usage
//
//	cache := &toolhead.Cache{}
//	cache.Set(limits) // fetched from the printer
//
//	env := toolhead.Envelope{MaxX: 30, MinZ: -41}
//	if err := env.Validate(); err != nil {
//	    return err
//	}
//
//	v := toolhead.NewValidator(cache, env, 0)
//	if err := v.CheckPoint(toolhead.Point{X: 390, Y: 100, Z: 50}); err != nil {
//	    // rejected: X+attach_max_x=420.000 out of range [0.000, 400.000]
//	}
//
// # Thread Safety
//
// Cache and Validator are not synchronized. The command model is a
// single synchronous caller; anything concurrent must bring its own
// locking.
package toolhead
