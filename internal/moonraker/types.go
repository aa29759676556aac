package moonraker

import (
	"encoding/json"
	"fmt"
)

// Info is the subset of GET /printer/info this client consumes.
// State is Klipper's lifecycle state: "ready", "startup", "shutdown"
// or "error". StateMessage carries the human explanation, e.g. the
// shutdown reason.
type Info struct {
	State           string `json:"state"`
	StateMessage    string `json:"state_message"`
	Hostname        string `json:"hostname"`
	SoftwareVersion string `json:"software_version"`
}

// StateReady is the only Klipper state in which commands are accepted.
const StateReady = "ready"

// Ready reports whether Klipper will accept commands.
func (i Info) Ready() bool {
	return i.State == StateReady
}

// ObjectStatus maps Klipper object names to their raw attribute
// payloads as returned by /printer/objects/query. Callers decode the
// objects they understand and ignore the rest.
type ObjectStatus map[string]json.RawMessage

// Decode unmarshals one object's attributes into out.
//
// Returns:
//   - error: ErrInvalidResponse when the object is absent from the
//     status map or its payload does not decode
func (s ObjectStatus) Decode(object string, out any) error {
	raw, ok := s[object]
	if !ok {
		return fmt.Errorf("%w: object %q missing from status", ErrInvalidResponse, object)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: object %q: %w", ErrInvalidResponse, object, err)
	}
	return nil
}

// ToolheadStatus is the subset of Klipper's toolhead object the motion
// layer consumes. Position and the limit arrays carry four elements
// (X, Y, Z, E); HomedAxes is lowercase, e.g. "xyz".
type ToolheadStatus struct {
	HomedAxes   string    `json:"homed_axes"`
	Position    []float64 `json:"position"`
	AxisMinimum []float64 `json:"axis_minimum"`
	AxisMaximum []float64 `json:"axis_maximum"`
	MaxVelocity float64   `json:"max_velocity"`
	MaxAccel    float64   `json:"max_accel"`
	Moving      bool      `json:"moving"`
}

// HeaterStatus is the generic temperature shape shared by heater_bed,
// heater_generic, temperature_sensor and temperature_fan objects.
// Temperature is a pointer so a malformed or sensor-less object is
// distinguishable from a true 0.0 reading.
type HeaterStatus struct {
	Temperature *float64 `json:"temperature"`
	Target      *float64 `json:"target"`
}
