package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTemperature writes one temperature sample to InfluxDB.
//
// This is the primary method for recording heater telemetry. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - printer: Instance name from config (e.g., "voron-350")
//   - heater: Logical heater name ("bed", "chamber")
//   - current: Measured temperature in °C
//   - target: Setpoint in °C; pass 0 for objects without one
//
// Example:
//
//	client.WriteTemperature("voron-350", "bed", 58.7, 60.0)
//	client.WriteTemperature("voron-350", "chamber", 41.2, 0)
func (c *Client) WriteTemperature(printer, heater string, current, target float64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"current": current,
	}
	if target > 0 {
		fields["target"] = target
	}

	point := write.NewPoint(
		"temperature",
		map[string]string{
			"printer": printer,
			"heater":  heater,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteMotionEvent writes one executed motion command to InfluxDB.
//
// Used for tracking where the toolhead was sent and how long Klipper took
// to acknowledge each command.
//
// Parameters:
//   - printer: Instance name from config
//   - kind: Command kind ("move_absolute", "home", "sweep_y", ...)
//   - x, y, z: Target position in mm
//   - durationSeconds: Time from issue to acknowledgement
func (c *Client) WriteMotionEvent(printer, kind string, x, y, z, durationSeconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"motion_event",
		map[string]string{
			"printer": printer,
			"kind":    kind,
		},
		map[string]interface{}{
			"x":                x,
			"y":                y,
			"z":                z,
			"duration_seconds": durationSeconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("axis_limits",
//	    map[string]string{"printer": "voron-350"},
//	    map[string]interface{}{"x_max": 350.0, "y_max": 350.0})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
