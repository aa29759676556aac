package motion

import (
	"fmt"
	"strings"

	"github.com/nerrad567/moonrig/internal/toolhead"
)

// G-code fragments shared by the builders below. Coordinates are
// always emitted at three decimals so scripts are byte-stable for a
// given target, and every script that moves starts with G90: absolute
// positioning is re-asserted per script, never assumed from modal
// state.
const (
	absolutePositioning = "G90"
	waitForMoves        = "M400"
)

// feedrate converts mm/s to the integer mm/min F word Klipper expects.
func feedrate(speedMMS float64) int {
	return int(speedMMS * 60.0)
}

// moveXYZ emits a three-axis linear move.
func moveXYZ(p toolhead.Point, speed float64) string {
	return fmt.Sprintf("G1 X%.3f Y%.3f Z%.3f F%d", p.X, p.Y, p.Z, feedrate(speed))
}

// moveXY emits a planar move that leaves Z alone.
func moveXY(x, y, speed float64) string {
	return fmt.Sprintf("G1 X%.3f Y%.3f F%d", x, y, feedrate(speed))
}

// moveY emits a single-axis Y move, the sweep pass itself.
func moveY(y, speed float64) string {
	return fmt.Sprintf("G1 Y%.3f F%d", y, feedrate(speed))
}

// moveZ emits a single-axis Z move.
func moveZ(z, speed float64) string {
	return fmt.Sprintf("G1 Z%.3f F%d", z, feedrate(speed))
}

// homeAxes emits G28 for the given normalized axes, e.g. "G28 XZ".
func homeAxes(axes string) string {
	return "G28 " + axes
}

// velocityLimit emits the Klipper extended command capping kinematics.
func velocityLimit(velocity, accel float64) string {
	return fmt.Sprintf("SET_VELOCITY_LIMIT VELOCITY=%.3f ACCEL=%.1f", velocity, accel)
}

// script joins G-code lines into one newline-separated batch for a
// single gcode/script call.
func script(lines ...string) string {
	return strings.Join(lines, "\n")
}
