package motion

import (
	"testing"

	"github.com/nerrad567/moonrig/internal/toolhead"
)

func TestFeedrate(t *testing.T) {
	tests := []struct {
		speed float64
		want  int
	}{
		{speed: 25, want: 1500},
		{speed: 8, want: 480},
		{speed: 7.5, want: 450},
		{speed: 20, want: 1200},
		{speed: 0.5, want: 30},
	}
	for _, tt := range tests {
		if got := feedrate(tt.speed); got != tt.want {
			t.Errorf("feedrate(%v) = %d, want %d", tt.speed, got, tt.want)
		}
	}
}

func TestGCodeBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			name: "xyz move",
			got:  moveXYZ(toolhead.Point{X: 10, Y: 20.5, Z: 5}, 25),
			want: "G1 X10.000 Y20.500 Z5.000 F1500",
		},
		{
			name: "xy move",
			got:  moveXY(100, 20, 40),
			want: "G1 X100.000 Y20.000 F2400",
		},
		{
			name: "y move",
			got:  moveY(380, 120),
			want: "G1 Y380.000 F7200",
		},
		{
			name: "z move",
			got:  moveZ(30, 8),
			want: "G1 Z30.000 F480",
		},
		{
			name: "home subset",
			got:  homeAxes("XZ"),
			want: "G28 XZ",
		},
		{
			name: "velocity limit",
			got:  velocityLimit(300, 5000),
			want: "SET_VELOCITY_LIMIT VELOCITY=300.000 ACCEL=5000.0",
		},
		{
			name: "batch joins with newlines",
			got:  script("G90", "G1 Z30.000 F480", "M400"),
			want: "G90\nG1 Z30.000 F480\nM400",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
