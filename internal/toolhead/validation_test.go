package toolhead

import (
	"errors"
	"strings"
	"testing"
)

// testLimits is a 400x400x300 machine, the shape of a typical large
// bed-slinger.
func testLimits() Limits {
	return Limits{
		X: Range{Min: 0, Max: 400},
		Y: Range{Min: 0, Max: 400},
		Z: Range{Min: 0, Max: 300},
	}
}

func testCache() *Cache {
	c := &Cache{}
	c.Set(testLimits())
	return c
}

// ===== Envelope =====

func TestEnvelopeValidate(t *testing.T) {
	tests := []struct {
		name     string
		envelope Envelope
		wantErr  error
		wantMsg  string
	}{
		{
			name:     "zero envelope is a bare toolhead",
			envelope: Envelope{},
			wantErr:  nil,
		},
		{
			name:     "typical probe envelope",
			envelope: Envelope{MinX: -5, MaxX: 30, MinY: -5, MaxY: 5, MinZ: -41, MaxZ: 0},
			wantErr:  nil,
		},
		{
			name:     "equal min and max is allowed",
			envelope: Envelope{MinX: 3, MaxX: 3},
			wantErr:  nil,
		},
		{
			name:     "inverted x pair",
			envelope: Envelope{MinX: 5, MaxX: 3},
			wantErr:  ErrBadEnvelope,
			wantMsg:  "attach_min_x must be <= attach_max_x (got 5 > 3)",
		},
		{
			name:     "inverted y pair",
			envelope: Envelope{MinY: 1, MaxY: -1},
			wantErr:  ErrBadEnvelope,
			wantMsg:  "attach_min_y must be <= attach_max_y",
		},
		{
			name:     "inverted z pair",
			envelope: Envelope{MinZ: 0, MaxZ: -41},
			wantErr:  ErrBadEnvelope,
			wantMsg:  "attach_min_z must be <= attach_max_z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.envelope.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() error %q, want substring %q", err, tt.wantMsg)
			}
		})
	}
}

// ===== Limits =====

func TestLimitsFromArrays(t *testing.T) {
	min := []float64{0, 0, 0, 0}
	max := []float64{400, 400, 300, 0}

	got, err := LimitsFromArrays(min, max)
	if err != nil {
		t.Fatalf("LimitsFromArrays() error = %v", err)
	}
	if got != testLimits() {
		t.Errorf("LimitsFromArrays() = %+v, want %+v", got, testLimits())
	}
}

func TestLimitsFromArraysShort(t *testing.T) {
	_, err := LimitsFromArrays([]float64{0, 0}, []float64{400, 400, 300, 0})
	if !errors.Is(err, ErrBadLimits) {
		t.Fatalf("LimitsFromArrays() error = %v, want %v", err, ErrBadLimits)
	}
}

func TestCacheLifecycle(t *testing.T) {
	c := &Cache{}

	if c.Valid() {
		t.Error("fresh cache reports valid")
	}
	if _, err := c.Get(); !errors.Is(err, ErrLimitsNotInitialized) {
		t.Fatalf("Get() on fresh cache = %v, want %v", err, ErrLimitsNotInitialized)
	}

	c.Set(testLimits())
	if !c.Valid() {
		t.Error("cache not valid after Set")
	}
	got, err := c.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != testLimits() {
		t.Errorf("Get() = %+v, want %+v", got, testLimits())
	}

	c.Invalidate()
	if _, err := c.Get(); !errors.Is(err, ErrLimitsNotInitialized) {
		t.Fatalf("Get() after Invalidate = %v, want %v", err, ErrLimitsNotInitialized)
	}
}

// ===== Validator =====

func TestCheckPointEnvelopeExtremes(t *testing.T) {
	// 30mm of +X overhang makes X=390 unreachable on a 400mm axis even
	// though the nozzle itself would stay inside.
	env := Envelope{MinX: -5, MaxX: 30}
	v := NewValidator(testCache(), env, 0)

	err := v.CheckPoint(Point{X: 390, Y: 100, Z: 50})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("CheckPoint() = %v, want %v", err, ErrOutOfRange)
	}
	want := "X+attach_max_x=420.000 out of range [0.000, 400.000]"
	if !strings.Contains(err.Error(), want) {
		t.Errorf("CheckPoint() error %q, want substring %q", err, want)
	}
}

func TestCheckPoint(t *testing.T) {
	env := Envelope{
		MinX: -5, MaxX: 30,
		MinY: -5, MaxY: 5,
		MinZ: -41, MaxZ: 0,
	}

	tests := []struct {
		name     string
		point    Point
		minSafeZ float64
		wantErr  error
		wantName string
	}{
		{
			name:    "centre of the volume is fine",
			point:   Point{X: 200, Y: 200, Z: 150},
			wantErr: nil,
		},
		{
			name:    "boundary touch is inclusive",
			point:   Point{X: 370, Y: 395, Z: 41},
			wantErr: nil,
		},
		{
			name:     "x min extreme",
			point:    Point{X: 4, Y: 200, Z: 150},
			wantErr:  ErrOutOfRange,
			wantName: "X+attach_min_x",
		},
		{
			name:     "x max extreme",
			point:    Point{X: 371, Y: 200, Z: 150},
			wantErr:  ErrOutOfRange,
			wantName: "X+attach_max_x",
		},
		{
			name:     "y min extreme",
			point:    Point{X: 200, Y: 4, Z: 150},
			wantErr:  ErrOutOfRange,
			wantName: "Y+attach_min_y",
		},
		{
			name:     "y max extreme",
			point:    Point{X: 200, Y: 396, Z: 150},
			wantErr:  ErrOutOfRange,
			wantName: "Y+attach_max_y",
		},
		{
			name:     "z min extreme hits the bed",
			point:    Point{X: 200, Y: 200, Z: 40},
			wantErr:  ErrOutOfRange,
			wantName: "Z+attach_min_z",
		},
		{
			name:     "z max extreme hits the gantry",
			point:    Point{X: 200, Y: 200, Z: 301},
			wantErr:  ErrOutOfRange,
			wantName: "Z+attach_max_z",
		},
		{
			name:     "x violation reported before y and z",
			point:    Point{X: -100, Y: -100, Z: -100},
			wantErr:  ErrOutOfRange,
			wantName: "X+attach_min_x",
		},
		{
			name:     "z floor checked before envelope",
			point:    Point{X: -100, Y: 200, Z: 10},
			minSafeZ: 20,
			wantErr:  ErrOutOfRange,
			wantName: "below minimum safe height",
		},
		{
			name:     "z floor pass falls through to envelope",
			point:    Point{X: 200, Y: 200, Z: 45},
			minSafeZ: 20,
			wantErr:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(testCache(), env, tt.minSafeZ)
			err := v.CheckPoint(tt.point)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("CheckPoint(%v) = %v, want nil", tt.point, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CheckPoint(%v) = %v, want %v", tt.point, err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantName) {
				t.Errorf("CheckPoint(%v) error %q, want substring %q", tt.point, err, tt.wantName)
			}
		})
	}
}

func TestCheckPointUninitializedCache(t *testing.T) {
	v := NewValidator(&Cache{}, Envelope{}, 0)
	err := v.CheckPoint(Point{X: 1, Y: 1, Z: 1})
	if !errors.Is(err, ErrLimitsNotInitialized) {
		t.Fatalf("CheckPoint() = %v, want %v", err, ErrLimitsNotInitialized)
	}
}

// ===== Axes helpers =====

func TestNormalizeAxes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "lowercase", input: "xyz", want: "XYZ"},
		{name: "reordered", input: "zx", want: "XZ"},
		{name: "duplicates collapse", input: "XXy", want: "XY"},
		{name: "spaces trimmed", input: " x y ", want: "XY"},
		{name: "empty", input: "", wantErr: ErrBadAxes},
		{name: "unknown axis", input: "XQ", wantErr: ErrBadAxes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAxes(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NormalizeAxes(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeAxes(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeAxes(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestContainsAxes(t *testing.T) {
	tests := []struct {
		name  string
		homed string
		want  string
		ok    bool
	}{
		{name: "all homed", homed: "xyz", want: "XYZ", ok: true},
		{name: "subset", homed: "xyz", want: "Z", ok: true},
		{name: "missing z", homed: "xy", want: "XYZ", ok: false},
		{name: "nothing homed", homed: "", want: "X", ok: false},
		{name: "empty want always holds", homed: "", want: "", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsAxes(tt.homed, tt.want); got != tt.ok {
				t.Errorf("ContainsAxes(%q, %q) = %v, want %v", tt.homed, tt.want, got, tt.ok)
			}
		})
	}
}
