package thermal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/moonrig/internal/moonraker"
	"github.com/nerrad567/moonrig/internal/moonraker/moonrakertest"
)

func newTestDriver(t *testing.T, srv *moonrakertest.Server) *Driver {
	t.Helper()
	client, err := moonraker.New(moonraker.Config{BaseURL: srv.URL()})
	if err != nil {
		t.Fatalf("moonraker.New() error = %v", err)
	}
	driver, err := New(client, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return driver
}

// thermalRecorder captures observer callbacks.
type thermalRecorder struct {
	events  []Event
	samples []Sample
}

func (r *thermalRecorder) ObserveThermal(_ context.Context, event Event) {
	r.events = append(r.events, event)
}

func (r *thermalRecorder) ObserveSample(_ context.Context, sample Sample) {
	r.samples = append(r.samples, sample)
}

// ===== Bed =====

func TestBedReading(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.SetObject("heater_bed", map[string]any{"temperature": 58.7, "target": 60.0, "power": 0.8})

	driver := newTestDriver(t, srv)
	reading, err := driver.Bed(context.Background())
	if err != nil {
		t.Fatalf("Bed() error = %v", err)
	}
	if reading.Current != 58.7 {
		t.Errorf("Current = %v, want 58.7", reading.Current)
	}
	if !reading.HasTarget || reading.Target != 60.0 {
		t.Errorf("Target = %v (has=%v), want 60.0", reading.Target, reading.HasTarget)
	}
	if reading.Object != "heater_bed" {
		t.Errorf("Object = %q, want heater_bed", reading.Object)
	}
}

func TestBedMissingObject(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.RemoveObject("heater_bed")

	driver := newTestDriver(t, srv)
	_, err := driver.Bed(context.Background())
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Bed() error = %v, want %v", err, ErrObjectNotFound)
	}
}

func TestSetBedScripts(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		wait bool
		want string
	}{
		{name: "set only", temp: 60, wait: false, want: "M140 S60.0"},
		{name: "set and wait", temp: 65.5, wait: true, want: "M140 S65.5\nM190 S65.5\nM400"},
		{name: "off", temp: 0, wait: false, want: "M140 S0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := moonrakertest.New()
			defer srv.Close()
			driver := newTestDriver(t, srv)

			if err := driver.SetBed(context.Background(), tt.temp, tt.wait); err != nil {
				t.Fatalf("SetBed() error = %v", err)
			}
			if got := srv.LastScript(); got != tt.want {
				t.Errorf("script = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetBedRange(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	driver := newTestDriver(t, srv)

	for _, temp := range []float64{-1, 150.1, 600} {
		err := driver.SetBed(context.Background(), temp, false)
		if !errors.Is(err, ErrTempOutOfRange) {
			t.Fatalf("SetBed(%v) error = %v, want %v", temp, err, ErrTempOutOfRange)
		}
	}
	if got := len(srv.Scripts()); got != 0 {
		t.Errorf("printer received %d scripts for rejected targets", got)
	}
}

func TestSetBedNotReady(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.SetKlippyState("error", "config error")

	driver := newTestDriver(t, srv)
	err := driver.SetBed(context.Background(), 60, false)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("SetBed() error = %v, want %v", err, ErrNotReady)
	}
}

// ===== Chamber reads =====

func TestChamberProbeOrder(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()

	// Both a dedicated sensor and a heater exist; the sensor must win.
	srv.SetObject("temperature_sensor chamber", map[string]any{"temperature": 41.2})
	srv.SetObject("heater_generic chamber", map[string]any{"temperature": 40.8, "target": 45.0})

	driver := newTestDriver(t, srv)
	reading, err := driver.Chamber(context.Background())
	if err != nil {
		t.Fatalf("Chamber() error = %v", err)
	}
	if reading.Object != "temperature_sensor chamber" {
		t.Errorf("Object = %q, want the dedicated sensor", reading.Object)
	}
	if reading.Current != 41.2 {
		t.Errorf("Current = %v, want 41.2", reading.Current)
	}
	if reading.HasTarget {
		t.Error("HasTarget = true for a pure sensor")
	}
}

func TestChamberFallsBackToFan(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.SetObject("temperature_fan chamber", map[string]any{"temperature": 38.5, "target": 40.0, "speed": 0.3})

	driver := newTestDriver(t, srv)
	reading, err := driver.Chamber(context.Background())
	if err != nil {
		t.Fatalf("Chamber() error = %v", err)
	}
	if reading.Object != "temperature_fan chamber" {
		t.Errorf("Object = %q, want temperature_fan chamber", reading.Object)
	}
	if !reading.HasTarget || reading.Target != 40.0 {
		t.Errorf("Target = %v (has=%v), want 40.0", reading.Target, reading.HasTarget)
	}
}

func TestChamberNotFoundHint(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	// A sensor exists but under a non-standard name.
	srv.SetObject("temperature_sensor chamber_top", map[string]any{"temperature": 35.0})

	driver := newTestDriver(t, srv)
	_, err := driver.Chamber(context.Background())
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Chamber() error = %v, want %v", err, ErrObjectNotFound)
	}
	if !strings.Contains(err.Error(), "temperature_sensor chamber_top") {
		t.Errorf("error %q does not hint at the misnamed sensor", err)
	}
	if !strings.Contains(err.Error(), "temperature_sensor chamber, heater_generic chamber") {
		t.Errorf("error %q does not list the probed candidates", err)
	}
}

func TestChamberMalformedReading(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	// A bare "chamber" object without a temperature field: the probe
	// reaches it last, skips it, and reports the malformed reading.
	srv.SetObject("chamber", map[string]any{"speed": 0.5})

	driver := newTestDriver(t, srv)
	_, err := driver.Chamber(context.Background())
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Chamber() error = %v, want %v", err, ErrObjectNotFound)
	}
	if !errors.Is(err, ErrBadReading) {
		t.Errorf("Chamber() error = %v, want the malformed probe preserved in the chain", err)
	}
	if !strings.Contains(err.Error(), "reports no temperature") {
		t.Errorf("error %q does not describe the malformed reading", err)
	}
}

// ===== Chamber writes =====

func TestSetChamberPrefersHeater(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.SetObject("heater_generic chamber", map[string]any{"temperature": 30.0, "target": 0.0})
	srv.SetObject("temperature_fan chamber", map[string]any{"temperature": 30.0, "target": 0.0})

	driver := newTestDriver(t, srv)
	if err := driver.SetChamber(context.Background(), 45, false); err != nil {
		t.Fatalf("SetChamber() error = %v", err)
	}
	want := "SET_HEATER_TEMPERATURE HEATER=chamber TARGET=45.0"
	if got := srv.LastScript(); got != want {
		t.Errorf("script = %q, want %q", got, want)
	}
}

func TestSetChamberFanFallback(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.SetObject("temperature_fan chamber", map[string]any{"temperature": 30.0, "target": 0.0})

	driver := newTestDriver(t, srv)
	if err := driver.SetChamber(context.Background(), 40, false); err != nil {
		t.Fatalf("SetChamber() error = %v", err)
	}
	want := "SET_TEMPERATURE_FAN_TARGET TEMPERATURE_FAN=chamber TARGET=40.0"
	if got := srv.LastScript(); got != want {
		t.Errorf("script = %q, want %q", got, want)
	}
}

func TestSetChamberNoHardware(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	// Only a passive sensor: readable, not settable.
	srv.SetObject("temperature_sensor chamber", map[string]any{"temperature": 30.0})

	driver := newTestDriver(t, srv)
	err := driver.SetChamber(context.Background(), 40, false)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("SetChamber() error = %v, want %v", err, ErrObjectNotFound)
	}
	if got := len(srv.Scripts()); got != 0 {
		t.Errorf("printer received %d scripts with no settable chamber", got)
	}
}

func TestSetChamberRange(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.SetObject("heater_generic chamber", map[string]any{"temperature": 30.0, "target": 0.0})

	driver := newTestDriver(t, srv)
	err := driver.SetChamber(context.Background(), 90.5, false)
	if !errors.Is(err, ErrTempOutOfRange) {
		t.Fatalf("SetChamber(90.5) error = %v, want %v", err, ErrTempOutOfRange)
	}
}

// ===== Waits =====

func TestWaitChamberReachesTarget(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.SetObject("temperature_sensor chamber", map[string]any{"temperature": 30.0})

	driver := newTestDriver(t, srv)
	recorder := &thermalRecorder{}
	driver.SetObserver(recorder)

	// Warm the fake chamber on every poll; 39.5 is within the
	// one-degree band of 40, reached on the second reading.
	srv.OnObjectsQuery(func(n int) {
		temp := 30.0 + float64(n)*7.5
		if temp > 39.5 {
			temp = 39.5
		}
		srv.PatchObject("temperature_sensor chamber", "temperature", temp)
	})

	if err := driver.WaitChamber(context.Background(), 40); err != nil {
		t.Fatalf("WaitChamber() error = %v", err)
	}
	if len(recorder.samples) < 2 {
		t.Errorf("got %d samples, want one per poll", len(recorder.samples))
	}
	for _, s := range recorder.samples {
		if s.Heater != "chamber" {
			t.Errorf("sample heater = %q, want chamber", s.Heater)
		}
	}
}

func TestWaitChamberTimeout(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.SetObject("temperature_sensor chamber", map[string]any{"temperature": 22.0})

	driver := newTestDriver(t, srv)
	driver.waitTimeout = 50 * time.Millisecond // keep the test fast

	err := driver.WaitChamber(context.Background(), 60)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("WaitChamber() error = %v, want %v", err, ErrWaitTimeout)
	}
	if !strings.Contains(err.Error(), "22.0C") {
		t.Errorf("error %q does not report the last reading", err)
	}
}

func TestWaitTimeoutFloor(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	client, err := moonraker.New(moonraker.Config{BaseURL: srv.URL()})
	if err != nil {
		t.Fatalf("moonraker.New() error = %v", err)
	}

	driver, err := New(client, Config{WaitTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if driver.waitTimeout != minWaitTimeout {
		t.Errorf("waitTimeout = %v, want floored to %v", driver.waitTimeout, minWaitTimeout)
	}

	driver, err = New(client, Config{WaitTimeout: 5 * time.Minute})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if driver.waitTimeout != 5*time.Minute {
		t.Errorf("waitTimeout = %v, want the configured 5m", driver.waitTimeout)
	}
}

// ===== Observer =====

func TestThermalObserverSeesOutcomes(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	driver := newTestDriver(t, srv)
	recorder := &thermalRecorder{}
	driver.SetObserver(recorder)
	ctx := context.Background()

	if err := driver.SetBed(ctx, 60, false); err != nil {
		t.Fatalf("SetBed() error = %v", err)
	}
	if err := driver.SetBed(ctx, 200, false); err == nil {
		t.Fatal("SetBed(200) succeeded, want range rejection")
	}

	if len(recorder.events) != 2 {
		t.Fatalf("got %d events, want 2", len(recorder.events))
	}
	if recorder.events[0].Outcome != OutcomeSent || recorder.events[0].Script == "" {
		t.Errorf("first event = %+v, want a sent event with script", recorder.events[0])
	}
	if recorder.events[1].Outcome != OutcomeRejected || recorder.events[1].Err == nil {
		t.Errorf("second event = %+v, want a rejection with error", recorder.events[1])
	}
}
