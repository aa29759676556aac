package thermal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/moonrig/internal/moonraker"
)

// Heater objects, ranges and wait policy.
const (
	bedObject = "heater_bed"

	// bedMin/bedMax bound SetBed targets. 150C covers every common bed
	// surface without allowing a typo like 600 through.
	bedMin = 0.0
	bedMax = 150.0

	// chamberMin/chamberMax bound SetChamber targets.
	chamberMin = 0.0
	chamberMax = 90.0

	// chamberHeater and chamberFan are the two objects that can accept
	// a chamber target, probed in that order.
	chamberHeater = "heater_generic chamber"
	chamberFan    = "temperature_fan chamber"

	// chamberPollInterval and chamberTolerance drive WaitChamber:
	// sample once a second, done within one degree of target.
	chamberPollInterval = time.Second
	chamberTolerance    = 1.0

	// minWaitTimeout is the floor for the chamber wait deadline.
	// Chambers heat slowly; a short request timeout must not also
	// shorten the wait.
	minWaitTimeout = 60 * time.Second
)

// chamberCandidates are the read probes, most specific first. Klipper
// installs name chamber sensors inconsistently; this order matches the
// common configurations.
var chamberCandidates = []string{
	"temperature_sensor chamber",
	chamberHeater,
	chamberFan,
	"chamber",
}

// Command outcomes as seen by observers.
const (
	OutcomeSent     = "sent"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Config holds thermal driver configuration.
type Config struct {
	// WaitTimeout bounds WaitChamber. Values under 60 seconds are
	// raised to 60.
	WaitTimeout time.Duration
}

// Reading is one heater or sensor measurement.
type Reading struct {
	// Object is the Klipper object that answered, e.g.
	// "temperature_sensor chamber".
	Object string

	// Current is the measured temperature in °C.
	Current float64

	// Target is the setpoint when the object has one. Pure sensors
	// leave HasTarget false.
	Target    float64
	HasTarget bool
}

// Event is the record of one thermal command handed to observers.
type Event struct {
	Op      string // "set_bed" or "set_chamber"
	Script  string
	Target  float64
	Outcome string
	Detail  string
	Err     error
}

// Sample is one temperature observation, emitted on every successful
// read including each wait-loop poll.
type Sample struct {
	// Heater is the logical name: "bed" or "chamber".
	Heater string

	// Object is the Klipper object that answered.
	Object string

	Current   float64
	Target    float64
	HasTarget bool
}

// Observer receives thermal command outcomes and temperature samples.
type Observer interface {
	ObserveThermal(ctx context.Context, event Event)
	ObserveSample(ctx context.Context, sample Sample)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Driver reads and sets bed and chamber temperatures through Moonraker.
// Chamber hardware is probed at call time, so the same binary works
// against printers with a chamber heater, a filtered exhaust fan, or a
// bare sensor.
type Driver struct {
	api         moonraker.API
	waitTimeout time.Duration
	observer    Observer
	logger      Logger
}

// New builds a Driver over the given Moonraker API.
func New(api moonraker.API, cfg Config) (*Driver, error) {
	if api == nil {
		return nil, fmt.Errorf("%w: api is required", ErrInvalidConfig)
	}
	timeout := cfg.WaitTimeout
	if timeout < minWaitTimeout {
		timeout = minWaitTimeout
	}
	return &Driver{api: api, waitTimeout: timeout}, nil
}

// SetObserver registers an optional command and sample observer.
func (d *Driver) SetObserver(o Observer) {
	d.observer = o
}

// SetLogger sets an optional logger.
func (d *Driver) SetLogger(logger Logger) {
	d.logger = logger
}

// Bed reads the heater_bed object.
//
// Returns:
//   - Reading: current and target temperature
//   - error: ErrObjectNotFound when the printer has no heater_bed,
//     ErrBadReading when the object carries no temperature
func (d *Driver) Bed(ctx context.Context) (Reading, error) {
	reading, err := d.read(ctx, bedObject)
	if err != nil {
		return Reading{}, err
	}
	d.sample(ctx, "bed", reading)
	return reading, nil
}

// SetBed sets the bed target via M140, or M190 when waiting. The M190
// call blocks inside the firmware until the bed reaches target, so the
// client's request timeout bounds the wait.
func (d *Driver) SetBed(ctx context.Context, temp float64, wait bool) error {
	const op = "set_bed"
	detail := fmt.Sprintf("target=%.1fC wait=%v", temp, wait)

	if err := d.ensureReady(ctx); err != nil {
		return d.refuse(ctx, op, temp, detail, err)
	}
	if temp < bedMin || temp > bedMax {
		return d.refuse(ctx, op, temp, detail,
			fmt.Errorf("%w: bed target %.1fC outside [%.0f, %.0f]", ErrTempOutOfRange, temp, bedMin, bedMax))
	}

	lines := []string{fmt.Sprintf("M140 S%.1f", temp)}
	if wait {
		lines = append(lines, fmt.Sprintf("M190 S%.1f", temp), "M400")
	}
	return d.send(ctx, op, strings.Join(lines, "\n"), temp, detail)
}

// Chamber reads the chamber temperature, probing known object names
// from most to least specific and returning the first usable answer.
// When nothing answers, the error lists what was tried and any loaded
// objects whose name contains "chamber", which is usually enough to
// spot a naming mismatch in printer.cfg.
func (d *Driver) Chamber(ctx context.Context) (Reading, error) {
	var lastErr error
	for _, object := range chamberCandidates {
		reading, err := d.read(ctx, object)
		if err != nil {
			lastErr = err
			continue
		}
		d.sample(ctx, "chamber", reading)
		return reading, nil
	}

	hint := d.chamberHint(ctx)
	if lastErr != nil {
		return Reading{}, fmt.Errorf("%w: no chamber temperature (tried %s)%s: %w",
			ErrObjectNotFound, strings.Join(chamberCandidates, ", "), hint, lastErr)
	}
	return Reading{}, fmt.Errorf("%w: no chamber temperature (tried %s)%s",
		ErrObjectNotFound, strings.Join(chamberCandidates, ", "), hint)
}

// SetChamber sets the chamber target, preferring a heater_generic over
// a temperature_fan. With wait, it polls until the chamber is within
// one degree of target.
func (d *Driver) SetChamber(ctx context.Context, temp float64, wait bool) error {
	const op = "set_chamber"
	detail := fmt.Sprintf("target=%.1fC wait=%v", temp, wait)

	if err := d.ensureReady(ctx); err != nil {
		return d.refuse(ctx, op, temp, detail, err)
	}
	if temp < chamberMin || temp > chamberMax {
		return d.refuse(ctx, op, temp, detail,
			fmt.Errorf("%w: chamber target %.1fC outside [%.0f, %.0f]", ErrTempOutOfRange, temp, chamberMin, chamberMax))
	}

	var cmd string
	switch {
	case d.objectPresent(ctx, chamberHeater):
		cmd = fmt.Sprintf("SET_HEATER_TEMPERATURE HEATER=chamber TARGET=%.1f", temp)
	case d.objectPresent(ctx, chamberFan):
		cmd = fmt.Sprintf("SET_TEMPERATURE_FAN_TARGET TEMPERATURE_FAN=chamber TARGET=%.1f", temp)
	default:
		return d.refuse(ctx, op, temp, detail,
			fmt.Errorf("%w: cannot set chamber target, no [%s] or [%s] configured",
				ErrObjectNotFound, chamberHeater, chamberFan))
	}

	if err := d.send(ctx, op, cmd, temp, detail); err != nil {
		return err
	}
	if wait {
		return d.WaitChamber(ctx, temp)
	}
	return nil
}

// WaitChamber polls the chamber once a second until it is within one
// degree of target or the wait deadline passes. Every poll emits a
// sample to the observer.
func (d *Driver) WaitChamber(ctx context.Context, target float64) error {
	deadline := time.Now().Add(d.waitTimeout)
	var last float64
	for {
		reading, err := d.Chamber(ctx)
		if err != nil {
			return err
		}
		last = reading.Current
		if math.Abs(reading.Current-target) <= chamberTolerance {
			d.logInfo("chamber at target", "current", reading.Current, "target", target)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: chamber at %.1fC after %s, target %.1fC",
				ErrWaitTimeout, last, d.waitTimeout, target)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(chamberPollInterval):
		}
	}
}

// read queries one object and decodes the shared heater shape.
func (d *Driver) read(ctx context.Context, object string) (Reading, error) {
	status, err := d.api.QueryObjects(ctx, object)
	if err != nil {
		return Reading{}, err
	}
	var heater moonraker.HeaterStatus
	if err := status.Decode(object, &heater); err != nil {
		return Reading{}, fmt.Errorf("%w: %s (check printer.cfg)", ErrObjectNotFound, object)
	}
	if heater.Temperature == nil {
		return Reading{}, fmt.Errorf("%w: %s reports no temperature", ErrBadReading, object)
	}
	reading := Reading{Object: object, Current: *heater.Temperature}
	if heater.Target != nil {
		reading.Target = *heater.Target
		reading.HasTarget = true
	}
	return reading, nil
}

// objectPresent reports whether the printer has the named object
// loaded. Query errors count as absent; the caller falls through to
// the next candidate.
func (d *Driver) objectPresent(ctx context.Context, object string) bool {
	status, err := d.api.QueryObjects(ctx, object)
	if err != nil {
		return false
	}
	_, ok := status[object]
	return ok
}

// chamberHint lists loaded objects whose name mentions a chamber.
func (d *Driver) chamberHint(ctx context.Context) string {
	objects, err := d.api.ListObjects(ctx)
	if err != nil {
		return ""
	}
	var matches []string
	for _, name := range objects {
		if strings.Contains(strings.ToLower(name), "chamber") {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return fmt.Sprintf("; objects containing \"chamber\": %s", strings.Join(matches, ", "))
}

func (d *Driver) ensureReady(ctx context.Context) error {
	info, err := d.api.PrinterInfo(ctx)
	if err != nil {
		return err
	}
	if !info.Ready() {
		return fmt.Errorf("%w: %s %s", ErrNotReady, info.State, info.StateMessage)
	}
	return nil
}

// refuse reports a pre-send failure, mirroring the motion driver's
// split between safety rejections and transport errors.
func (d *Driver) refuse(ctx context.Context, op string, target float64, detail string, err error) error {
	if !isRejection(err) {
		return err
	}
	d.logWarn("thermal command rejected", "op", op, "detail", detail, "error", err)
	d.observeEvent(ctx, Event{Op: op, Target: target, Outcome: OutcomeRejected, Detail: detail, Err: err})
	return err
}

func (d *Driver) send(ctx context.Context, op, scriptText string, target float64, detail string) error {
	err := d.api.SendGCode(ctx, scriptText)
	if err != nil {
		d.logError("thermal command failed", "op", op, "detail", detail, "error", err)
		d.observeEvent(ctx, Event{Op: op, Script: scriptText, Target: target, Outcome: OutcomeFailed, Detail: detail, Err: err})
		return err
	}
	d.logInfo("thermal command sent", "op", op, "detail", detail)
	d.observeEvent(ctx, Event{Op: op, Script: scriptText, Target: target, Outcome: OutcomeSent, Detail: detail})
	return nil
}

func isRejection(err error) bool {
	for _, sentinel := range []error{ErrNotReady, ErrTempOutOfRange, ErrObjectNotFound, ErrBadReading} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func (d *Driver) observeEvent(ctx context.Context, event Event) {
	if d.observer != nil {
		d.observer.ObserveThermal(ctx, event)
	}
}

func (d *Driver) sample(ctx context.Context, heater string, reading Reading) {
	if d.observer == nil {
		return
	}
	d.observer.ObserveSample(ctx, Sample{
		Heater:    heater,
		Object:    reading.Object,
		Current:   reading.Current,
		Target:    reading.Target,
		HasTarget: reading.HasTarget,
	})
}

func (d *Driver) logInfo(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

func (d *Driver) logWarn(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, keysAndValues...)
	}
}

func (d *Driver) logError(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Error(msg, keysAndValues...)
	}
}
