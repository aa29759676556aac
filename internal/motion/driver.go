package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nerrad567/moonrig/internal/moonraker"
	"github.com/nerrad567/moonrig/internal/toolhead"
)

// Defaults and fixed policy for motion commands.
const (
	// defaultZSpeed is the Z travel speed in mm/s when unconfigured.
	defaultZSpeed = 8.0

	// defaultSpeed is the XY travel speed in mm/s when unconfigured.
	defaultSpeed = 25.0

	// defaultMaxZDelta is the largest |dz| a relative move may request
	// when unconfigured, in mm.
	defaultMaxZDelta = 50.0

	// idlePollInterval is how often the idle wait samples the moving
	// flag.
	idlePollInterval = 200 * time.Millisecond

	// defaultIdleTimeout bounds the idle wait. Sweeps across a large
	// bed at conservative speeds stay well inside this.
	defaultIdleTimeout = 120 * time.Second

	// parkSpeed and parkClearance place the toolhead at bed centre,
	// clearance mm above the attachment's lowest point, after a full
	// home.
	parkSpeed     = 20.0
	parkClearance = 10.0

	// allAxes is the default homing set.
	allAxes = "XYZ"
)

// Command outcomes as seen by observers.
const (
	OutcomeSent     = "sent"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Config holds motion driver configuration.
type Config struct {
	// ZSpeed is the speed for Z-only moves in sweeps, mm/s. Default: 8.
	ZSpeed float64

	// DefaultSpeed is the fallback travel speed in mm/s. Default: 25.
	DefaultSpeed float64

	// MinSafeZ is an absolute Z floor for every validated target, mm.
	// Zero disables the floor.
	MinSafeZ float64

	// MaxZDelta caps |dz| on relative moves, mm. Default: 50.
	MaxZDelta float64

	// ParkAfterHome moves to bed centre at a safe height after a full
	// XYZ home.
	ParkAfterHome bool

	// Envelope is the attachment bounding box. The zero value is a bare
	// toolhead.
	Envelope toolhead.Envelope

	// IdleTimeout bounds WaitMotionIdle. Default: 120 seconds.
	IdleTimeout time.Duration
}

// ConfirmFunc asks the operator to acknowledge a dangerous action.
// It must return true only on an explicit positive answer.
type ConfirmFunc func(prompt string) bool

// Event is the record of one motion command handed to observers.
type Event struct {
	// Op names the operation: "move_absolute", "sweep_y", "home", ...
	Op string

	// Script is the G-code batch issued. Empty when the command was
	// rejected before any traffic.
	Script string

	// Target is the final commanded position, where the operation has
	// one.
	Target toolhead.Point

	// Duration is the time spent issuing the script, not including any
	// idle wait.
	Duration time.Duration

	// Outcome is OutcomeSent, OutcomeRejected or OutcomeFailed.
	Outcome string

	// Detail is a one-line human summary of the arguments.
	Detail string

	// Err is set when Outcome is not OutcomeSent.
	Err error
}

// Observer receives motion command outcomes: journal writers, telemetry
// recorders, MQTT announcers.
type Observer interface {
	ObserveMotion(ctx context.Context, event Event)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Driver issues validated motion commands to the printer. Every target
// is checked against the machine's travel limits extended by the
// attachment envelope before any G-code leaves the process.
//
// A Driver starts uninitialized: Initialize must succeed (printer
// ready, envelope sane, limits fetched) before any command is accepted.
type Driver struct {
	api       moonraker.API
	cfg       Config
	limits    *toolhead.Cache
	validator *toolhead.Validator

	initialized bool
	confirm     ConfirmFunc
	observer    Observer
	logger      Logger
}

// New builds a Driver over the given Moonraker API. Zero config fields
// get defaults; the envelope is validated later, by Initialize.
func New(api moonraker.API, cfg Config) (*Driver, error) {
	if api == nil {
		return nil, fmt.Errorf("%w: api is required", ErrInvalidConfig)
	}
	if cfg.ZSpeed <= 0 {
		cfg.ZSpeed = defaultZSpeed
	}
	if cfg.DefaultSpeed <= 0 {
		cfg.DefaultSpeed = defaultSpeed
	}
	if cfg.MaxZDelta <= 0 {
		cfg.MaxZDelta = defaultMaxZDelta
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}

	cache := &toolhead.Cache{}
	return &Driver{
		api:       api,
		cfg:       cfg,
		limits:    cache,
		validator: toolhead.NewValidator(cache, cfg.Envelope, cfg.MinSafeZ),
	}, nil
}

// SetConfirm registers the operator confirmation gate used by Home.
// Without one, homing is always cancelled.
func (d *Driver) SetConfirm(fn ConfirmFunc) {
	d.confirm = fn
}

// SetObserver registers an optional command observer.
func (d *Driver) SetObserver(o Observer) {
	d.observer = o
}

// SetLogger sets an optional logger.
func (d *Driver) SetLogger(logger Logger) {
	d.logger = logger
}

// Initialize verifies the printer is ready, validates the attachment
// envelope and fetches axis limits. It must succeed before any motion
// command.
func (d *Driver) Initialize(ctx context.Context) error {
	if err := d.ensureReady(ctx); err != nil {
		return err
	}
	if err := d.cfg.Envelope.Validate(); err != nil {
		return err
	}
	if err := d.RefreshLimits(ctx); err != nil {
		return err
	}
	d.initialized = true
	limits, _ := d.limits.Get()
	d.logInfo("motion driver initialized",
		"x_range", fmt.Sprintf("[%.1f, %.1f]", limits.X.Min, limits.X.Max),
		"y_range", fmt.Sprintf("[%.1f, %.1f]", limits.Y.Min, limits.Y.Max),
		"z_range", fmt.Sprintf("[%.1f, %.1f]", limits.Z.Min, limits.Z.Max))
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (d *Driver) Initialized() bool {
	return d.initialized
}

// RefreshLimits refetches the machine's axis limits from the toolhead
// object and replaces the cache. Call after a firmware restart or any
// kinematics change.
func (d *Driver) RefreshLimits(ctx context.Context) error {
	th, err := d.api.Toolhead(ctx)
	if err != nil {
		return err
	}
	limits, err := toolhead.LimitsFromArrays(th.AxisMinimum, th.AxisMaximum)
	if err != nil {
		return err
	}
	d.limits.Set(limits)
	d.logDebug("axis limits refreshed",
		"x_max", limits.X.Max, "y_max", limits.Y.Max, "z_max", limits.Z.Max)
	return nil
}

// InvalidateLimits drops the cached limits, forcing a refresh before
// the next validated move.
func (d *Driver) InvalidateLimits() {
	d.limits.Invalidate()
	d.initialized = false
}

// Limits returns the cached axis limits.
func (d *Driver) Limits() (toolhead.Limits, error) {
	return d.limits.Get()
}

// Envelope returns the configured attachment envelope.
func (d *Driver) Envelope() toolhead.Envelope {
	return d.cfg.Envelope
}

// Position returns the toolhead's current XYZ position.
func (d *Driver) Position(ctx context.Context) (toolhead.Point, error) {
	th, err := d.api.Toolhead(ctx)
	if err != nil {
		return toolhead.Point{}, err
	}
	if len(th.Position) < 3 {
		return toolhead.Point{}, fmt.Errorf("%w: toolhead position has %d elements",
			moonraker.ErrInvalidResponse, len(th.Position))
	}
	return toolhead.Point{X: th.Position[0], Y: th.Position[1], Z: th.Position[2]}, nil
}

// MoveAbsolute validates target and issues an absolute move.
//
// Parameters:
//   - target: machine coordinates, mm
//   - speed: travel speed in mm/s, must be positive
//   - wait: block until the printer reports motion idle
func (d *Driver) MoveAbsolute(ctx context.Context, target toolhead.Point, speed float64, wait bool) error {
	const op = "move_absolute"
	detail := fmt.Sprintf("%s speed=%.1fmm/s", target, speed)

	if err := d.preflight(ctx, allAxes); err != nil {
		return d.refuse(ctx, op, detail, err)
	}
	if speed <= 0 {
		return d.refuse(ctx, op, detail, fmt.Errorf("%w: got %.3f", ErrBadSpeed, speed))
	}
	if err := d.validator.CheckPoint(target); err != nil {
		return d.refuse(ctx, op, detail, err)
	}

	if err := d.send(ctx, op, script(absolutePositioning, moveXYZ(target, speed)), detail, target); err != nil {
		return err
	}
	if wait {
		return d.WaitMotionIdle(ctx)
	}
	return nil
}

// MoveRelative validates and issues a move relative to the current
// position. |dz| is capped by MaxZDelta before anything else; the
// resulting absolute target then goes through the usual envelope
// validation, and the emitted G-code is absolute so no modal state
// leaks into later commands.
func (d *Driver) MoveRelative(ctx context.Context, dx, dy, dz, speed float64, wait bool) error {
	const op = "move_relative"
	detail := fmt.Sprintf("delta=(%.3f, %.3f, %.3f) speed=%.1fmm/s", dx, dy, dz, speed)

	if err := d.preflight(ctx, allAxes); err != nil {
		return d.refuse(ctx, op, detail, err)
	}
	if speed <= 0 {
		return d.refuse(ctx, op, detail, fmt.Errorf("%w: got %.3f", ErrBadSpeed, speed))
	}
	if math.Abs(dz) > d.cfg.MaxZDelta {
		return d.refuse(ctx, op, detail,
			fmt.Errorf("%w: |%.3f| > %.3f", ErrZClamp, dz, d.cfg.MaxZDelta))
	}

	current, err := d.Position(ctx)
	if err != nil {
		return err
	}
	target := toolhead.Point{X: current.X + dx, Y: current.Y + dy, Z: current.Z + dz}
	if err := d.validator.CheckPoint(target); err != nil {
		return d.refuse(ctx, op, detail, err)
	}

	if err := d.send(ctx, op, script(absolutePositioning, moveXYZ(target, speed)), detail, target); err != nil {
		return err
	}
	if wait {
		return d.WaitMotionIdle(ctx)
	}
	return nil
}

// MoveLine validates both endpoints and issues a two-segment move:
// position at from, then travel to to. Useful for straight passes that
// must start from a known point.
func (d *Driver) MoveLine(ctx context.Context, from, to toolhead.Point, speed float64, wait bool) error {
	const op = "move_line"
	detail := fmt.Sprintf("from %s to %s speed=%.1fmm/s", from, to, speed)

	if err := d.preflight(ctx, allAxes); err != nil {
		return d.refuse(ctx, op, detail, err)
	}
	if speed <= 0 {
		return d.refuse(ctx, op, detail, fmt.Errorf("%w: got %.3f", ErrBadSpeed, speed))
	}
	for _, p := range []toolhead.Point{from, to} {
		if err := d.validator.CheckPoint(p); err != nil {
			return d.refuse(ctx, op, detail, err)
		}
	}

	batch := script(absolutePositioning, moveXYZ(from, speed), moveXYZ(to, speed))
	if err := d.send(ctx, op, batch, detail, to); err != nil {
		return err
	}
	if wait {
		return d.WaitMotionIdle(ctx)
	}
	return nil
}

// Sweep describes one Y-axis pass at a fixed X: descend to contact
// height, travel the Y span, retract.
type Sweep struct {
	X        float64
	YStart   float64
	YEnd     float64
	ZContact float64

	// ZSafe is the retract height. Zero derives max(MinSafeZ, ZContact).
	ZSafe float64

	// TravelSpeed is the Y pass speed, ApproachSpeed the positioning
	// speed. Both mm/s, both must be positive.
	TravelSpeed   float64
	ApproachSpeed float64
}

// SweepY validates all four corners of the sweep rectangle and issues
// the pass as a single batch: retract, position, descend, sweep,
// retract. Z moves run at the configured ZSpeed.
func (d *Driver) SweepY(ctx context.Context, sw Sweep, wait bool) error {
	const op = "sweep_y"
	detail := fmt.Sprintf("x=%.3f y=[%.3f, %.3f] z_contact=%.3f", sw.X, sw.YStart, sw.YEnd, sw.ZContact)

	if err := d.preflight(ctx, allAxes); err != nil {
		return d.refuse(ctx, op, detail, err)
	}
	if sw.TravelSpeed <= 0 || sw.ApproachSpeed <= 0 {
		return d.refuse(ctx, op, detail,
			fmt.Errorf("%w: travel=%.3f approach=%.3f", ErrBadSpeed, sw.TravelSpeed, sw.ApproachSpeed))
	}

	zSafe := sw.ZSafe
	if zSafe == 0 {
		zSafe = math.Max(d.cfg.MinSafeZ, sw.ZContact)
	}

	corners := []toolhead.Point{
		{X: sw.X, Y: sw.YStart, Z: zSafe},
		{X: sw.X, Y: sw.YEnd, Z: zSafe},
		{X: sw.X, Y: sw.YStart, Z: sw.ZContact},
		{X: sw.X, Y: sw.YEnd, Z: sw.ZContact},
	}
	for _, corner := range corners {
		if err := d.validator.CheckPoint(corner); err != nil {
			return d.refuse(ctx, op, detail, err)
		}
	}

	batch := script(
		absolutePositioning,
		moveZ(zSafe, d.cfg.ZSpeed),
		moveXY(sw.X, sw.YStart, sw.ApproachSpeed),
		moveZ(sw.ZContact, d.cfg.ZSpeed),
		moveY(sw.YEnd, sw.TravelSpeed),
		moveZ(zSafe, d.cfg.ZSpeed),
	)
	target := toolhead.Point{X: sw.X, Y: sw.YEnd, Z: zSafe}
	if err := d.send(ctx, op, batch, detail, target); err != nil {
		return err
	}
	if wait {
		return d.WaitMotionIdle(ctx)
	}
	return nil
}

// Home runs G28 on the given axes (all when empty) behind the operator
// confirmation gate, waits for completion, and optionally parks at bed
// centre after a full XYZ home. The park move goes through the same
// validation as any other move.
func (d *Driver) Home(ctx context.Context, axes string) error {
	const op = "home"
	if strings.TrimSpace(axes) == "" {
		axes = allAxes
	}
	normalized, err := toolhead.NormalizeAxes(axes)
	if err != nil {
		return d.refuse(ctx, op, axes, err)
	}
	detail := "axes=" + normalized

	if err := d.preflight(ctx, ""); err != nil {
		return d.refuse(ctx, op, detail, err)
	}

	prompt := fmt.Sprintf("home %s: the toolhead will touch axis endstops; confirm the bed and travel path are clear", normalized)
	if d.confirm == nil {
		return d.refuse(ctx, op, detail, fmt.Errorf("%w: no confirmation callback registered", ErrHomingCancelled))
	}
	if !d.confirm(prompt) {
		return d.refuse(ctx, op, detail, fmt.Errorf("%w: operator declined", ErrHomingCancelled))
	}

	if err := d.send(ctx, op, homeAxes(normalized), detail, toolhead.Point{}); err != nil {
		return err
	}
	if err := d.WaitMoves(ctx); err != nil {
		return err
	}

	if d.cfg.ParkAfterHome && normalized == allAxes {
		limits, err := d.limits.Get()
		if err != nil {
			return err
		}
		park := toolhead.Point{
			X: (limits.X.Min + limits.X.Max) / 2,
			Y: (limits.Y.Min + limits.Y.Max) / 2,
			Z: -d.cfg.Envelope.MinZ + parkClearance,
		}
		d.logInfo("parking after home", "target", park.String())
		return d.MoveAbsolute(ctx, park, parkSpeed, true)
	}
	return nil
}

// SetMotionLimits caps the firmware's velocity and acceleration via
// SET_VELOCITY_LIMIT. Both values must be positive.
func (d *Driver) SetMotionLimits(ctx context.Context, velocity, accel float64) error {
	const op = "set_velocity_limit"
	detail := fmt.Sprintf("velocity=%.1fmm/s accel=%.1fmm/s2", velocity, accel)

	if err := d.preflight(ctx, ""); err != nil {
		return d.refuse(ctx, op, detail, err)
	}
	if velocity <= 0 || accel <= 0 {
		return d.refuse(ctx, op, detail,
			fmt.Errorf("%w: velocity and accel must be > 0 (got %.3f, %.3f)", ErrBadSpeed, velocity, accel))
	}
	return d.send(ctx, op, velocityLimit(velocity, accel), detail, toolhead.Point{})
}

// WaitMotionIdle polls the toolhead's moving flag until the printer
// reports idle or the configured timeout passes.
func (d *Driver) WaitMotionIdle(ctx context.Context) error {
	deadline := time.Now().Add(d.cfg.IdleTimeout)
	for {
		th, err := d.api.Toolhead(ctx)
		if err != nil {
			return err
		}
		if !th.Moving {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: still moving after %s", ErrWaitTimeout, d.cfg.IdleTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(idlePollInterval):
		}
	}
}

// WaitMoves blocks inside the firmware until all queued moves finish,
// via M400. The gcode/script call itself blocks, so the client's
// request timeout bounds how long this can wait.
func (d *Driver) WaitMoves(ctx context.Context) error {
	d.logDebug("waiting for move queue to drain")
	return d.api.SendGCode(ctx, waitForMoves)
}

// preflight runs the per-command preconditions: driver initialized,
// Klipper ready, and (when needHomed is non-empty) the given axes
// homed.
func (d *Driver) preflight(ctx context.Context, needHomed string) error {
	if !d.initialized {
		return fmt.Errorf("%w: driver not initialized (call Initialize first)", ErrNotReady)
	}
	if err := d.ensureReady(ctx); err != nil {
		return err
	}
	if needHomed != "" {
		return d.ensureHomed(ctx, needHomed)
	}
	return nil
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

func (d *Driver) ensureHomed(ctx context.Context, axes string) error {
	th, err := d.api.Toolhead(ctx)
	if err != nil {
		return err
	}
	if !toolhead.ContainsAxes(th.HomedAxes, axes) {
		homed := th.HomedAxes
		if homed == "" {
			homed = "none"
		}
		return fmt.Errorf("%w: need %s, printer reports %q (home first)", ErrNotHomed, axes, homed)
	}
	return nil
}

// refuse reports a pre-send failure. Safety rejections go to the
// observer; transport errors pass through untouched.
func (d *Driver) refuse(ctx context.Context, op, detail string, err error) error {
	if !isRejection(err) {
		return err
	}
	d.logWarn("motion command rejected", "op", op, "detail", detail, "error", err)
	d.observe(ctx, Event{Op: op, Outcome: OutcomeRejected, Detail: detail, Err: err})
	return err
}

// send issues one G-code batch and reports the outcome.
func (d *Driver) send(ctx context.Context, op, batch, detail string, target toolhead.Point) error {
	start := time.Now()
	err := d.api.SendGCode(ctx, batch)
	elapsed := time.Since(start)
	if err != nil {
		d.logError("g-code send failed", "op", op, "detail", detail, "error", err)
		d.observe(ctx, Event{Op: op, Script: batch, Target: target, Duration: elapsed, Outcome: OutcomeFailed, Detail: detail, Err: err})
		return err
	}
	d.logInfo("g-code sent", "op", op, "detail", detail, "duration_ms", elapsed.Milliseconds())
	d.observe(ctx, Event{Op: op, Script: batch, Target: target, Duration: elapsed, Outcome: OutcomeSent, Detail: detail})
	return nil
}

// isRejection distinguishes safety refusals from transport failures.
func isRejection(err error) bool {
	for _, sentinel := range []error{
		ErrNotReady, ErrNotHomed, ErrBadSpeed, ErrZClamp, ErrHomingCancelled,
		toolhead.ErrOutOfRange, toolhead.ErrBadEnvelope,
		toolhead.ErrLimitsNotInitialized, toolhead.ErrBadAxes,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func (d *Driver) observe(ctx context.Context, event Event) {
	if d.observer != nil {
		d.observer.ObserveMotion(ctx, event)
	}
}

func (d *Driver) logDebug(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, keysAndValues...)
	}
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
