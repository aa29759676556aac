// Package motion issues validated movement commands to a Klipper
// printer through Moonraker.
//
// Nothing here trusts the caller: every operation re-checks that the
// driver is initialized, that Klipper is ready right now, and that the
// axes it needs are homed. Targets are validated against the machine's
// travel limits extended by the attachment envelope (see the toolhead
// package) before a single byte of G-code is generated. A rejected
// command produces no printer traffic at all.
//
// # Command model
//
// Each operation builds one newline-joined G-code batch and submits it
// as a single gcode/script call. Batches always begin with G90, so
// absolute positioning never depends on modal state left by earlier
// commands, including relative moves, which are converted to absolute
// targets before emission.
//
// Homing is special twice over: it is the one operation that runs on an
// unhomed machine, and the one gated behind an operator confirmation
// callback, because G28 drives toward endstops regardless of what is
// bolted to the toolhead.
//
// # Usage
//
//	driver, err := motion.New(client, motion.Config{
//	    Envelope:  toolhead.Envelope{MaxX: 30, MinZ: -41},
//	    MinSafeZ:  0,
//	    ZSpeed:    8,
//	})
//	if err != nil {
//	    return err
//	}
//	driver.SetConfirm(promptOperator)
//
//	if err := driver.Initialize(ctx); err != nil {
//	    return err
//	}
//	err = driver.MoveAbsolute(ctx, toolhead.Point{X: 200, Y: 200, Z: 50}, 25, true)
//
// # Thread Safety
//
// Driver is not synchronized. The command model is a single synchronous
// operator; concurrent callers must serialize externally.
package motion
