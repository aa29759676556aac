package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/nerrad567/moonrig/internal/motion"
	"github.com/nerrad567/moonrig/internal/toolhead"
)

func newLimitsCmd(opts *cliOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Show machine travel limits and the attachment envelope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.ensureMotion(cmd.Context()); err != nil {
				return err
			}
			if refresh {
				if err := a.motion.RefreshLimits(cmd.Context()); err != nil {
					return err
				}
			}
			return printLimits(a, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refetch limits from the printer")
	return cmd
}

// printLimits renders the cached travel limits and the configured
// attachment envelope. Shared with the console's limits command.
func printLimits(a *app, out io.Writer) error {
	lim, err := a.motion.Limits()
	if err != nil {
		return err
	}
	env := a.motion.Envelope()
	fmt.Fprintln(out, "Machine limits (mm):")
	fmt.Fprintln(out, indent(lim.String()))
	fmt.Fprintln(out, "Attachment envelope (mm):")
	fmt.Fprintf(out, "  X: [%.3f, %.3f]\n  Y: [%.3f, %.3f]\n  Z: [%.3f, %.3f]\n",
		env.MinX, env.MaxX, env.MinY, env.MaxY, env.MinZ, env.MaxZ)
	return nil
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

func newHomeCmd(opts *cliOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "home [AXES]",
		Short: "Home axes behind a confirmation gate",
		Long: `Home runs G28 on the given axes (all three when omitted). Homing drives
the toolhead into the endstops, so the command asks for the literal word
CONFIRM first; pass --yes to skip the prompt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			axes := ""
			if len(args) == 1 {
				axes = args[0]
			}
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.ensureMotion(cmd.Context()); err != nil {
				return err
			}
			if yes {
				a.motion.SetConfirm(func(string) bool { return true })
			} else {
				a.motion.SetConfirm(confirmOnTerminal(cmd.OutOrStdout()))
			}
			if err := a.motion.Home(cmd.Context(), axes); err != nil {
				return err
			}
			cmd.Println("Homing complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}

// confirmOnTerminal returns a gate that requires the operator to type
// the word CONFIRM. Any read error counts as a decline.
func confirmOnTerminal(out io.Writer) motion.ConfirmFunc {
	return func(prompt string) bool {
		fmt.Fprintln(out, prompt)
		rl, err := readline.New("type CONFIRM to proceed> ")
		if err != nil {
			return false
		}
		defer rl.Close()
		line, err := rl.Readline()
		if err != nil {
			return false
		}
		return strings.ToUpper(strings.TrimSpace(line)) == "CONFIRM"
	}
}

func newMoveCmd(opts *cliOptions) *cobra.Command {
	var speed float64
	cmd := &cobra.Command{
		Use:   "move X Y Z",
		Short: "Move the toolhead to an absolute position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			vals, err := parseFloats([]string{"X", "Y", "Z"}, args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.ensureMotion(cmd.Context()); err != nil {
				return err
			}
			target := toolhead.Point{X: vals[0], Y: vals[1], Z: vals[2]}
			if err := a.motion.MoveAbsolute(cmd.Context(), target, a.speedOr(speed), false); err != nil {
				return err
			}
			cmd.Printf("Move issued: %s\n", target)
			return nil
		},
	}
	cmd.Flags().Float64Var(&speed, "speed", 0, "travel speed in mm/s (default from config)")
	return cmd
}

func newRMoveCmd(opts *cliOptions) *cobra.Command {
	var speed float64
	cmd := &cobra.Command{
		Use:   "rmove DX DY DZ",
		Short: "Move the toolhead relative to its current position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			vals, err := parseFloats([]string{"DX", "DY", "DZ"}, args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.ensureMotion(cmd.Context()); err != nil {
				return err
			}
			if err := a.motion.MoveRelative(cmd.Context(), vals[0], vals[1], vals[2], a.speedOr(speed), false); err != nil {
				return err
			}
			cmd.Printf("Relative move issued: delta=(%.3f, %.3f, %.3f)\n", vals[0], vals[1], vals[2])
			return nil
		},
	}
	cmd.Flags().Float64Var(&speed, "speed", 0, "travel speed in mm/s (default from config)")
	return cmd
}

func newLineCmd(opts *cliOptions) *cobra.Command {
	var speed float64
	cmd := &cobra.Command{
		Use:   "line X1 Y1 Z1 X2 Y2 Z2",
		Short: "Run a straight pass between two validated points",
		Args:  cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			vals, err := parseFloats([]string{"X1", "Y1", "Z1", "X2", "Y2", "Z2"}, args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.ensureMotion(cmd.Context()); err != nil {
				return err
			}
			from := toolhead.Point{X: vals[0], Y: vals[1], Z: vals[2]}
			to := toolhead.Point{X: vals[3], Y: vals[4], Z: vals[5]}
			if err := a.motion.MoveLine(cmd.Context(), from, to, a.speedOr(speed), false); err != nil {
				return err
			}
			cmd.Printf("Line issued: %s -> %s\n", from, to)
			return nil
		},
	}
	cmd.Flags().Float64Var(&speed, "speed", 0, "travel speed in mm/s (default from config)")
	return cmd
}

func newSweepCmd(opts *cliOptions) *cobra.Command {
	var (
		x, yStart, yEnd, zContact float64
		zSafe, travel, approach   float64
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one Y-axis pass at a fixed X and contact height",
		Long: `Sweep retracts to the safe height, positions at (--x, --y-start), descends
to --z-contact, travels to --y-end and retracts again, all as a single
G-code batch. All four corners of the pass are validated first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.ensureMotion(cmd.Context()); err != nil {
				return err
			}
			sw := motion.Sweep{
				X:             x,
				YStart:        yStart,
				YEnd:          yEnd,
				ZContact:      zContact,
				ZSafe:         zSafe,
				TravelSpeed:   a.speedOr(travel),
				ApproachSpeed: a.speedOr(approach),
			}
			if err := a.motion.SweepY(cmd.Context(), sw, false); err != nil {
				return err
			}
			cmd.Printf("Sweep issued: x=%.3f y=[%.3f, %.3f] z_contact=%.3f\n", x, yStart, yEnd, zContact)
			return nil
		},
	}
	cmd.Flags().Float64Var(&x, "x", 0, "fixed X position in mm")
	cmd.Flags().Float64Var(&yStart, "y-start", 0, "Y start of the pass in mm")
	cmd.Flags().Float64Var(&yEnd, "y-end", 0, "Y end of the pass in mm")
	cmd.Flags().Float64Var(&zContact, "z-contact", 0, "contact height in mm")
	cmd.Flags().Float64Var(&zSafe, "z-safe", 0, "retract height in mm (default derived from config)")
	cmd.Flags().Float64Var(&travel, "travel-speed", 0, "Y pass speed in mm/s (default from config)")
	cmd.Flags().Float64Var(&approach, "approach-speed", 0, "positioning speed in mm/s (default from config)")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y-start")
	_ = cmd.MarkFlagRequired("y-end")
	_ = cmd.MarkFlagRequired("z-contact")
	return cmd
}

func newVelCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vel VELOCITY ACCEL",
		Short: "Cap the firmware's velocity and acceleration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vals, err := parseFloats([]string{"VELOCITY", "ACCEL"}, args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.ensureMotion(cmd.Context()); err != nil {
				return err
			}
			if err := a.motion.SetMotionLimits(cmd.Context(), vals[0], vals[1]); err != nil {
				return err
			}
			cmd.Printf("Velocity capped at %.1f mm/s, acceleration at %.1f mm/s2\n", vals[0], vals[1])
			return nil
		},
	}
}

// printPosition renders the live toolhead position. Used by the console.
func printPosition(ctx context.Context, a *app, out io.Writer) error {
	pos, err := a.motion.Position(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Position: %s\n", pos)
	return nil
}
