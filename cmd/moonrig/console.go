package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/nerrad567/moonrig/internal/journal"
	"github.com/nerrad567/moonrig/internal/motion"
	"github.com/nerrad567/moonrig/internal/toolhead"
)

const consolePrompt = "moonrig> "

func newConsoleCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive console with history and completion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return runConsole(cmd.Context(), a)
		},
	}
}

// consoleCompleter lists console commands for tab completion.
var consoleCompleter = readline.NewPrefixCompleter(
	readline.PcItem("status"),
	readline.PcItem("pos"),
	readline.PcItem("limits", readline.PcItem("refresh")),
	readline.PcItem("home"),
	readline.PcItem("move"),
	readline.PcItem("rmove"),
	readline.PcItem("line"),
	readline.PcItem("sweep"),
	readline.PcItem("bed"),
	readline.PcItem("chamber"),
	readline.PcItem("vel"),
	readline.PcItem("restart"),
	readline.PcItem("journal"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
)

// runConsole is the interactive loop: read a line, split it, dispatch.
// One app instance lives for the whole session, so the motion driver
// initializes once and the limits cache survives between commands.
func runConsole(ctx context.Context, a *app) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          consolePrompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".moonrig_history"),
		AutoComplete:    consoleCompleter,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialising console: %w", err)
	}
	defer rl.Close()

	// Homing confirmation reads from the console's own line editor.
	a.motion.SetConfirm(func(prompt string) bool {
		fmt.Fprintln(rl.Stdout(), prompt)
		rl.SetPrompt("type CONFIRM to proceed> ")
		defer rl.SetPrompt(consolePrompt)
		line, err := rl.Readline()
		if err != nil {
			return false
		}
		return strings.ToUpper(strings.TrimSpace(line)) == "CONFIRM"
	})

	out := rl.Stdout()
	fmt.Fprintf(out, "moonrig %s. Type help for commands, exit to leave.\n", version)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		}

		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}
		if err := dispatch(ctx, a, out, fields[0], fields[1:]); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

// dispatch routes one console line to the matching operation. Errors
// come back to the loop, which prints them and keeps going.
func dispatch(ctx context.Context, a *app, out io.Writer, command string, args []string) error {
	switch command {
	case "help":
		printConsoleHelp(out)
		return nil
	case "status":
		return printStatus(ctx, a, out)
	case "pos":
		return printPosition(ctx, a, out)
	case "limits":
		if err := a.ensureMotion(ctx); err != nil {
			return err
		}
		if len(args) == 1 && args[0] == "refresh" {
			if err := a.motion.RefreshLimits(ctx); err != nil {
				return err
			}
		}
		return printLimits(a, out)
	case "home":
		axes := ""
		if len(args) > 0 {
			axes = args[0]
		}
		if err := a.ensureMotion(ctx); err != nil {
			return err
		}
		if err := a.motion.Home(ctx, axes); err != nil {
			return err
		}
		fmt.Fprintln(out, "homing complete")
		return nil
	case "move":
		return consoleMove(ctx, a, out, args)
	case "rmove":
		return consoleRMove(ctx, a, out, args)
	case "line":
		return consoleLine(ctx, a, out, args)
	case "sweep":
		return consoleSweep(ctx, a, out, args)
	case "bed":
		return consoleHeater(ctx, a, out, "bed", args)
	case "chamber":
		return consoleHeater(ctx, a, out, "chamber", args)
	case "vel":
		vals, err := floatArgs(args, 2, 2)
		if err != nil {
			return err
		}
		if err := a.ensureMotion(ctx); err != nil {
			return err
		}
		if err := a.motion.SetMotionLimits(ctx, vals[0], vals[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "velocity capped at %.1f mm/s, acceleration at %.1f mm/s2\n", vals[0], vals[1])
		return nil
	case "restart":
		if err := firmwareRestart(ctx, a); err != nil {
			return err
		}
		fmt.Fprintln(out, "firmware restart issued")
		return nil
	case "journal":
		filter := journal.Filter{}
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("journal takes an entry count, got %q", args[0])
			}
			filter.Limit = n
		}
		return printJournal(ctx, a, out, filter)
	default:
		return fmt.Errorf("unknown command %q (try help)", command)
	}
}

func consoleMove(ctx context.Context, a *app, out io.Writer, args []string) error {
	vals, err := floatArgs(args, 3, 4)
	if err != nil {
		return err
	}
	if err := a.ensureMotion(ctx); err != nil {
		return err
	}
	speed := 0.0
	if len(vals) == 4 {
		speed = vals[3]
	}
	target := toolhead.Point{X: vals[0], Y: vals[1], Z: vals[2]}
	if err := a.motion.MoveAbsolute(ctx, target, a.speedOr(speed), false); err != nil {
		return err
	}
	fmt.Fprintf(out, "move issued: %s\n", target)
	return nil
}

func consoleRMove(ctx context.Context, a *app, out io.Writer, args []string) error {
	vals, err := floatArgs(args, 3, 4)
	if err != nil {
		return err
	}
	if err := a.ensureMotion(ctx); err != nil {
		return err
	}
	speed := 0.0
	if len(vals) == 4 {
		speed = vals[3]
	}
	if err := a.motion.MoveRelative(ctx, vals[0], vals[1], vals[2], a.speedOr(speed), false); err != nil {
		return err
	}
	fmt.Fprintf(out, "relative move issued: delta=(%.3f, %.3f, %.3f)\n", vals[0], vals[1], vals[2])
	return nil
}

func consoleLine(ctx context.Context, a *app, out io.Writer, args []string) error {
	vals, err := floatArgs(args, 6, 7)
	if err != nil {
		return err
	}
	if err := a.ensureMotion(ctx); err != nil {
		return err
	}
	speed := 0.0
	if len(vals) == 7 {
		speed = vals[6]
	}
	from := toolhead.Point{X: vals[0], Y: vals[1], Z: vals[2]}
	to := toolhead.Point{X: vals[3], Y: vals[4], Z: vals[5]}
	if err := a.motion.MoveLine(ctx, from, to, a.speedOr(speed), false); err != nil {
		return err
	}
	fmt.Fprintf(out, "line issued: %s -> %s\n", from, to)
	return nil
}

func consoleSweep(ctx context.Context, a *app, out io.Writer, args []string) error {
	vals, err := floatArgs(args, 4, 5)
	if err != nil {
		return err
	}
	if err := a.ensureMotion(ctx); err != nil {
		return err
	}
	sw := motion.Sweep{
		X:             vals[0],
		YStart:        vals[1],
		YEnd:          vals[2],
		ZContact:      vals[3],
		TravelSpeed:   a.speedOr(0),
		ApproachSpeed: a.speedOr(0),
	}
	if len(vals) == 5 {
		sw.ZSafe = vals[4]
	}
	if err := a.motion.SweepY(ctx, sw, false); err != nil {
		return err
	}
	fmt.Fprintf(out, "sweep issued: x=%.3f y=[%.3f, %.3f] z_contact=%.3f\n", sw.X, sw.YStart, sw.YEnd, sw.ZContact)
	return nil
}

func consoleHeater(ctx context.Context, a *app, out io.Writer, heater string, args []string) error {
	read := a.thermal.Bed
	set := a.thermal.SetBed
	if heater == "chamber" {
		read = a.thermal.Chamber
		set = a.thermal.SetChamber
	}
	if len(args) == 0 {
		r, err := read(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", heater, formatReading(r))
		return nil
	}
	vals, err := floatArgs(args, 1, 1)
	if err != nil {
		return err
	}
	if err := set(ctx, vals[0], false); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s target set to %.1f°C\n", heater, vals[0])
	return nil
}

// floatArgs parses between min and max numeric arguments.
func floatArgs(args []string, min, max int) ([]float64, error) {
	if len(args) < min || len(args) > max {
		if min == max {
			return nil, fmt.Errorf("expected %d numeric arguments, got %d", min, len(args))
		}
		return nil, fmt.Errorf("expected %d to %d numeric arguments, got %d", min, max, len(args))
	}
	vals := make([]float64, len(args))
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d must be a number, got %q", i+1, arg)
		}
		vals[i] = v
	}
	return vals, nil
}

func printConsoleHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  status                               printer state, position, bed")
	fmt.Fprintln(out, "  pos                                  current toolhead position")
	fmt.Fprintln(out, "  limits [refresh]                     travel limits and envelope")
	fmt.Fprintln(out, "  home [AXES]                          home axes (asks CONFIRM)")
	fmt.Fprintln(out, "  move X Y Z [SPEED]                   absolute move")
	fmt.Fprintln(out, "  rmove DX DY DZ [SPEED]               relative move")
	fmt.Fprintln(out, "  line X1 Y1 Z1 X2 Y2 Z2 [SPEED]       straight pass between two points")
	fmt.Fprintln(out, "  sweep X YSTART YEND ZCONTACT [ZSAFE] Y pass at fixed X")
	fmt.Fprintln(out, "  bed [TEMP]                           read or set bed temperature")
	fmt.Fprintln(out, "  chamber [TEMP]                       read or set chamber temperature")
	fmt.Fprintln(out, "  vel VELOCITY ACCEL                   cap firmware motion limits")
	fmt.Fprintln(out, "  restart                              restart Klipper firmware")
	fmt.Fprintln(out, "  journal [N]                          recent journal entries")
	fmt.Fprintln(out, "  help                                 this help")
	fmt.Fprintln(out, "  exit                                 leave the console")
}
