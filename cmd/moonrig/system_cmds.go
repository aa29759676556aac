package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/moonrig/internal/discovery"
	"github.com/nerrad567/moonrig/internal/infrastructure/config"
	"github.com/nerrad567/moonrig/internal/journal"
)

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show printer state, position and bed temperature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return printStatus(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
}

// printStatus renders the one-page printer summary. Shared with the
// console's status command.
func printStatus(ctx context.Context, a *app, out io.Writer) error {
	info, err := a.printer.PrinterInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Printer:  %s\n", info.Hostname)
	fmt.Fprintf(out, "Klipper:  %s\n", info.SoftwareVersion)
	fmt.Fprintf(out, "State:    %s\n", info.State)
	if !info.Ready() && info.StateMessage != "" {
		fmt.Fprintf(out, "Message:  %s\n", strings.TrimSpace(info.StateMessage))
	}

	th, err := a.printer.Toolhead(ctx)
	if err != nil {
		return err
	}
	homed := th.HomedAxes
	if homed == "" {
		homed = "none"
	}
	fmt.Fprintf(out, "Homed:    %s\n", homed)
	if len(th.Position) >= 3 {
		fmt.Fprintf(out, "Position: X=%.3f Y=%.3f Z=%.3f\n", th.Position[0], th.Position[1], th.Position[2])
	}

	// Best effort: not every machine has a heated bed.
	if r, err := a.thermal.Bed(ctx); err == nil {
		fmt.Fprintf(out, "Bed:      %s\n", formatReading(r))
	}
	return nil
}

func newRestartCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the Klipper firmware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := firmwareRestart(cmd.Context(), a); err != nil {
				return err
			}
			cmd.Println("Firmware restart issued; Klipper will be briefly unavailable")
			return nil
		},
	}
}

// firmwareRestart issues the restart, journals it, and drops the cached
// limits so the next motion command refetches them.
func firmwareRestart(ctx context.Context, a *app) error {
	err := a.printer.FirmwareRestart(ctx)
	outcome := journal.OutcomeSent
	if err != nil {
		outcome = journal.OutcomeFailed
	}
	a.recorder.recordSystem(ctx, "FIRMWARE_RESTART", outcome, "operator restart", err)
	if err != nil {
		return err
	}
	a.motion.InvalidateLimits()
	return nil
}

func newDiscoverCmd(opts *cliOptions) *cobra.Command {
	var timeout int
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find Moonraker printers on the local network",
		Long: `Discover browses mDNS for Moonraker instances. It works without a config
file, so a printer can be found before one is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dcfg := discovery.Config{}
			if cfg, err := config.Load(opts.resolveConfigPath()); err == nil {
				dcfg.Timeout = cfg.GetDiscoveryTimeout()
				dcfg.Interface = cfg.Discovery.Interface
			}
			if timeout > 0 {
				dcfg.Timeout = time.Duration(timeout) * time.Second
			}

			printers, err := discovery.Browse(cmd.Context(), dcfg)
			if err != nil {
				return err
			}
			if len(printers) == 0 {
				cmd.Println("No printers found")
				return nil
			}
			cmd.Printf("Found %d printer(s):\n", len(printers))
			for _, p := range printers {
				cmd.Printf("  %-24s %s\n", p.Instance, p.BaseURL())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&timeout, "timeout", 0, "browse timeout in seconds (default from config)")
	return cmd
}

func newJournalCmd(opts *cliOptions) *cobra.Command {
	var (
		limit            int
		category, result string
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent journal entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return printJournal(cmd.Context(), a, cmd.OutOrStdout(), journal.Filter{
				Category: category,
				Outcome:  result,
				Limit:    limit,
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries to show (default 50, max 200)")
	cmd.Flags().StringVar(&category, "category", "", "filter by category: motion, thermal or system")
	cmd.Flags().StringVar(&result, "outcome", "", "filter by outcome: sent, rejected or failed")
	return cmd
}

// printJournal lists journal entries. Shared with the console.
func printJournal(ctx context.Context, a *app, out io.Writer, filter journal.Filter) error {
	if a.recorder.journal == nil {
		return errors.New("journal is disabled (set journal.enabled in the config)")
	}
	result, err := a.recorder.journal.List(ctx, filter)
	if err != nil {
		return err
	}
	if len(result.Entries) == 0 {
		fmt.Fprintln(out, "Journal is empty")
		return nil
	}
	for _, e := range result.Entries {
		line := fmt.Sprintf("%s  %-7s  %-8s  %s",
			e.CreatedAt.Format(time.RFC3339), e.Category, e.Outcome, oneLine(e.Command))
		if e.Err != "" {
			line += "  [" + e.Err + "]"
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Showing %d of %d entries\n", len(result.Entries), result.Total)
	return nil
}

// oneLine folds a multi-line G-code batch for listing.
func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", "; ")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("moonrig %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
