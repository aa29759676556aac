package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/moonrig/internal/thermal"
)

func newBedCmd(opts *cliOptions) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "bed [TEMP]",
		Short: "Read or set the bed temperature",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				r, err := a.thermal.Bed(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Printf("Bed: %s\n", formatReading(r))
				return nil
			}
			vals, err := parseFloats([]string{"TEMP"}, args)
			if err != nil {
				return err
			}
			if err := a.thermal.SetBed(cmd.Context(), vals[0], wait); err != nil {
				return err
			}
			if wait {
				cmd.Printf("Bed reached %.1f°C\n", vals[0])
			} else {
				cmd.Printf("Bed target set to %.1f°C\n", vals[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the target temperature is reached")
	return cmd
}

func newChamberCmd(opts *cliOptions) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "chamber [TEMP]",
		Short: "Read or set the chamber temperature",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				r, err := a.thermal.Chamber(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Printf("Chamber: %s (%s)\n", formatReading(r), r.Object)
				return nil
			}
			vals, err := parseFloats([]string{"TEMP"}, args)
			if err != nil {
				return err
			}
			if err := a.thermal.SetChamber(cmd.Context(), vals[0], wait); err != nil {
				return err
			}
			if wait {
				cmd.Printf("Chamber reached %.1f°C\n", vals[0])
			} else {
				cmd.Printf("Chamber target set to %.1f°C\n", vals[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until within one degree of target")
	return cmd
}

// formatReading renders a reading like "22.3°C (target 60.0°C)".
// Targets at zero mean the heater is off and are not shown.
func formatReading(r thermal.Reading) string {
	if r.HasTarget && r.Target > 0 {
		return fmt.Sprintf("%.1f°C (target %.1f°C)", r.Current, r.Target)
	}
	return fmt.Sprintf("%.1f°C", r.Current)
}
