package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// cliOptions carries the flags shared by every subcommand.
type cliOptions struct {
	configPath string
}

// resolveConfigPath picks the config file: the --config flag wins, then
// the MOONRIG_CONFIG environment variable, then the default path.
func (o *cliOptions) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if env := os.Getenv(configEnvVar); env != "" {
		return env
	}
	return defaultConfigPath
}

// newRootCmd assembles the command tree. Building it fresh per call
// keeps flag state isolated between invocations, which the tests rely
// on.
func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "moonrig",
		Short: "Operator CLI for toolhead accessories on Moonraker printers",
		Long: `moonrig drives a Klipper 3D printer through Moonraker's HTTP API to
position a toolhead-mounted accessory. Every target is validated against
the machine's travel limits shrunk by the configured attachment envelope
before any G-code leaves the process.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		fmt.Sprintf("config file (default %q, env %s)", defaultConfigPath, configEnvVar))

	root.AddCommand(
		newStatusCmd(opts),
		newLimitsCmd(opts),
		newHomeCmd(opts),
		newMoveCmd(opts),
		newRMoveCmd(opts),
		newLineCmd(opts),
		newSweepCmd(opts),
		newBedCmd(opts),
		newChamberCmd(opts),
		newVelCmd(opts),
		newRestartCmd(opts),
		newDiscoverCmd(opts),
		newJournalCmd(opts),
		newConsoleCmd(opts),
		newVersionCmd(),
	)
	return root
}

// parseFloats converts positional arguments to numbers, naming the
// offending argument on failure.
func parseFloats(names []string, args []string) ([]float64, error) {
	vals := make([]float64, len(args))
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number, got %q", names[i], arg)
		}
		vals[i] = v
	}
	return vals, nil
}
