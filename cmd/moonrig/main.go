// moonrig - Safety-Gated Printer Rig Controller
//
// This is the main entry point for the moonrig operator CLI.
// moonrig drives a Klipper 3D printer through Moonraker's HTTP API to
// position toolhead-mounted accessories, built around:
//   - Envelope-validated motion (attachment offsets checked on every move)
//   - Explicit operator confirmation before any homing move
//   - Best-effort journalling, telemetry and announcements for every command
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/moonrig/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Configuration file resolution: --config flag, then MOONRIG_CONFIG,
// then the default path.
const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "MOONRIG_CONFIG"
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
