package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/moonrig/internal/moonraker/moonrakertest"
	"github.com/nerrad567/moonrig/internal/motion"
	"github.com/nerrad567/moonrig/internal/thermal"
	"github.com/nerrad567/moonrig/internal/toolhead"
)

// TestMain clears the environment overrides so a developer's shell
// cannot leak printer credentials or endpoints into the test configs.
func TestMain(m *testing.M) {
	for _, key := range []string{
		configEnvVar,
		"MOONRIG_PRINTER_BASE_URL",
		"MOONRIG_PRINTER_API_KEY",
		"MOONRIG_PRINTER_USERNAME",
		"MOONRIG_PRINTER_PASSWORD",
		"MOONRIG_JOURNAL_PATH",
		"MOONRIG_INFLUXDB_TOKEN",
		"MOONRIG_MQTT_HOST",
		"MOONRIG_MQTT_USERNAME",
		"MOONRIG_MQTT_PASSWORD",
		"MOONRIG_LOG_LEVEL",
	} {
		os.Unsetenv(key)
	}
	os.Exit(m.Run())
}

// writeConfig writes a minimal config pointing at the given Moonraker
// URL. An empty journalPath leaves the journal disabled.
func writeConfig(t *testing.T, baseURL, journalPath string) string {
	t.Helper()

	content := fmt.Sprintf(`
printer:
  base_url: %q
  instance: "testrig"
  timeout: 5

attachment:
  min_x: -5.0
  max_x: 30.0
  min_z: -42.0

motion:
  z_speed_mm_s: 8.0
  default_speed_mm_s: 25.0
  max_z_delta: 50.0
  park_after_home: false

journal:
  enabled: %v
  path: %q

logging:
  level: error
  format: text
  output: stderr
`, baseURL, journalPath != "", journalPath)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// runCLI executes one invocation against a fresh command tree and
// returns the combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return buf.String(), err
}

// TestResolveConfigPath_Default verifies the fallback path is used when
// neither the flag nor the environment variable is set.
func TestResolveConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv(configEnvVar)
	defer os.Setenv(configEnvVar, originalEnv)
	os.Unsetenv(configEnvVar)

	opts := &cliOptions{}
	if got := opts.resolveConfigPath(); got != defaultConfigPath {
		t.Errorf("resolveConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

// TestResolveConfigPath_EnvOverride verifies MOONRIG_CONFIG wins over
// the default.
func TestResolveConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv(configEnvVar)
	defer os.Setenv(configEnvVar, originalEnv)
	os.Setenv(configEnvVar, "/etc/moonrig/config.yaml")

	opts := &cliOptions{}
	if got := opts.resolveConfigPath(); got != "/etc/moonrig/config.yaml" {
		t.Errorf("resolveConfigPath() = %q, want env value", got)
	}
}

// TestResolveConfigPath_FlagWins verifies the --config flag wins over
// the environment variable.
func TestResolveConfigPath_FlagWins(t *testing.T) {
	originalEnv := os.Getenv(configEnvVar)
	defer os.Setenv(configEnvVar, originalEnv)
	os.Setenv(configEnvVar, "/etc/moonrig/config.yaml")

	opts := &cliOptions{configPath: "/tmp/override.yaml"}
	if got := opts.resolveConfigPath(); got != "/tmp/override.yaml" {
		t.Errorf("resolveConfigPath() = %q, want flag value", got)
	}
}

// TestVersionCommand verifies the ldflags defaults are printed.
func TestVersionCommand(t *testing.T) {
	out, err := runCLI("version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "moonrig dev") || !strings.Contains(out, "commit unknown") {
		t.Errorf("unexpected version output: %q", out)
	}
}

// TestMissingConfig verifies a helpful error when the config file does
// not exist.
func TestMissingConfig(t *testing.T) {
	_, err := runCLI("status", "--config", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("status should fail with a missing config file")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want config load failure", err)
	}
}

// TestStatusCommand verifies the one-page summary against the fake
// printer's defaults.
func TestStatusCommand(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	cfg := writeConfig(t, srv.URL(), "")

	out, err := runCLI("status", "--config", cfg)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"fakeprinter", "State:    ready", "Homed:    none", "Bed:      21.6°C"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

// TestMoveCommand verifies an absolute move reaches the printer as a
// validated G-code batch at the configured default speed.
func TestMoveCommand(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.PatchObject("toolhead", "homed_axes", "xyz")
	cfg := writeConfig(t, srv.URL(), "")

	out, err := runCLI("move", "10", "20", "50", "--config", cfg)
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if !strings.Contains(out, "Move issued") {
		t.Errorf("unexpected output: %q", out)
	}
	want := "G90\nG1 X10.000 Y20.000 Z50.000 F1500"
	if got := srv.LastScript(); got != want {
		t.Errorf("script = %q, want %q", got, want)
	}
}

// TestMoveCommandNotHomed verifies the move is refused before any
// G-code is sent when the axes are not homed.
func TestMoveCommandNotHomed(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	cfg := writeConfig(t, srv.URL(), "")

	_, err := runCLI("move", "10", "20", "50", "--config", cfg)
	if !errors.Is(err, motion.ErrNotHomed) {
		t.Fatalf("error = %v, want ErrNotHomed", err)
	}
	if got := srv.LastScript(); got != "" {
		t.Errorf("script sent despite refusal: %q", got)
	}
}

// TestMoveCommandOutOfRange verifies envelope validation rejects a
// target the attachment cannot reach.
func TestMoveCommandOutOfRange(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.PatchObject("toolhead", "homed_axes", "xyz")
	cfg := writeConfig(t, srv.URL(), "")

	// X limit is 400 and the attachment extends 30mm past the nozzle.
	_, err := runCLI("move", "380", "20", "50", "--config", cfg)
	if !errors.Is(err, toolhead.ErrOutOfRange) {
		t.Fatalf("error = %v, want ErrOutOfRange", err)
	}
	if got := srv.LastScript(); got != "" {
		t.Errorf("script sent despite refusal: %q", got)
	}
}

// TestMoveCommandBadArgument verifies argument parsing fails before any
// config or network work.
func TestMoveCommandBadArgument(t *testing.T) {
	_, err := runCLI("move", "ten", "20", "50", "--config", "/nonexistent.yaml")
	if err == nil || !strings.Contains(err.Error(), "X must be a number") {
		t.Fatalf("error = %v, want parse failure naming X", err)
	}
}

// TestRMoveCommand verifies the relative move issues an absolute target
// computed from the current position.
func TestRMoveCommand(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.PatchObject("toolhead", "homed_axes", "xyz")
	srv.PatchObject("toolhead", "position", []float64{100, 100, 50, 0})
	cfg := writeConfig(t, srv.URL(), "")

	_, err := runCLI("rmove", "5", "0", "0", "--config", cfg)
	if err != nil {
		t.Fatalf("rmove failed: %v", err)
	}
	want := "G90\nG1 X105.000 Y100.000 Z50.000 F1500"
	if got := srv.LastScript(); got != want {
		t.Errorf("script = %q, want %q", got, want)
	}
}

// TestLineCommand verifies both endpoints travel in one batch.
func TestLineCommand(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.PatchObject("toolhead", "homed_axes", "xyz")
	cfg := writeConfig(t, srv.URL(), "")

	_, err := runCLI("line", "10", "10", "50", "10", "300", "50", "--config", cfg)
	if err != nil {
		t.Fatalf("line failed: %v", err)
	}
	want := "G90\nG1 X10.000 Y10.000 Z50.000 F1500\nG1 X10.000 Y300.000 Z50.000 F1500"
	if got := srv.LastScript(); got != want {
		t.Errorf("script = %q, want %q", got, want)
	}
}

// TestSweepCommand verifies the five-line sweep batch.
func TestSweepCommand(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.PatchObject("toolhead", "homed_axes", "xyz")
	cfg := writeConfig(t, srv.URL(), "")

	out, err := runCLI("sweep",
		"--x", "100", "--y-start", "50", "--y-end", "300",
		"--z-contact", "45", "--z-safe", "60",
		"--config", cfg)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if !strings.Contains(out, "Sweep issued") {
		t.Errorf("unexpected output: %q", out)
	}
	script := srv.LastScript()
	for _, want := range []string{"G1 Z60.000 F480", "G1 X100.000 Y50.000 F1500", "G1 Z45.000 F480", "G1 Y300.000 F1500"} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
}

// TestSweepCommandMissingFlags verifies the required flags are enforced
// by the command itself.
func TestSweepCommandMissingFlags(t *testing.T) {
	_, err := runCLI("sweep", "--x", "100", "--config", "/nonexistent.yaml")
	if err == nil || !strings.Contains(err.Error(), "required flag") {
		t.Fatalf("error = %v, want required flag failure", err)
	}
}

// TestHomeCommand verifies --yes homes without a prompt and waits for
// the move queue.
func TestHomeCommand(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	cfg := writeConfig(t, srv.URL(), "")

	out, err := runCLI("home", "--yes", "--config", cfg)
	if err != nil {
		t.Fatalf("home failed: %v", err)
	}
	if !strings.Contains(out, "Homing complete") {
		t.Errorf("unexpected output: %q", out)
	}
	scripts := srv.Scripts()
	if len(scripts) != 2 || scripts[0] != "G28 XYZ" || scripts[1] != "M400" {
		t.Errorf("scripts = %v, want [G28 XYZ, M400]", scripts)
	}
}

// TestHomeCommandSingleAxis verifies the axis argument narrows the G28.
func TestHomeCommandSingleAxis(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	cfg := writeConfig(t, srv.URL(), "")

	if _, err := runCLI("home", "z", "--yes", "--config", cfg); err != nil {
		t.Fatalf("home z failed: %v", err)
	}
	if got := srv.Scripts()[0]; got != "G28 Z" {
		t.Errorf("script = %q, want G28 Z", got)
	}
}

// TestHomeCommandDeclined verifies homing is cancelled when the
// confirmation prompt cannot collect the word CONFIRM. Under go test
// stdin yields EOF immediately, which counts as a decline.
func TestHomeCommandDeclined(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	cfg := writeConfig(t, srv.URL(), "")

	_, err := runCLI("home", "--config", cfg)
	if !errors.Is(err, motion.ErrHomingCancelled) {
		t.Fatalf("error = %v, want ErrHomingCancelled", err)
	}
	if got := srv.LastScript(); got != "" {
		t.Errorf("script sent despite cancelled homing: %q", got)
	}
}

// TestBedCommands verifies the read and set forms.
func TestBedCommands(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	cfg := writeConfig(t, srv.URL(), "")

	out, err := runCLI("bed", "--config", cfg)
	if err != nil {
		t.Fatalf("bed read failed: %v", err)
	}
	if !strings.Contains(out, "Bed: 21.6°C") {
		t.Errorf("unexpected output: %q", out)
	}

	out, err = runCLI("bed", "60", "--config", cfg)
	if err != nil {
		t.Fatalf("bed set failed: %v", err)
	}
	if !strings.Contains(out, "Bed target set to 60.0°C") {
		t.Errorf("unexpected output: %q", out)
	}
	if got := srv.LastScript(); got != "M140 S60.0" {
		t.Errorf("script = %q, want M140 S60.0", got)
	}
}

// TestChamberCommandNoObject verifies the chamber read fails with the
// domain error when the printer has no chamber sensor.
func TestChamberCommandNoObject(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	cfg := writeConfig(t, srv.URL(), "")

	_, err := runCLI("chamber", "--config", cfg)
	if !errors.Is(err, thermal.ErrObjectNotFound) {
		t.Fatalf("error = %v, want ErrObjectNotFound", err)
	}
}

// TestVelCommand verifies the firmware limit command.
func TestVelCommand(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	cfg := writeConfig(t, srv.URL(), "")

	if _, err := runCLI("vel", "200", "1500", "--config", cfg); err != nil {
		t.Fatalf("vel failed: %v", err)
	}
	if got := srv.LastScript(); got != "SET_VELOCITY_LIMIT VELOCITY=200.000 ACCEL=1500.0" {
		t.Errorf("script = %q", got)
	}
}

// TestRestartCommand verifies the firmware restart endpoint is hit.
func TestRestartCommand(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	cfg := writeConfig(t, srv.URL(), "")

	out, err := runCLI("restart", "--config", cfg)
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if !strings.Contains(out, "Firmware restart issued") {
		t.Errorf("unexpected output: %q", out)
	}
	if got := srv.Restarts(); got != 1 {
		t.Errorf("restarts = %d, want 1", got)
	}
}

// TestLimitsCommand verifies the limits listing includes the machine
// ranges and the attachment envelope.
func TestLimitsCommand(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	cfg := writeConfig(t, srv.URL(), "")

	out, err := runCLI("limits", "--config", cfg)
	if err != nil {
		t.Fatalf("limits failed: %v", err)
	}
	for _, want := range []string{"X: [0.000, 400.000]", "Attachment envelope", "Z: [-42.000, 0.000]"} {
		if !strings.Contains(out, want) {
			t.Errorf("limits output missing %q:\n%s", want, out)
		}
	}
}

// TestJournalCommandDisabled verifies the journal listing refuses when
// the journal sink is off.
func TestJournalCommandDisabled(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	cfg := writeConfig(t, srv.URL(), "")

	_, err := runCLI("journal", "--config", cfg)
	if err == nil || !strings.Contains(err.Error(), "journal is disabled") {
		t.Fatalf("error = %v, want journal disabled", err)
	}
}

// TestJournalFlow verifies commands land in the journal across
// invocations and the category filter works.
func TestJournalFlow(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	srv.PatchObject("toolhead", "homed_axes", "xyz")
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	cfg := writeConfig(t, srv.URL(), journalPath)

	if _, err := runCLI("move", "10", "20", "50", "--config", cfg); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if _, err := runCLI("restart", "--config", cfg); err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	out, err := runCLI("journal", "--config", cfg)
	if err != nil {
		t.Fatalf("journal failed: %v", err)
	}
	for _, want := range []string{"motion", "sent", "G1 X10.000", "FIRMWARE_RESTART", "Showing 2 of 2 entries"} {
		if !strings.Contains(out, want) {
			t.Errorf("journal output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI("journal", "--category", "system", "--config", cfg)
	if err != nil {
		t.Fatalf("journal filter failed: %v", err)
	}
	if strings.Contains(out, "G1 X10.000") || !strings.Contains(out, "FIRMWARE_RESTART") {
		t.Errorf("category filter not applied:\n%s", out)
	}
}

// TestJournalRecordsRejections verifies refused commands are journalled
// with their operation name, since no G-code was built.
func TestJournalRecordsRejections(t *testing.T) {
	srv := moonrakertest.New()
	defer srv.Close()
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	cfg := writeConfig(t, srv.URL(), journalPath)

	if _, err := runCLI("move", "10", "20", "50", "--config", cfg); !errors.Is(err, motion.ErrNotHomed) {
		t.Fatalf("error = %v, want ErrNotHomed", err)
	}

	out, err := runCLI("journal", "--outcome", "rejected", "--config", cfg)
	if err != nil {
		t.Fatalf("journal failed: %v", err)
	}
	if !strings.Contains(out, "move_absolute") || !strings.Contains(out, "not homed") {
		t.Errorf("rejection not journalled:\n%s", out)
	}
}
