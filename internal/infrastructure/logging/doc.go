// Package logging provides structured logging for moonrig.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - Text output for operators (human-readable, the default)
//   - JSON output for machine collection
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stderr"   # stderr, stdout
//
// Logs go to stderr by default so command output on stdout stays clean.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("connected", "printer", cfg.Printer.BaseURL)
//	logger.Error("request failed", "error", err)
//
// # Security
//
// Never log secrets, tokens, passwords, or API keys.
package logging
