// Package logging provides structured logging for tickerbox.
//
// This package wraps Go's standard log/slog package so that every component
// (watcher, dispatcher, supervisor) logs the same way.
//
// # Features
//
//   - JSON output for unattended devices (machine-parsable)
//   - Text output for bench work (human-readable)
//   - Default fields (service, version) on all log entries
//   - Per-component child loggers
//   - Optional append-only log file
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
//
// # Usage
//
//	logger, closeLog, err := logging.Open(cfg.Logging, "1.0.0")
//	defer closeLog()
//	logger.Component("watcher").Info("stream started", "topics", 2)
//
// Never log access tokens or broker passwords.
package logging
