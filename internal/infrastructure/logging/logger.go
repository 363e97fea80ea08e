package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/tickerbox/internal/infrastructure/config"
)

const (
	// logDirPermissions is the permission mode for a created log directory.
	logDirPermissions = 0750

	// logFilePermissions is the permission mode for the log file.
	logFilePermissions = 0640
)

// Logger wraps slog.Logger with tickerbox-specific functionality.
//
// It provides structured logging with default fields and level-based filtering.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger writing to stdout or stderr.
//
// A file output in cfg is treated as stdout here; use Open to log to a file.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		output = os.Stderr
	}
	return newWithWriter(cfg, version, output)
}

// Open creates a Logger for any configured output, including a file path.
//
// Outputs "stdout" and "stderr" select the standard streams; any other value
// is a file path opened for append (its directory is created if missing).
// The returned close function releases the file and is a no-op for streams.
//
// Returns:
//   - *Logger: Configured logger
//   - func() error: Closes the underlying output
//   - error: If the log file cannot be opened
func Open(cfg config.LoggingConfig, version string) (*Logger, func() error, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout", "stderr":
		return New(cfg, version), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Output), logDirPermissions); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return newWithWriter(cfg, version, f), f.Close, nil
}

// newWithWriter builds the handler chain shared by New and Open.
func newWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "tickerbox"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	wlog := logger.With("topic", "golang")
//	wlog.Info("stream started") // Includes topic=golang
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Component returns a child logger tagged with component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs to stdout in JSON format at info level.
// It should only be used during early startup before config is available.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
