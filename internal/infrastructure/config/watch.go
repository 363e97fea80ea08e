package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchLogger is the logging surface used by Watch.
type WatchLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Watch reloads the configuration file whenever it is written or replaced
// and passes each valid result to onChange.
//
// The containing directory is watched rather than the file itself so that
// editors which save via rename are still seen. Events that leave the file
// content unchanged are dropped. A reload that fails to parse or validate is
// logged and ignored; the previous configuration stays in effect.
//
// Watch blocks until ctx is cancelled or the watcher fails.
//
// Parameters:
//   - ctx: Context controlling the watch lifetime
//   - path: Path to the YAML configuration file
//   - log: Logger for reload diagnostics
//   - onChange: Callback receiving each successfully reloaded config
//
// Returns:
//   - error: nil on cancellation, or the watcher setup/runtime error
func Watch(ctx context.Context, path string, log WatchLogger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config file watcher: %w", err)
	}
	defer w.Close() //nolint:errcheck // Best effort on shutdown

	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("adding config directory to watcher: %w", err)
	}

	lastHash, _ := fileHash(path) //nolint:errcheck // A missing file simply hashes as zero
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Create) {
				continue
			}

			h, err := fileHash(path)
			if err != nil || h == lastHash {
				continue
			}
			lastHash = h

			cfg, err := Load(path)
			if err != nil {
				log.Warn("ignoring invalid config reload", "path", path, "error", err)
				continue
			}
			log.Debug("config reloaded", "path", path)
			onChange(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("config file watcher: %w", err)
		}
	}
}

// fileHash returns the SHA-256 of the file contents.
func fileHash(path string) ([32]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}
