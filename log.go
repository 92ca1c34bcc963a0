package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

const debugLogName = "voxplay-debug.log"

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "voxplay").DataPath("")
	if err != nil {
		return "", fmt.Errorf("unable to resolve data path: %w", err)
	}
	return filepath.Join(dir, debugLogName), nil
}

// setupLog silences logging unless debug is set, in which case everything
// at Debug and above goes to the debug log file. The TUI owns the terminal,
// so nothing is ever written to stderr while it runs.
func setupLog(debug bool) (func() error, error) {
	log.SetOutput(io.Discard)
	if !debug {
		return func() error { return nil }, nil
	}

	path, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}

	logger := log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		ReportCaller:    true,
		Level:           log.DebugLevel,
	})
	log.SetDefault(logger)
	log.Debug("debug logging enabled", "path", path)
	return f.Close, nil
}
