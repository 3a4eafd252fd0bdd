package simulate

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/starchallenge/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging initializes the global logger, teeing to logFile when set.
func SetupLogging(logFile string, verbose bool) error {
	var out io.Writer = os.Stdout
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
	}
	if err := logger.Init(logger.WithOutput(out)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the simulation tool.
func ShowHelp() {
	os.Stdout.WriteString(`starchallenge simulator
=======================

Seeds a challenge, submits performances concurrently, follows the live
channel and verifies the final leaderboard.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string           Base URL of the service (default "http://localhost:9080")
  -participants int     Participants to seed (default 50)
  -criteria int         Weighted criteria to seed (default 3)
  -per int              Performances per participant (default 20)
  -workers int          Concurrent submitters (default CPU cores * 2)
  -timeout duration     HTTP request timeout (default 10s)
  -settle duration      Time allowed for the live channel to converge (default 10s)
  -update-every int     Update every Nth performance after submitting (default 0)
  -delete-every int     Delete every Nth performance after submitting (default 0)
  -no-live              Skip the websocket subscriber
  -output string        Write a JSON report to this file
  -log string           Also write logs to this file
  -verbose              Enable debug logging
  -help                 Show this help message
`)
}
