package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/gridduel/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends simulator logs to stdout and to logFile. If logFile is
// empty, a timestamped filename is generated. The returned closer flushes
// and closes the file.
func SetupLogging(logFile, format string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		logFile = "pvp_sim_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithFormat(format), logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`GridDuel PvP Simulator
======================

Plays bot players against each other through the match coordinator.
Settings not given as flags come from GRIDDUEL_* environment variables,
.env and the file named by GRIDDUEL_CONFIG.

Usage:
  go run ./cmd/pvp-sim [options]

Options:
  -mode string
        blind or live (default "blind")
  -bots string
        Comma separated id[:accuracy[:think]] list (default "alice:0.95:120ms,bob:0.85:150ms")
  -backend string
        Store backend, memory or redis (default from config)
  -redis string
        Redis address for the redis backend
  -prefix string
        Redis key prefix shared by cooperating simulators
  -difficulty string
        Puzzle difficulty: easy, medium, hard or expert
  -timeout duration
        Upper bound for the whole run (default 10m)
  -format string
        Log format: text, json or tint (default "tint")
  -log string
        Log file for simulator output (default: pvp_sim_TIMESTAMP.log)
  -verbose
        Enable debug logging
  -help
        Show this help message

Examples:
  # Two bots in one process on the in-memory store
  go run ./cmd/pvp-sim -mode live

  # One bot per host, coordinating through Redis
  go run ./cmd/pvp-sim -backend redis -redis 10.0.0.5:6379 -bots alice
  go run ./cmd/pvp-sim -backend redis -redis 10.0.0.5:6379 -bots bob
`)
}
