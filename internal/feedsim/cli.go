package feedsim

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sm64br/runwatch/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends simulator logs to stdout and, when logFile is set or
// timestamped by default, to a file as well.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		logFile = "feed_sim_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Runwatch Feed Simulator
=======================

Serves a websocket that emits therun.gg-style live run frames so the bot
can be exercised without the real feed.

Usage:
  go run ./cmd/feed-sim [options]

Options:
  -addr string
        Listen address (default ":9090")
  -runners int
        Number of simulated runners (default 8)
  -interval duration
        Delay between frames (default 500ms)
  -game string
        Game title in every frame (default "Super Mario 64")
  -malformed int
        Emit a truncated frame every N frames, 0 disables (default 50)
  -seed uint
        Generator seed (default: current time)
  -log string
        Log file (default: feed_sim_TIMESTAMP.log)
  -verbose
        Log every frame
  -help
        Show this help message

Examples:
  # Point the bot at the simulator
  RUNWATCH_FEED_ENDPOINT=ws://localhost:9090/ go run ./cmd

  # Two runners, one frame per second
  go run ./cmd/feed-sim -runners 2 -interval 1s
`)
}
