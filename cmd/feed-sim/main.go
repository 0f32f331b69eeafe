package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sm64br/runwatch/internal/feedsim"
)

// Default configuration constants.
const (
	defaultAddr           = ":9090"
	defaultRunners        = 8
	defaultInterval       = 500 * time.Millisecond
	defaultGame           = "Super Mario 64"
	defaultMalformedEvery = 50
)

func main() {
	var (
		addr      = flag.String("addr", defaultAddr, "Listen address")
		runners   = flag.Int("runners", defaultRunners, "Number of simulated runners")
		interval  = flag.Duration("interval", defaultInterval, "Delay between frames")
		game      = flag.String("game", defaultGame, "Game title in every frame")
		malformed = flag.Int("malformed", defaultMalformedEvery, "Emit a truncated frame every N frames, 0 disables")
		seed      = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Generator seed")
		logFile   = flag.String("log", "", "Log file (default: feed_sim_TIMESTAMP.log)")
		verbose   = flag.Bool("verbose", false, "Log every frame")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		feedsim.ShowHelp()
		return
	}

	if err := feedsim.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := &feedsim.Config{
		Addr:           *addr,
		Runners:        *runners,
		Interval:       *interval,
		Game:           *game,
		MalformedEvery: *malformed,
		Seed:           *seed,
		Verbose:        *verbose,
	}

	if err := feedsim.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Feed simulator failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
