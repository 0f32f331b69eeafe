package feedsim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sm64br/runwatch/pkg/logger"
)

// Server configuration constants.
const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Run serves the simulated feed on cfg.Addr until ctx is cancelled.
func Run(ctx context.Context, cfg *Config) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}
	_, err = Serve(ctx, ln, cfg)
	return err
}

// Serve is Run on an existing listener. It returns the final statistics.
func Serve(ctx context.Context, ln net.Listener, cfg *Config) (*Stats, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("invalid frame interval: %s", cfg.Interval)
	}
	stats := &Stats{StartTime: time.Now()}
	hub := NewHub()
	gen := NewGenerator(cfg)

	logger.Get().Info(ctx, "starting feed simulator",
		logger.String("addr", ln.Addr().String()),
		logger.Int("runners", cfg.Runners),
		logger.Duration("interval", cfg.Interval),
		logger.String("game", cfg.Game),
		logger.Int("malformedEvery", cfg.MalformedEvery))

	srv := &http.Server{Handler: hub, ReadHeaderTimeout: readHeaderTimeout}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				return stats, fmt.Errorf("feed simulator stopped: %w", err)
			}
			break loop
		case <-ticker.C:
			if hub.Subscribers() == 0 {
				continue
			}
			frame := gen.Next()
			if cfg.Verbose {
				logger.Get().Debug(ctx, "frame", logger.String("payload", string(frame)))
			}
			hub.Broadcast(frame)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stats.Subscribers = hub.Subscribers()
	// Shutdown does not track hijacked connections.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Get().Warn(ctx, "feed simulator shutdown", logger.Error(err))
	}

	stats.FramesGenerated = gen.Count()
	stats.FramesSent = hub.sent.Load()
	stats.FramesDropped = hub.dropped.Load()
	stats.Duration = time.Since(stats.StartTime)
	displayFinalStats(stats)
	return stats, nil
}

// displayFinalStats logs the final simulator statistics.
func displayFinalStats(stats *Stats) {
	var framesPerSecond float64
	if stats.Duration > 0 {
		framesPerSecond = float64(stats.FramesSent) / stats.Duration.Seconds()
	}
	logger.Get().Info(context.Background(), "final statistics",
		logger.Int64("framesGenerated", stats.FramesGenerated),
		logger.Int64("framesSent", stats.FramesSent),
		logger.Int64("framesDropped", stats.FramesDropped),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("framesPerSecond", framesPerSecond))
}
