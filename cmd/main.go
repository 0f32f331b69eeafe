package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sm64br/runwatch/internal/adapters/discord"
	"github.com/sm64br/runwatch/internal/adapters/http/api"
	"github.com/sm64br/runwatch/internal/adapters/http/swagger"
	app "github.com/sm64br/runwatch/internal/app"
	"github.com/sm64br/runwatch/internal/config"
	"github.com/sm64br/runwatch/pkg/logger"
	"github.com/sm64br/runwatch/pkg/metrics"
	"github.com/sm64br/runwatch/pkg/tracing"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

const serviceName = "runwatch"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is fine; the environment may be set by the supervisor.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("failed to read .env: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metricsManager := metrics.Configure(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithLatencyBuckets(cfg.MetricsLatencyBucketsMS),
		metrics.WithRefreshInterval(cfg.MetricsRefreshInterval()),
	)

	if err := cfg.ValidateDiscord(); err != nil {
		loggerInstance.Fatal(ctx, "incomplete discord configuration", logger.Error(err))
	}

	shutdownTracing, err := tracing.Init(ctx, serviceName, version, cfg.OTelEndpoint)
	if err != nil {
		loggerInstance.Fatal(ctx, "failed to initialize tracing", logger.Error(err))
	}

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		loggerInstance.Fatal(ctx, "failed to create discord session", logger.Error(err))
	}
	discord.BridgeLogs(session, logger.Named("discordgo"), cfg.LogLevel == "debug")
	client := discord.NewClient(session, cfg.GuildID)

	svc, err := app.New(cfg, client, app.WithLogger(loggerInstance.Named("service")))
	if err != nil {
		loggerInstance.Fatal(ctx, "failed to build service", logger.Error(err))
	}

	// Events queue up until Start has run the sweep and started the workers.
	events := discord.NewEvents(ctx, cfg.GuildID, svc,
		discord.WithPresenceHandler(svc.Presence()),
		discord.WithPostHandler(svc.Janitor()),
		discord.WithMemberHandler(svc.Notifier()),
		discord.WithEventsLogger(loggerInstance.Named("discord").Named("events")),
	)
	unregister := events.Register(session)

	if err := session.Open(); err != nil {
		loggerInstance.Fatal(ctx, "failed to open discord gateway", logger.Error(err))
	}

	if err := svc.Start(ctx); err != nil {
		_ = session.Close()
		loggerInstance.Fatal(ctx, "failed to start service", logger.Error(err))
	}

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx, metricsManager.RefreshInterval())

	srv := newHTTPServer(ctx, cfg.Addr, svc, client)

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(context.Background(), "shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	unregister()
	if err := svc.Stop(shutdownCtx); err != nil {
		loggerInstance.Error(shutdownCtx, "service shutdown failed", logger.Error(err))
	}
	if err := session.Close(); err != nil {
		loggerInstance.Warn(shutdownCtx, "discord session close failed", logger.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		loggerInstance.Warn(shutdownCtx, "tracing shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(shutdownCtx, "stopped")
}

// newHTTPServer builds the operational HTTP server.
func newHTTPServer(ctx context.Context, addr string, deps api.Dependencies, gateway api.GatewayChecker) *http.Server {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(deps, gateway).Register(ctx, mux)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater updates system metrics every interval until ctx ends.
func startSystemMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		// Average GC pause time
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
