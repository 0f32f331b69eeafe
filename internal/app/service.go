// Package service wires the notification engine together: the startup
// sweep, the bounded task pipeline for gateway events, the presence
// correlator, guild housekeeping and the telemetry feed.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sm64br/runwatch/internal/adapters/feed"
	"github.com/sm64br/runwatch/internal/adapters/mq/queue"
	"github.com/sm64br/runwatch/internal/adapters/mq/worker"
	"github.com/sm64br/runwatch/internal/config"
	"github.com/sm64br/runwatch/internal/domain/community"
	"github.com/sm64br/runwatch/internal/domain/dedupe"
	"github.com/sm64br/runwatch/internal/domain/presence"
	"github.com/sm64br/runwatch/internal/domain/run"
	"github.com/sm64br/runwatch/internal/reconcile"
	"github.com/sm64br/runwatch/pkg/logger"
	"github.com/sm64br/runwatch/pkg/metrics"
)

// Platform is everything the service needs from the chat platform.
type Platform interface {
	presence.Gateway
	reconcile.Remote
	SendDM(ctx context.Context, userID, content string) error
}

// channelPublisher posts run reports to one channel.
type channelPublisher struct {
	platform  Platform
	channelID string
}

func (p channelPublisher) Publish(ctx context.Context, report string) error {
	_, err := p.platform.SendMessage(ctx, p.channelID, report)
	return err
}

// Service owns the lifecycle of every engine component.
type Service struct {
	mu sync.RWMutex

	cfg      *config.Config
	platform Platform

	// Core components
	queue      *queue.InMemoryQueue
	pool       *worker.Pool
	sweep      *reconcile.Sweep
	correlator *presence.Correlator
	notifier   *community.Notifier
	janitor    *community.Janitor
	feed       *feed.Client

	publisher    feed.Publisher
	feedOpts     []feed.Option
	feedDisabled bool

	// State
	started    bool
	stopped    bool
	lastSweep  reconcile.Report
	feedCancel context.CancelFunc
	feedDone   chan struct{}

	logger logger.Logger
}

// New builds a Service from cfg. The configuration must already be valid.
func New(cfg *config.Config, platform Platform, opts ...Option) (*Service, error) {
	table, err := cfg.ThresholdTable()
	if err != nil {
		return nil, err
	}
	policy, ok := queue.ParsePolicy(cfg.QueuePolicy)
	if !ok {
		return nil, fmt.Errorf("%w: queue_policy %q", config.ErrInvalidConfig, cfg.QueuePolicy)
	}

	s := &Service{
		cfg:      cfg,
		platform: platform,
		logger:   logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = channelPublisher{platform: platform, channelID: cfg.RunsChannelID}
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.EventQueueSize), queue.WithPolicy(policy))
	s.pool = worker.NewPool(cfg.WorkerCount, s.queue,
		worker.WithTaskTimeout(cfg.TaskTimeout()),
		worker.WithLogger(s.logger.Named("worker")))
	s.sweep = reconcile.New(platform, cfg.StreamingRoleID, cfg.StreamsChannelID,
		reconcile.WithMemberPageSize(cfg.SweepMemberPageSize),
		reconcile.WithMessagePageSize(cfg.SweepMessagePageSize),
		reconcile.WithLogger(s.logger.Named("reconcile")))
	s.correlator = presence.NewCorrelator(platform, cfg.StreamsChannelID, cfg.StreamingRoleID,
		presence.WithMatcher(presence.NewMatcher(cfg.MonitoredGame, cfg.StreamingPlatforms)),
		presence.WithLogger(s.logger.Named("presence")))
	s.notifier = community.NewNotifier(platform, cfg.UpdatesChannelID,
		community.WithNotifierLogger(s.logger.Named("notices")))
	s.janitor = community.NewJanitor(platform, cfg.StreamsChannelID,
		community.WithPostLifetime(cfg.StreamPostLifetime()),
		community.WithJanitorLogger(s.logger.Named("janitor")))

	if !s.feedDisabled && cfg.FeedEndpoint != "" {
		evaluator := run.NewEvaluator(table,
			run.WithGame(cfg.MonitoredGame),
			run.WithProfileBaseURL(cfg.FeedProfileBaseURL))
		feedOpts := append([]feed.Option{
			feed.WithLogger(s.logger.Named("feed")),
			feed.WithReconnectBackoff(cfg.ReconnectInitial(), cfg.ReconnectMax()),
			feed.WithPingInterval(cfg.PingInterval()),
			feed.WithPublishTimeout(cfg.TaskTimeout()),
			feed.WithAnnounced(dedupe.New(dedupe.WithMaxSize(cfg.DedupeSize))),
		}, s.feedOpts...)
		s.feed = feed.NewClient(cfg.FeedEndpoint, evaluator, s.publisher, feedOpts...)
	}

	return s, nil
}

// Presence returns the presence correlator.
func (s *Service) Presence() *presence.Correlator { return s.correlator }

// Notifier returns the member notice poster.
func (s *Service) Notifier() *community.Notifier { return s.notifier }

// Janitor returns the streams channel janitor.
func (s *Service) Janitor() *community.Janitor { return s.janitor }

// Start runs the reconciliation sweep and, once it succeeds, starts the
// workers and the feed. A sweep failure is returned wrapped in ErrStartup
// and nothing is started.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting notification engine...")

	rep, err := s.sweep.Run(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}
	s.lastSweep = rep

	s.pool.Start(ctx)

	if s.feed != nil {
		feedCtx, cancel := context.WithCancel(ctx)
		s.feedCancel = cancel
		s.feedDone = make(chan struct{})
		go func() {
			defer close(s.feedDone)
			if err := s.feed.Run(feedCtx); err != nil && !errors.Is(err, feed.ErrClosed) {
				s.logger.Error(feedCtx, "feed stopped", logger.Error(err))
			}
		}()
	}

	s.started = true
	s.logger.Info(ctx, "notification engine started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queue.Cap()),
		logger.Bool("feed", s.feed != nil),
		logger.Int("rolesRevoked", rep.RolesRevoked),
		logger.Int("messagesDeleted", rep.Deleted),
	)
	return nil
}

// Stop shuts the pipeline down: the feed first, then pending janitor
// timers, then the queue and workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping notification engine...")

	if s.feedCancel != nil {
		s.feedCancel()
		select {
		case <-s.feedDone:
		case <-ctx.Done():
			s.logger.Warn(ctx, "feed did not stop in time")
		}
	}

	s.janitor.Close()
	err := s.pool.Shutdown(ctx)

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "notification engine stopped")
	return err
}

// Enqueue submits a task to the worker pool. Tasks accepted before Start
// wait for the startup sweep to finish.
func (s *Service) Enqueue(ctx context.Context, t queue.Task) error {
	if s.queue.IsClosed() {
		return ErrStopped
	}
	return s.queue.Enqueue(ctx, t)
}

// Ready reports whether startup finished and work is being processed.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// FeedState returns the feed connection state, or Disconnected when the
// feed is disabled.
func (s *Service) FeedState() feed.State {
	if s.feed == nil {
		return feed.Disconnected
	}
	return s.feed.State()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	queueLen := s.queue.Len(ctx)
	stats := map[string]interface{}{
		"started":        s.started,
		"workerCount":    s.pool.Size(),
		"queueLength":    queueLen,
		"queueCapacity":  s.queue.Cap(),
		"sessions":       s.correlator.Len(),
		"janitorPending": s.janitor.Pending(),
		"feedEnabled":    s.feed != nil,
		"feedState":      s.FeedState().String(),
		"lastSweep": map[string]interface{}{
			"rolesRevoked":    s.lastSweep.RolesRevoked,
			"messagesDeleted": s.lastSweep.Deleted,
			"duration":        s.lastSweep.Duration.Round(time.Millisecond).String(),
		},
	}
	if s.feed != nil {
		stats["announcedRunners"] = s.feed.Announced()
	}

	metrics.UpdateQueueSize(queueLen)
	return stats
}
