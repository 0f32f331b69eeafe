// Package config defines bot configuration structures and loading hooks.
package config

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"time"

	"github.com/sm64br/runwatch/internal/domain/category"
)

// Backpressure policies for the task queue.
const (
	QueuePolicyRejectNew  = "reject_new"
	QueuePolicyDropOldest = "drop_oldest"
)

// ThresholdConfig is one configured category threshold.
type ThresholdConfig struct {
	Category   string  `koanf:"category"`
	BPT        int64   `koanf:"bpt"`
	Percentage float64 `koanf:"percentage"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the operational HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Discord credentials and guild layout.
	DiscordToken     string `koanf:"discord_token"`
	GuildID          string `koanf:"guild_id"`
	StreamingRoleID  string `koanf:"streaming_role_id"`
	StreamsChannelID string `koanf:"streams_channel_id"`
	RunsChannelID    string `koanf:"runs_channel_id"`
	UpdatesChannelID string `koanf:"updates_channel_id"`

	// MonitoredGame is matched against presence activities and feed payloads.
	MonitoredGame string `koanf:"monitored_game"`

	// StreamingPlatforms lists accepted streaming activity names.
	StreamingPlatforms []string `koanf:"streaming_platforms"`

	// Telemetry feed.
	FeedEndpoint           string `koanf:"feed_endpoint"`
	FeedProfileBaseURL     string `koanf:"feed_profile_base_url"`
	FeedReconnectInitialMS int    `koanf:"feed_reconnect_initial_ms"`
	FeedReconnectMaxMS     int    `koanf:"feed_reconnect_max_ms"`
	FeedPingIntervalMS     int    `koanf:"feed_ping_interval_ms"`

	// WorkerCount sets the number of event workers.
	WorkerCount int `koanf:"worker_count"`

	// EventQueueSize bounds the in-memory task queue.
	EventQueueSize int `koanf:"queue_size"`

	// QueuePolicy is reject_new or drop_oldest.
	QueuePolicy string `koanf:"queue_policy"`

	// TaskTimeoutMS bounds a single unit of work.
	TaskTimeoutMS int `koanf:"task_timeout_ms"`

	// DedupeSize caps the announced runner set; 0 means unbounded. Runners
	// evicted while still live are announced again.
	DedupeSize int `koanf:"dedupe_size"`

	// Reconciliation page sizes.
	SweepMemberPageSize  int `koanf:"sweep_member_page_size"`
	SweepMessagePageSize int `koanf:"sweep_message_page_size"`

	// StreamPostLifetimeMS is how long user posts stay in the streams channel.
	StreamPostLifetimeMS int `koanf:"stream_post_lifetime_ms"`

	// Prometheus naming and sampling. Buckets are in milliseconds.
	MetricsNamespace         string    `koanf:"metrics_namespace"`
	MetricsSubsystem         string    `koanf:"metrics_subsystem"`
	MetricsLatencyBucketsMS  []float64 `koanf:"metrics_latency_buckets_ms"`
	MetricsRefreshIntervalMS int       `koanf:"metrics_refresh_interval_ms"`

	// OTelEndpoint enables tracing when set.
	OTelEndpoint string `koanf:"otel_endpoint"`

	// Thresholds are the per-category eligibility bars.
	Thresholds []ThresholdConfig `koanf:"thresholds"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		MonitoredGame:            "Super Mario 64",
		StreamingPlatforms:       []string{"Twitch", "YouTube"},
		FeedEndpoint:             "wss://ws.therun.gg/",
		FeedProfileBaseURL:       "https://therun.gg",
		FeedReconnectInitialMS:   1_000,
		FeedReconnectMaxMS:       60_000,
		FeedPingIntervalMS:       30_000,
		WorkerCount:              runtime.NumCPU(),
		EventQueueSize:           1_024,
		QueuePolicy:              QueuePolicyRejectNew,
		TaskTimeoutMS:            15_000,
		DedupeSize:               0,
		SweepMemberPageSize:      1_000,
		SweepMessagePageSize:     100,
		StreamPostLifetimeMS:     int((6 * time.Hour).Milliseconds()),
		MetricsNamespace:         "runwatch",
		MetricsRefreshIntervalMS: 10_000,
	}
}

var metricNamePart = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// ReconnectInitial is the first reconnect delay.
func (c *Config) ReconnectInitial() time.Duration { return ms(c.FeedReconnectInitialMS) }

// ReconnectMax caps reconnect delays.
func (c *Config) ReconnectMax() time.Duration { return ms(c.FeedReconnectMaxMS) }

// PingInterval is the feed keepalive interval; zero disables keepalive.
func (c *Config) PingInterval() time.Duration { return ms(c.FeedPingIntervalMS) }

// TaskTimeout bounds a single unit of work.
func (c *Config) TaskTimeout() time.Duration { return ms(c.TaskTimeoutMS) }

// StreamPostLifetime is how long URL posts remain in the streams channel.
func (c *Config) StreamPostLifetime() time.Duration { return ms(c.StreamPostLifetimeMS) }

// MetricsRefreshInterval is how often process gauges are sampled.
func (c *Config) MetricsRefreshInterval() time.Duration { return ms(c.MetricsRefreshIntervalMS) }

// ThresholdTable converts the configured thresholds into a lookup table.
func (c *Config) ThresholdTable() (category.Table, error) {
	entries := make(map[category.Category]category.Threshold, len(c.Thresholds))
	for i, t := range c.Thresholds {
		cat, ok := category.Parse(t.Category)
		if !ok {
			return category.Table{}, fmt.Errorf("%w: thresholds[%d]: unknown category %q", ErrInvalidConfig, i, t.Category)
		}
		if _, dup := entries[cat]; dup {
			return category.Table{}, fmt.Errorf("%w: thresholds[%d]: duplicate category %q", ErrInvalidConfig, i, t.Category)
		}
		if t.BPT <= 0 {
			return category.Table{}, fmt.Errorf("%w: thresholds[%d]: bpt must be positive", ErrInvalidConfig, i)
		}
		if t.Percentage < 0 || t.Percentage > 1 {
			return category.Table{}, fmt.Errorf("%w: thresholds[%d]: percentage must be within [0,1]", ErrInvalidConfig, i)
		}
		entries[cat] = category.Threshold{MinPercentage: t.Percentage, MaxBPT: t.BPT}
	}
	return category.NewTable(entries), nil
}

// Validate checks structural constraints that do not need credentials.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json", ErrInvalidConfig)
	}
	switch c.QueuePolicy {
	case QueuePolicyRejectNew, QueuePolicyDropOldest:
	default:
		return fmt.Errorf("%w: queue_policy must be %s or %s", ErrInvalidConfig, QueuePolicyRejectNew, QueuePolicyDropOldest)
	}
	if c.MonitoredGame == "" {
		return fmt.Errorf("%w: monitored_game must not be empty", ErrInvalidConfig)
	}
	if c.SweepMemberPageSize <= 0 || c.SweepMessagePageSize <= 0 {
		return fmt.Errorf("%w: sweep page sizes must be positive", ErrInvalidConfig)
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if _, err := c.ThresholdTable(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if !metricNamePart.MatchString(c.MetricsNamespace) {
		return fmt.Errorf("%w: metrics_namespace %q is not a valid metric name", ErrInvalidConfig, c.MetricsNamespace)
	}
	if c.MetricsSubsystem != "" && !metricNamePart.MatchString(c.MetricsSubsystem) {
		return fmt.Errorf("%w: metrics_subsystem %q is not a valid metric name", ErrInvalidConfig, c.MetricsSubsystem)
	}
	for i := 1; i < len(c.MetricsLatencyBucketsMS); i++ {
		if c.MetricsLatencyBucketsMS[i] <= c.MetricsLatencyBucketsMS[i-1] {
			return fmt.Errorf("%w: metrics_latency_buckets_ms must be strictly increasing", ErrInvalidConfig)
		}
	}
	if c.MetricsRefreshIntervalMS <= 0 {
		return fmt.Errorf("%w: metrics_refresh_interval_ms must be positive", ErrInvalidConfig)
	}
	return nil
}

// ValidateDiscord checks the identifiers required to connect to the guild.
func (c *Config) ValidateDiscord() error {
	required := []struct{ key, val string }{
		{"discord_token", c.DiscordToken},
		{"guild_id", c.GuildID},
		{"streaming_role_id", c.StreamingRoleID},
		{"streams_channel_id", c.StreamsChannelID},
		{"runs_channel_id", c.RunsChannelID},
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("%w: %w: %s must be set", ErrInvalidConfig, ErrMissingCredential, r.key)
		}
	}
	return nil
}
