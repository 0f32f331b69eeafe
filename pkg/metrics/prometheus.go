// Package metrics provides Prometheus metrics for the runwatch bot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the bot.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Telemetry feed
	feedFrames          *prometheus.CounterVec
	feedState           prometheus.Gauge
	feedReconnects      prometheus.Counter
	feedTransportErrors prometheus.Counter

	// Run eligibility and announcements
	runsEvaluated    prometheus.Counter
	runsRejected     *prometheus.CounterVec
	runsAnnounced    prometheus.Counter
	runsSuppressed   prometheus.Counter
	announcedRunners prometheus.Gauge

	// Presence correlation
	presenceTransitions *prometheus.CounterVec
	streamSessions      prometheus.Gauge

	// Chat platform calls
	remoteCallErrors  *prometheus.CounterVec
	remoteCallLatency *prometheus.HistogramVec

	// Queue Metrics
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueEnqueued prometheus.Counter
	queueRejected *prometheus.CounterVec
	queueDropped  prometheus.Counter

	// Worker Metrics
	workerCount       prometheus.Gauge
	workerTaskLatency *prometheus.HistogramVec
	workerTaskErrors  *prometheus.CounterVec

	// Reconciliation
	sweepRolesRevoked   prometheus.Counter
	sweepMessagesDelete prometheus.Counter
	sweepDuration       prometheus.Histogram

	// Streams channel janitor
	janitorPending prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegisterer(customRegistry))
}

// Configure replaces the global manager and its registry with one built
// from opts. Metrics recorded before the call are discarded. It must run at
// startup, before any component records a metric or /metrics is mounted.
func Configure(opts ...Option) *Manager {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithRegisterer(registry))...)
	customRegistry = registry
	return globalManager
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "runwatch",
		subsystem:        "",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval is how often sampled gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.feedFrames = m.counterVec("feed_frames_total", "Telemetry feed frames received, by kind", "kind")
	m.feedState = m.gauge("feed_state", "Telemetry feed connection state (0 disconnected, 1 connecting, 2 connected)")
	m.feedReconnects = m.counter("feed_reconnects_total", "Telemetry feed reconnect attempts")
	m.feedTransportErrors = m.counter("feed_transport_errors_total", "Telemetry feed transport failures")

	m.runsEvaluated = m.counter("runs_evaluated_total", "Run payloads evaluated for eligibility")
	m.runsRejected = m.counterVec("runs_rejected_total", "Run payloads rejected, by reason", "reason")
	m.runsAnnounced = m.counter("runs_announced_total", "Run reports posted")
	m.runsSuppressed = m.counter("runs_suppressed_total", "Qualifying runs suppressed as already announced")
	m.announcedRunners = m.gauge("announced_runners", "Runners currently marked as announced")

	m.presenceTransitions = m.counterVec("presence_transitions_total", "Stream session transitions", "transition")
	m.streamSessions = m.gauge("stream_sessions", "Open stream sessions")

	m.remoteCallErrors = m.counterVec("remote_call_errors_total", "Failed chat platform calls, by operation", "operation")
	m.remoteCallLatency = m.histogramVec("remote_call_latency_milliseconds", "Chat platform call latency", "operation")

	m.queueSize = m.gauge("queue_size", "Current number of queued tasks")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Tasks accepted by the queue")
	m.queueRejected = m.counterVec("queue_rejected_total", "Tasks refused by the queue, by reason", "reason")
	m.queueDropped = m.counter("queue_dropped_total", "Queued tasks evicted to make room for newer ones")

	m.workerCount = m.gauge("worker_count", "Number of running workers")
	m.workerTaskLatency = m.histogramVec("worker_task_latency_milliseconds", "Task execution latency", "kind")
	m.workerTaskErrors = m.counterVec("worker_task_errors_total", "Tasks that returned an error", "kind")

	m.sweepRolesRevoked = m.counter("sweep_roles_revoked_total", "Marker roles revoked by reconciliation")
	m.sweepMessagesDelete = m.counter("sweep_messages_deleted_total", "Marker channel messages deleted by reconciliation")
	m.sweepDuration = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sweep_duration_milliseconds",
		Help:      "Reconciliation sweep duration",
		Buckets:   m.histogramBuckets,
	})

	m.janitorPending = m.gauge("janitor_pending_deletions", "Streams channel posts waiting for delayed deletion")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration",
		"endpoint", "method", "status_code")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Feed Metrics Functions.

// RecordFeedFrame counts a received frame; kind is "text" or "ignored".
func RecordFeedFrame(kind string) {
	globalManager.feedFrames.WithLabelValues(kind).Inc()
}

// UpdateFeedState sets the feed connection state gauge.
func UpdateFeedState(state int) {
	globalManager.feedState.Set(float64(state))
}

// RecordFeedReconnect increments the reconnect counter.
func RecordFeedReconnect() {
	globalManager.feedReconnects.Inc()
}

// RecordFeedTransportError increments the transport error counter.
func RecordFeedTransportError() {
	globalManager.feedTransportErrors.Inc()
}

// Run Metrics Functions.

// RecordRunEvaluated increments the evaluated runs counter.
func RecordRunEvaluated() {
	globalManager.runsEvaluated.Inc()
}

// RecordRunRejected counts a rejected run by reason.
func RecordRunRejected(reason string) {
	globalManager.runsRejected.WithLabelValues(reason).Inc()
}

// RecordRunAnnounced increments the announced runs counter.
func RecordRunAnnounced() {
	globalManager.runsAnnounced.Inc()
}

// RecordRunSuppressed increments the suppressed runs counter.
func RecordRunSuppressed() {
	globalManager.runsSuppressed.Inc()
}

// UpdateAnnouncedRunners sets the announced runners gauge.
func UpdateAnnouncedRunners(count int) {
	globalManager.announcedRunners.Set(float64(count))
}

// Presence Metrics Functions.

// RecordPresenceTransition counts an "open" or "close" session transition.
func RecordPresenceTransition(transition string) {
	globalManager.presenceTransitions.WithLabelValues(transition).Inc()
}

// UpdateStreamSessions sets the open sessions gauge.
func UpdateStreamSessions(count int) {
	globalManager.streamSessions.Set(float64(count))
}

// Remote Call Metrics Functions.

// RecordRemoteCall records latency of a chat platform call and counts failures.
func RecordRemoteCall(operation string, latencyMs float64, err error) {
	globalManager.remoteCallLatency.WithLabelValues(operation).Observe(latencyMs)
	if err != nil {
		globalManager.remoteCallErrors.WithLabelValues(operation).Inc()
	}
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the accepted tasks counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected counts a refused task by reason.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// RecordQueueDropped increments the evicted tasks counter.
func RecordQueueDropped() {
	globalManager.queueDropped.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerTask records a task execution.
func RecordWorkerTask(kind string, latencyMs float64, err error) {
	globalManager.workerTaskLatency.WithLabelValues(kind).Observe(latencyMs)
	if err != nil {
		globalManager.workerTaskErrors.WithLabelValues(kind).Inc()
	}
}

// Reconciliation Metrics Functions.

// RecordSweepRoleRevoked increments the revoked roles counter.
func RecordSweepRoleRevoked() {
	globalManager.sweepRolesRevoked.Inc()
}

// RecordSweepMessageDeleted increments the deleted messages counter.
func RecordSweepMessageDeleted() {
	globalManager.sweepMessagesDelete.Inc()
}

// RecordSweepDuration records the duration of a reconciliation sweep.
func RecordSweepDuration(durationMs float64) {
	globalManager.sweepDuration.Observe(durationMs)
}

// UpdateJanitorPending sets the number of pending delayed deletions.
func UpdateJanitorPending(count int) {
	globalManager.janitorPending.Set(float64(count))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// Default returns the global metrics manager.
func Default() *Manager {
	return globalManager
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
