// Package feed maintains the live telemetry connection, evaluates each run
// frame and posts reports for runs that newly qualify.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sm64br/runwatch/internal/domain/dedupe"
	"github.com/sm64br/runwatch/internal/domain/run"
	"github.com/sm64br/runwatch/pkg/logger"
	"github.com/sm64br/runwatch/pkg/metrics"
	"github.com/sm64br/runwatch/pkg/tracing"
)

// Default client configuration constants.
const (
	defaultReconnectInitial = time.Second
	defaultReconnectMax     = time.Minute
	defaultPingInterval     = 30 * time.Second
	defaultPublishTimeout   = 15 * time.Second
	handshakeTimeout        = 10 * time.Second
	controlWriteTimeout     = 5 * time.Second
)

// Evaluator decides whether a frame qualifies.
type Evaluator interface {
	Evaluate(payload []byte) run.Result
}

// Publisher posts a rendered report.
type Publisher interface {
	Publish(ctx context.Context, report string) error
}

// Client owns one logical connection to the feed. Run drives it; State and
// Announced may be read from any goroutine.
type Client struct {
	endpoint  string
	evaluator Evaluator
	publisher Publisher

	dialer           *websocket.Dialer
	header           http.Header
	reconnectInitial time.Duration
	reconnectMax     time.Duration
	pingInterval     time.Duration
	publishTimeout   time.Duration

	// announced is touched only by the receive loop.
	announced      *dedupe.Announced
	announcedCount atomic.Int64

	state  atomic.Int32
	logger logger.Logger
}

// NewClient creates a feed client for endpoint.
func NewClient(endpoint string, ev Evaluator, pub Publisher, opts ...Option) *Client {
	c := &Client{
		endpoint:         endpoint,
		evaluator:        ev,
		publisher:        pub,
		dialer:           &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: handshakeTimeout},
		reconnectInitial: defaultReconnectInitial,
		reconnectMax:     defaultReconnectMax,
		pingInterval:     defaultPingInterval,
		publishTimeout:   defaultPublishTimeout,
		announced:        dedupe.New(),
		logger:           logger.Get().Named("feed"),
	}
	for _, opt := range opts {
		opt(c)
	}
	metrics.UpdateFeedState(int(Disconnected))
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Announced returns how many runners are currently marked as announced.
func (c *Client) Announced() int {
	return int(c.announcedCount.Load())
}

func (c *Client) setState(ctx context.Context, s State) {
	if prev := State(c.state.Swap(int32(s))); prev != s {
		c.logger.Debug(ctx, "feed state changed",
			logger.String("from", prev.String()), logger.String("to", s.String()))
	}
	metrics.UpdateFeedState(int(s))
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.reconnectInitial
	b.MaxInterval = c.reconnectMax
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// Run connects and reads frames until ctx is cancelled, reconnecting with
// capped exponential backoff after every failure. It always returns an
// error wrapping ErrClosed.
func (c *Client) Run(ctx context.Context) error {
	bo := c.newBackOff()
	defer c.setState(ctx, Disconnected)

	for {
		c.setState(ctx, Connecting)
		conn, err := c.dial(ctx)
		if err == nil {
			bo.Reset()
			c.setState(ctx, Connected)
			c.logger.Info(ctx, "feed connected", logger.String("endpoint", c.endpoint))
			err = c.receive(ctx, conn)
		}
		c.setState(ctx, Disconnected)

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrClosed, ctx.Err())
		}

		delay := bo.NextBackOff()
		metrics.RecordFeedTransportError()
		c.logger.Warn(ctx, "feed disconnected, reconnecting",
			logger.Error(err), logger.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrClosed, ctx.Err())
		case <-timer.C:
		}
		metrics.RecordFeedReconnect()
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, c.endpoint, err)
	}
	return conn, nil
}

// receive reads frames until the connection fails or ctx is cancelled.
func (c *Client) receive(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(controlWriteTimeout))
			_ = conn.Close()
		case <-done:
		}
	}()

	if c.pingInterval > 0 {
		extend := func() { _ = conn.SetReadDeadline(time.Now().Add(2 * c.pingInterval)) }
		extend()
		conn.SetPongHandler(func(string) error { extend(); return nil })
		go c.keepalive(conn, done)
	}

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: read: %w", ErrTransport, err)
		}
		if c.pingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(2 * c.pingInterval))
		}
		if kind != websocket.TextMessage {
			metrics.RecordFeedFrame("ignored")
			continue
		}
		metrics.RecordFeedFrame("text")
		c.handleFrame(ctx, data)
	}
}

func (c *Client) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// handleFrame evaluates one frame and applies the announce rule.
func (c *Client) handleFrame(ctx context.Context, data []byte) {
	defer func() {
		n := c.announced.Size()
		c.announcedCount.Store(int64(n))
		metrics.UpdateAnnouncedRunners(n)
	}()

	res := c.evaluator.Evaluate(data)
	metrics.RecordRunEvaluated()

	if !res.OK() {
		metrics.RecordRunRejected(string(res.Reason))
		if res.Reason == run.ReasonParseError {
			c.logger.Warn(ctx, "feed frame dropped",
				logger.String("runner", res.Runner), logger.Error(res.Err))
		}
		if res.Runner != "" {
			c.announced.Clear(res.Runner)
		}
		return
	}

	if !c.announced.Observe(res.Runner, true) {
		metrics.RecordRunSuppressed()
		return
	}

	if err := c.publish(ctx, res.Run); err != nil {
		// Unmark so the next qualifying frame retries.
		c.announced.Clear(res.Runner)
		c.logger.Error(ctx, "run report not posted",
			logger.String("runner", res.Runner), logger.Error(err))
		return
	}
	metrics.RecordRunAnnounced()
	c.logger.Info(ctx, "run announced",
		logger.String("runner", res.Runner), logger.String("category", res.Run.Category))
}

func (c *Client) publish(ctx context.Context, r *run.Run) (err error) {
	ctx, span := tracing.StartSpan(ctx, "runwatch/feed", "feed.announce",
		attribute.String("runner", r.Runner), attribute.String("category", r.Category))
	defer func() { tracing.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.publishTimeout)
	defer cancel()
	return c.publisher.Publish(ctx, r.Report())
}
