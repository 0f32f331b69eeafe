package feed

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sm64br/runwatch/internal/domain/dedupe"
	"github.com/sm64br/runwatch/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithHeader sets extra handshake headers.
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		c.header = h
	}
}

// WithReconnectBackoff sets the first and maximum reconnect delays.
func WithReconnectBackoff(initial, maxDelay time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.reconnectInitial = initial
		}
		if maxDelay > 0 {
			c.reconnectMax = maxDelay
		}
	}
}

// WithPingInterval sets the keepalive interval; zero disables keepalive
// and read deadlines.
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.pingInterval = d
		}
	}
}

// WithPublishTimeout bounds each report post.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.publishTimeout = d
		}
	}
}

// WithAnnounced sets the announced runner set owned by the receive loop.
func WithAnnounced(a *dedupe.Announced) Option {
	return func(c *Client) {
		if a != nil {
			c.announced = a
		}
	}
}
