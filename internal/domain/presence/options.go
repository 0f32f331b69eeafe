package presence

import (
	"time"

	"github.com/sm64br/runwatch/pkg/logger"
)

// Option applies a configuration option to the Correlator.
type Option func(*Correlator)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Correlator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMatcher replaces the default Super Mario 64 on Twitch/YouTube matcher.
func WithMatcher(m Matcher) Option {
	return func(c *Correlator) {
		c.matcher = m
	}
}

// WithClock overrides time.Now for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) {
		if now != nil {
			c.now = now
		}
	}
}
