package service

import (
	"github.com/sm64br/runwatch/internal/adapters/feed"
	"github.com/sm64br/runwatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRunsPublisher replaces the default runs channel publisher.
func WithRunsPublisher(p feed.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithFeedOptions adds options to the feed client, e.g. a custom dialer.
func WithFeedOptions(opts ...feed.Option) Option {
	return func(s *Service) {
		s.feedOpts = append(s.feedOpts, opts...)
	}
}

// WithoutFeed disables the telemetry feed; presence and housekeeping still
// run.
func WithoutFeed() Option {
	return func(s *Service) {
		s.feedDisabled = true
	}
}
