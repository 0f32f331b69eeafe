// Package community covers the guild housekeeping around the stream
// notices: member join and leave notices, and policing of the streams
// channel.
package community

import (
	"context"
	"fmt"

	"github.com/sm64br/runwatch/pkg/logger"
)

// Poster sends a channel message.
type Poster interface {
	SendMessage(ctx context.Context, channelID, content string) (messageID string, err error)
}

// Notifier posts member join and leave notices to the updates channel.
// A Notifier with no channel does nothing.
type Notifier struct {
	poster    Poster
	channelID string
	logger    logger.Logger
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithNotifierLogger sets the notifier's logger.
func WithNotifierLogger(l logger.Logger) NotifierOption {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// NewNotifier creates a Notifier posting to channelID.
func NewNotifier(p Poster, channelID string, opts ...NotifierOption) *Notifier {
	n := &Notifier{poster: p, channelID: channelID, logger: logger.Get().Named("community")}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// MemberJoined announces username joining the guild.
func (n *Notifier) MemberJoined(ctx context.Context, username string) error {
	return n.post(ctx, fmt.Sprintf("**@%s** acabou de entrar no servidor.", username))
}

// MemberLeft announces username leaving the guild.
func (n *Notifier) MemberLeft(ctx context.Context, username string) error {
	return n.post(ctx, fmt.Sprintf("**@%s** acabou de sair no servidor.", username))
}

func (n *Notifier) post(ctx context.Context, content string) error {
	if n.channelID == "" {
		return nil
	}
	if _, err := n.poster.SendMessage(ctx, n.channelID, content); err != nil {
		n.logger.Warn(ctx, "member notice not posted", logger.Error(err))
		return fmt.Errorf("post member notice: %w", err)
	}
	return nil
}
