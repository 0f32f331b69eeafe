package community

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/sm64br/runwatch/pkg/logger"
	"github.com/sm64br/runwatch/pkg/metrics"
)

// DefaultPostLifetime is how long a stream link stays in the streams channel.
const DefaultPostLifetime = 6 * time.Hour

// RuleReminder is sent to authors of posts without a link.
const RuleReminder = "Por favor, poste apenas mensagens com uma URL para uma stream de Super Mario 64 no canal **#streams**!"

const cleanupTimeout = 15 * time.Second

var urlPattern = regexp.MustCompile(`https?://[^\s<>]+`)

// Post is a message created in a guild channel.
type Post struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string
	FromBot   bool
}

// Cleaner deletes posts and messages their authors.
type Cleaner interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendDM(ctx context.Context, userID, content string) error
}

// Action is what the janitor did with a post.
type Action int

// Actions.
const (
	Ignored Action = iota
	Scheduled
	Removed
)

// Janitor keeps the streams channel down to live links: posts with a URL
// are removed after the configured lifetime, anything else is removed at
// once and its author reminded of the rule.
type Janitor struct {
	cleaner   Cleaner
	channelID string
	lifetime  time.Duration
	logger    logger.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// JanitorOption applies a configuration option to the Janitor.
type JanitorOption func(*Janitor)

// WithPostLifetime sets how long link posts are kept.
func WithPostLifetime(d time.Duration) JanitorOption {
	return func(j *Janitor) {
		if d > 0 {
			j.lifetime = d
		}
	}
}

// WithJanitorLogger sets a custom logger.
func WithJanitorLogger(l logger.Logger) JanitorOption {
	return func(j *Janitor) {
		if l != nil {
			j.logger = l
		}
	}
}

// NewJanitor creates a Janitor for channelID.
func NewJanitor(c Cleaner, channelID string, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		cleaner:   c,
		channelID: channelID,
		lifetime:  DefaultPostLifetime,
		logger:    logger.Get().Named("janitor"),
		pending:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// OnPost handles a new post. Posts from bots and from other channels are
// ignored.
func (j *Janitor) OnPost(ctx context.Context, p Post) (Action, error) {
	if p.FromBot || p.ChannelID != j.channelID {
		return Ignored, nil
	}

	if urlPattern.MatchString(p.Content) {
		j.mu.Lock()
		defer j.mu.Unlock()
		if j.closed {
			return Ignored, ErrJanitorClosed
		}
		if _, ok := j.pending[p.ID]; ok {
			return Scheduled, nil
		}
		j.pending[p.ID] = time.AfterFunc(j.lifetime, func() { j.expire(p.ID) })
		metrics.UpdateJanitorPending(len(j.pending))
		j.logger.Debug(ctx, "stream post scheduled for removal",
			logger.String("message_id", p.ID), logger.Duration("after", j.lifetime))
		return Scheduled, nil
	}

	var firstErr error
	if err := j.cleaner.DeleteMessage(ctx, j.channelID, p.ID); err != nil {
		firstErr = fmt.Errorf("delete post %s: %w", p.ID, err)
	}
	if err := j.cleaner.SendDM(ctx, p.AuthorID, RuleReminder); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("remind author %s: %w", p.AuthorID, err)
	}
	if firstErr != nil {
		j.logger.Warn(ctx, "streams channel cleanup incomplete", logger.Error(firstErr))
	} else {
		j.logger.Info(ctx, "removed non-link post from streams channel",
			logger.String("message_id", p.ID), logger.String("author_id", p.AuthorID))
	}
	return Removed, firstErr
}

func (j *Janitor) expire(messageID string) {
	j.mu.Lock()
	if _, ok := j.pending[messageID]; !ok || j.closed {
		j.mu.Unlock()
		return
	}
	delete(j.pending, messageID)
	metrics.UpdateJanitorPending(len(j.pending))
	j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := j.cleaner.DeleteMessage(ctx, j.channelID, messageID); err != nil {
		j.logger.Warn(ctx, "expired stream post not deleted",
			logger.String("message_id", messageID), logger.Error(err))
		return
	}
	j.logger.Info(ctx, "expired stream post deleted", logger.String("message_id", messageID))
}

// Forget drops the pending removal for a post deleted elsewhere.
func (j *Janitor) Forget(messageID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if t, ok := j.pending[messageID]; ok {
		t.Stop()
		delete(j.pending, messageID)
		metrics.UpdateJanitorPending(len(j.pending))
	}
}

// Pending returns the number of scheduled removals.
func (j *Janitor) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Close stops every pending removal. The startup sweep clears whatever was
// left behind.
func (j *Janitor) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	for id, t := range j.pending {
		t.Stop()
		delete(j.pending, id)
	}
	metrics.UpdateJanitorPending(0)
}
