package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sm64br/runwatch/pkg/logger"
	"github.com/sm64br/runwatch/pkg/metrics"
	"github.com/sm64br/runwatch/pkg/tracing"
)

const tracerName = "runwatch/presence"

// Gateway is the slice of the chat platform the correlator mutates.
type Gateway interface {
	SendMessage(ctx context.Context, channelID, content string) (messageID string, err error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	AddRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
}

// Session is an open stream notice for one user.
type Session struct {
	UserID    string
	MessageID string
	RoleID    string
	OpenedAt  time.Time
}

// Transition is what OnPresenceEvent did.
type Transition int

// Transitions.
const (
	NoChange Transition = iota
	Opened
	Closed
	// OpenFailed means the user qualified but the notice could not be posted.
	OpenFailed
)

func (t Transition) String() string {
	switch t {
	case Opened:
		return "open"
	case Closed:
		return "close"
	case OpenFailed:
		return "open_failed"
	default:
		return "none"
	}
}

// Correlator owns the user -> Session map. Every transition, including its
// remote calls, runs under one lock so events for the same user cannot
// double-open or close a session that was never opened.
type Correlator struct {
	gateway   Gateway
	channelID string
	roleID    string
	matcher   Matcher
	now       func() time.Time
	logger    logger.Logger

	mu       sync.Mutex
	sessions map[string]Session
}

// NewCorrelator creates a Correlator posting notices to channelID and
// granting roleID.
func NewCorrelator(gw Gateway, channelID, roleID string, opts ...Option) *Correlator {
	c := &Correlator{
		gateway:   gw,
		channelID: channelID,
		roleID:    roleID,
		matcher:   NewMatcher("Super Mario 64", []string{"Twitch", "YouTube"}),
		now:       time.Now,
		logger:    logger.Get().Named("presence"),
		sessions:  make(map[string]Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnPresenceEvent re-derives eligibility from activities and reconciles the
// user's session with it.
func (c *Correlator) OnPresenceEvent(ctx context.Context, userID string, activities []Activity) Transition {
	activity, eligible := c.matcher.Find(activities)

	c.mu.Lock()
	defer c.mu.Unlock()

	session, open := c.sessions[userID]
	switch {
	case eligible && !open:
		return c.open(ctx, userID, activity)
	case !eligible && open:
		c.close(ctx, session)
		return Closed
	default:
		return NoChange
	}
}

// open must be called with c.mu held.
func (c *Correlator) open(ctx context.Context, userID string, a Activity) Transition {
	ctx, span := tracing.StartSpan(ctx, tracerName, "presence.open", attribute.String("user_id", userID))
	var spanErr error
	defer func() { tracing.End(span, spanErr) }()

	messageID, err := c.gateway.SendMessage(ctx, c.channelID, c.notice(userID, a))
	if err != nil {
		spanErr = fmt.Errorf("%w: send notice: %w", ErrRemoteCall, err)
		c.logger.Error(ctx, "stream notice not posted",
			logger.String("user_id", userID), logger.Error(err))
		metrics.RecordPresenceTransition(OpenFailed.String())
		return OpenFailed
	}

	// The notice exists now, so the session is tracked even if the role
	// grant fails; closing it later deletes the notice.
	if err := c.gateway.AddRole(ctx, userID, c.roleID); err != nil {
		spanErr = fmt.Errorf("%w: add role: %w", ErrRemoteCall, err)
		c.logger.Error(ctx, "streaming role not granted",
			logger.String("user_id", userID), logger.Error(err))
	}

	c.sessions[userID] = Session{UserID: userID, MessageID: messageID, RoleID: c.roleID, OpenedAt: c.now()}
	metrics.RecordPresenceTransition(Opened.String())
	metrics.UpdateStreamSessions(len(c.sessions))
	c.logger.Info(ctx, "stream session opened",
		logger.String("user_id", userID), logger.String("message_id", messageID), logger.String("url", a.URL))
	return Opened
}

// close must be called with c.mu held. Both calls are attempted and the
// session is removed regardless of their outcome.
func (c *Correlator) close(ctx context.Context, s Session) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "presence.close", attribute.String("user_id", s.UserID))
	var spanErr error
	defer func() { tracing.End(span, spanErr) }()

	if err := c.gateway.DeleteMessage(ctx, c.channelID, s.MessageID); err != nil {
		spanErr = fmt.Errorf("%w: delete notice: %w", ErrRemoteCall, err)
		c.logger.Warn(ctx, "stream notice not deleted",
			logger.String("user_id", s.UserID), logger.String("message_id", s.MessageID), logger.Error(err))
	}
	if err := c.gateway.RemoveRole(ctx, s.UserID, s.RoleID); err != nil {
		spanErr = fmt.Errorf("%w: remove role: %w", ErrRemoteCall, err)
		c.logger.Warn(ctx, "streaming role not revoked",
			logger.String("user_id", s.UserID), logger.Error(err))
	}

	delete(c.sessions, s.UserID)
	metrics.RecordPresenceTransition(Closed.String())
	metrics.UpdateStreamSessions(len(c.sessions))
	c.logger.Info(ctx, "stream session closed",
		logger.String("user_id", s.UserID), logger.Duration("live_for", c.now().Sub(s.OpenedAt)))
}

func (c *Correlator) notice(userID string, a Activity) string {
	text := fmt.Sprintf("**<@%s>** está ao vivo jogando %s! Assista em: %s", userID, c.matcher.game, a.URL)
	if a.Details != "" {
		text += "\n> " + a.Details
	}
	return text
}

// Session returns the open session for userID.
func (c *Correlator) Session(userID string) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[userID]
	return s, ok
}

// Sessions returns a snapshot of open sessions ordered by user id.
func (c *Correlator) Sessions() []Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len returns the number of open sessions.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
