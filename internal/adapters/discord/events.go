package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/sm64br/runwatch/internal/adapters/mq/queue"
	"github.com/sm64br/runwatch/internal/domain/community"
	"github.com/sm64br/runwatch/internal/domain/presence"
	"github.com/sm64br/runwatch/pkg/logger"
)

// Task kinds, used as metric labels.
const (
	KindPresence     = "presence"
	KindPost         = "post"
	KindMemberJoined = "member_joined"
	KindMemberLeft   = "member_left"
)

// Enqueuer accepts tasks for the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// PresenceHandler consumes presence updates.
type PresenceHandler interface {
	OnPresenceEvent(ctx context.Context, userID string, activities []presence.Activity) presence.Transition
}

// PostHandler consumes streams channel posts.
type PostHandler interface {
	OnPost(ctx context.Context, p community.Post) (community.Action, error)
	Forget(messageID string)
}

// MemberHandler consumes member joins and leaves.
type MemberHandler interface {
	MemberJoined(ctx context.Context, username string) error
	MemberLeft(ctx context.Context, username string) error
}

// Events converts gateway events for one guild into queued tasks. Handlers
// left nil are not registered.
//
// Presence tasks may run on any worker and in any order, so a task does not
// carry its own activities: it applies the newest activities stored for the
// user when it runs. A stale task therefore repeats the newest state instead
// of reviving an older one.
type Events struct {
	ctx      context.Context
	guildID  string
	queue    Enqueuer
	presence PresenceHandler
	posts    PostHandler
	members  MemberHandler
	logger   logger.Logger

	// applyMu serializes presence application. mu guards latest and seq.
	applyMu sync.Mutex
	mu      sync.Mutex
	latest  map[string]pendingPresence
	seq     uint64
}

type pendingPresence struct {
	seq        uint64
	activities []presence.Activity
}

// EventsOption configures Events.
type EventsOption func(*Events)

// WithPresenceHandler routes presence updates to h.
func WithPresenceHandler(h PresenceHandler) EventsOption {
	return func(e *Events) { e.presence = h }
}

// WithPostHandler routes message creates and deletes to h.
func WithPostHandler(h PostHandler) EventsOption {
	return func(e *Events) { e.posts = h }
}

// WithMemberHandler routes member joins and leaves to h.
func WithMemberHandler(h MemberHandler) EventsOption {
	return func(e *Events) { e.members = h }
}

// WithEventsLogger sets the bridge's logger.
func WithEventsLogger(l logger.Logger) EventsOption {
	return func(e *Events) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEvents creates the event bridge. ctx bounds every enqueue.
func NewEvents(ctx context.Context, guildID string, q Enqueuer, opts ...EventsOption) *Events {
	e := &Events{
		ctx:     ctx,
		guildID: guildID,
		queue:   q,
		logger:  logger.Get().Named("discord.events"),
		latest:  make(map[string]pendingPresence),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds the configured handlers to s and returns a function that
// removes them.
func (e *Events) Register(s *discordgo.Session) func() {
	var removers []func()
	if e.presence != nil {
		removers = append(removers, s.AddHandler(e.onPresenceUpdate))
	}
	if e.posts != nil {
		removers = append(removers, s.AddHandler(e.onMessageCreate), s.AddHandler(e.onMessageDelete))
	}
	if e.members != nil {
		removers = append(removers, s.AddHandler(e.onMemberAdd), s.AddHandler(e.onMemberRemove))
	}
	return func() {
		for _, remove := range removers {
			remove()
		}
	}
}

func (e *Events) enqueue(kind string, run func(ctx context.Context) error) {
	task := queue.NewTask(kind, run)
	if err := e.queue.Enqueue(e.ctx, task); err != nil {
		e.logger.Warn(e.ctx, "event dropped",
			logger.String("kind", kind), logger.String("task_id", task.ID.String()), logger.Error(err))
	}
}

func (e *Events) onPresenceUpdate(_ *discordgo.Session, ev *discordgo.PresenceUpdate) {
	if ev == nil || ev.User == nil || ev.GuildID != e.guildID {
		return
	}
	userID := ev.User.ID
	e.storePresence(userID, convertActivities(ev.Activities))
	e.enqueue(KindPresence, func(ctx context.Context) error {
		e.applyPresence(ctx, userID)
		return nil
	})
}

func (e *Events) storePresence(userID string, activities []presence.Activity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	e.latest[userID] = pendingPresence{seq: e.seq, activities: activities}
}

// applyPresence hands the newest stored activities for userID to the
// handler. The entry is removed once applied unless a newer one replaced it
// meanwhile; tasks finding no entry have nothing newer to apply.
func (e *Events) applyPresence(ctx context.Context, userID string) {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	e.mu.Lock()
	pending, ok := e.latest[userID]
	e.mu.Unlock()
	if !ok {
		return
	}

	e.presence.OnPresenceEvent(ctx, userID, pending.activities)

	e.mu.Lock()
	if cur, ok := e.latest[userID]; ok && cur.seq == pending.seq {
		delete(e.latest, userID)
	}
	e.mu.Unlock()
}

func (e *Events) onMessageCreate(_ *discordgo.Session, ev *discordgo.MessageCreate) {
	if ev == nil || ev.Message == nil || ev.Author == nil || ev.GuildID != e.guildID {
		return
	}
	post := community.Post{
		ID:        ev.ID,
		ChannelID: ev.ChannelID,
		AuthorID:  ev.Author.ID,
		Content:   ev.Content,
		FromBot:   ev.Author.Bot,
	}
	e.enqueue(KindPost, func(ctx context.Context) error {
		_, err := e.posts.OnPost(ctx, post)
		return err
	})
}

func (e *Events) onMessageDelete(_ *discordgo.Session, ev *discordgo.MessageDelete) {
	if ev == nil || ev.Message == nil {
		return
	}
	e.posts.Forget(ev.ID)
}

func (e *Events) onMemberAdd(_ *discordgo.Session, ev *discordgo.GuildMemberAdd) {
	if ev == nil || ev.Member == nil || ev.User == nil || ev.GuildID != e.guildID {
		return
	}
	name := ev.User.String()
	e.enqueue(KindMemberJoined, func(ctx context.Context) error {
		return e.members.MemberJoined(ctx, name)
	})
}

func (e *Events) onMemberRemove(_ *discordgo.Session, ev *discordgo.GuildMemberRemove) {
	if ev == nil || ev.Member == nil || ev.User == nil || ev.GuildID != e.guildID {
		return
	}
	name := ev.User.String()
	e.enqueue(KindMemberLeft, func(ctx context.Context) error {
		return e.members.MemberLeft(ctx, name)
	})
}

func convertActivities(in []*discordgo.Activity) []presence.Activity {
	out := make([]presence.Activity, 0, len(in))
	for _, a := range in {
		if a == nil {
			continue
		}
		kind := presence.ActivityOther
		if a.Type == discordgo.ActivityTypeStreaming {
			kind = presence.ActivityStreaming
		}
		out = append(out, presence.Activity{
			Type:    kind,
			Name:    a.Name,
			State:   a.State,
			Details: a.Details,
			URL:     a.URL,
		})
	}
	return out
}
