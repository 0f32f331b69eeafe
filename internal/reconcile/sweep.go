// Package reconcile resets remote marker state at startup so that it matches
// the empty in-memory session map.
package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sm64br/runwatch/pkg/logger"
	"github.com/sm64br/runwatch/pkg/metrics"
	"github.com/sm64br/runwatch/pkg/tracing"
)

// Default page sizes, matching the platform's per-request maxima.
const (
	DefaultMemberPageSize  = 1000
	DefaultMessagePageSize = 100
)

// Member is a guild member and the roles it holds.
type Member struct {
	ID    string
	Roles []string
}

// Message is a message in the marker channel.
type Message struct {
	ID string
}

// Remote is the authoritative platform state the sweep reads and mutates.
type Remote interface {
	// ListMembers returns up to limit members with ids greater than after,
	// in ascending id order. An empty after starts from the beginning.
	ListMembers(ctx context.Context, after string, limit int) ([]Member, error)
	RemoveRole(ctx context.Context, userID, roleID string) error
	// ListMessages returns up to limit messages older than before, newest
	// first. An empty before starts from the newest message.
	ListMessages(ctx context.Context, channelID, before string, limit int) ([]Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Report summarises one sweep.
type Report struct {
	MemberPages   int
	MembersSeen   int
	RolesRevoked  int
	MessagePages  int
	MessagesFound int
	Deleted       int
	Duration      time.Duration
}

// Sweep revokes the marker role from every holder and empties the marker
// channel.
type Sweep struct {
	remote          Remote
	roleID          string
	channelID       string
	memberPageSize  int
	messagePageSize int
	logger          logger.Logger
}

// Option applies a configuration option to the Sweep.
type Option func(*Sweep)

// WithMemberPageSize sets the member page size.
func WithMemberPageSize(n int) Option {
	return func(s *Sweep) {
		if n > 0 {
			s.memberPageSize = n
		}
	}
}

// WithMessagePageSize sets the message page size.
func WithMessagePageSize(n int) Option {
	return func(s *Sweep) {
		if n > 0 {
			s.messagePageSize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Sweep) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Sweep for roleID and channelID.
func New(remote Remote, roleID, channelID string, opts ...Option) *Sweep {
	s := &Sweep{
		remote:          remote,
		roleID:          roleID,
		channelID:       channelID,
		memberPageSize:  DefaultMemberPageSize,
		messagePageSize: DefaultMessagePageSize,
		logger:          logger.Get().Named("reconcile"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs both passes. Any failure aborts the sweep with an error
// wrapping ErrReconciliation.
func (s *Sweep) Run(ctx context.Context) (rep Report, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "runwatch/reconcile", "reconcile.sweep",
		attribute.String("role_id", s.roleID), attribute.String("channel_id", s.channelID))
	defer func() {
		rep.Duration = time.Since(start)
		metrics.RecordSweepDuration(float64(rep.Duration.Milliseconds()))
		span.SetAttributes(
			attribute.Int("roles_revoked", rep.RolesRevoked),
			attribute.Int("messages_deleted", rep.Deleted),
		)
		tracing.End(span, err)
	}()

	if err = s.revokeRoles(ctx, &rep); err != nil {
		return rep, err
	}
	if err = s.clearChannel(ctx, &rep); err != nil {
		return rep, err
	}

	s.logger.Info(ctx, "reconciliation complete",
		logger.Int("roles_revoked", rep.RolesRevoked),
		logger.Int("messages_deleted", rep.Deleted),
		logger.Int("member_pages", rep.MemberPages),
		logger.Int("message_pages", rep.MessagePages),
	)
	return rep, nil
}

func (s *Sweep) revokeRoles(ctx context.Context, rep *Report) error {
	after := ""
	for {
		page, err := s.remote.ListMembers(ctx, after, s.memberPageSize)
		rep.MemberPages++
		if err != nil {
			return fmt.Errorf("%w: list members after %q: %w", ErrReconciliation, after, err)
		}
		if len(page) == 0 {
			return nil
		}
		rep.MembersSeen += len(page)

		for _, m := range page {
			if !hasRole(m, s.roleID) {
				continue
			}
			if err := s.remote.RemoveRole(ctx, m.ID, s.roleID); err != nil {
				return fmt.Errorf("%w: revoke role from %s: %w", ErrReconciliation, m.ID, err)
			}
			rep.RolesRevoked++
			metrics.RecordSweepRoleRevoked()
		}

		next := highestID(page)
		if next == after {
			return fmt.Errorf("%w: member cursor did not advance past %q", ErrReconciliation, after)
		}
		after = next
	}
}

func (s *Sweep) clearChannel(ctx context.Context, rep *Report) error {
	before := ""
	for {
		page, err := s.remote.ListMessages(ctx, s.channelID, before, s.messagePageSize)
		rep.MessagePages++
		if err != nil {
			return fmt.Errorf("%w: list messages before %q: %w", ErrReconciliation, before, err)
		}
		if len(page) == 0 {
			return nil
		}
		rep.MessagesFound += len(page)

		for _, m := range page {
			if err := s.remote.DeleteMessage(ctx, s.channelID, m.ID); err != nil {
				return fmt.Errorf("%w: delete message %s: %w", ErrReconciliation, m.ID, err)
			}
			rep.Deleted++
			metrics.RecordSweepMessageDeleted()
		}

		next := lowestID(page)
		if next == before {
			return fmt.Errorf("%w: message cursor did not advance past %q", ErrReconciliation, before)
		}
		before = next
	}
}

func hasRole(m Member, roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Snowflake ids compare numerically; string order breaks at digit changes.
func snowflakeLess(a, b string) bool {
	x, errA := strconv.ParseUint(a, 10, 64)
	y, errB := strconv.ParseUint(b, 10, 64)
	if errA != nil || errB != nil {
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	}
	return x < y
}

func highestID(page []Member) string {
	best := page[0].ID
	for _, m := range page[1:] {
		if snowflakeLess(best, m.ID) {
			best = m.ID
		}
	}
	return best
}

func lowestID(page []Message) string {
	best := page[0].ID
	for _, m := range page[1:] {
		if snowflakeLess(m.ID, best) {
			best = m.ID
		}
	}
	return best
}
