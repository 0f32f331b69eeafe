// Package discord adapts a discordgo session to the narrow gateways the
// domain packages depend on, and turns gateway events into queued tasks.
package discord

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sm64br/runwatch/internal/reconcile"
	"github.com/sm64br/runwatch/pkg/logger"
	"github.com/sm64br/runwatch/pkg/metrics"
)

// Intents the bot needs: presences and members for the stream notices,
// message content for the streams channel janitor.
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMembers |
	discordgo.IntentGuildPresences |
	discordgo.IntentGuildMessages |
	discordgo.IntentMessageContent

// rest is the part of *discordgo.Session the client calls.
type rest interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMembers(guildID, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Client performs guild-scoped REST calls. It satisfies the presence,
// reconcile and community gateways.
type Client struct {
	api     rest
	guildID string
	open    atomic.Bool
	logger  logger.Logger
}

var _ reconcile.Remote = (*Client)(nil)

// NewSession creates a bot session with the intents the service needs.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %w", ErrRemoteCall, err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.ShouldReconnectOnError = true
	return s, nil
}

// NewClient wraps a discordgo session scoped to guildID.
func NewClient(s *discordgo.Session, guildID string) *Client {
	c := newClient(s, guildID)
	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) { c.setOpen(true) })
	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) { c.setOpen(true) })
	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) { c.setOpen(false) })
	return c
}

func newClient(api rest, guildID string) *Client {
	return &Client{api: api, guildID: guildID, logger: logger.Get().Named("discord")}
}

// Open reports whether the gateway is currently connected.
func (c *Client) Open() bool { return c.open.Load() }

func (c *Client) setOpen(open bool) {
	if c.open.Swap(open) != open {
		c.logger.Info(context.Background(), "discord gateway state changed", logger.Bool("open", open))
	}
}

// call times fn, records it and wraps its error.
func (c *Client) call(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordRemoteCall(op, float64(time.Since(start).Milliseconds()), err)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRemoteCall, op, err)
	}
	return nil
}

// SendMessage posts content to channelID with every mention suppressed.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	var id string
	err := c.call("send_message", func() error {
		m, err := c.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content:         content,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		}, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		id = m.ID
		return nil
	})
	return id, err
}

// DeleteMessage deletes messageID from channelID.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.call("delete_message", func() error {
		return c.api.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	})
}

// AddRole grants roleID to userID in the guild.
func (c *Client) AddRole(ctx context.Context, userID, roleID string) error {
	return c.call("add_role", func() error {
		return c.api.GuildMemberRoleAdd(c.guildID, userID, roleID, discordgo.WithContext(ctx))
	})
}

// RemoveRole revokes roleID from userID in the guild.
func (c *Client) RemoveRole(ctx context.Context, userID, roleID string) error {
	return c.call("remove_role", func() error {
		return c.api.GuildMemberRoleRemove(c.guildID, userID, roleID, discordgo.WithContext(ctx))
	})
}

// ListMembers returns one page of guild members after the given id.
func (c *Client) ListMembers(ctx context.Context, after string, limit int) ([]reconcile.Member, error) {
	var out []reconcile.Member
	err := c.call("list_members", func() error {
		members, err := c.api.GuildMembers(c.guildID, after, limit, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		out = make([]reconcile.Member, 0, len(members))
		for _, m := range members {
			if m == nil || m.User == nil {
				continue
			}
			out = append(out, reconcile.Member{ID: m.User.ID, Roles: m.Roles})
		}
		return nil
	})
	return out, err
}

// ListMessages returns one page of channel messages older than before.
func (c *Client) ListMessages(ctx context.Context, channelID, before string, limit int) ([]reconcile.Message, error) {
	var out []reconcile.Message
	err := c.call("list_messages", func() error {
		msgs, err := c.api.ChannelMessages(channelID, limit, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		out = make([]reconcile.Message, 0, len(msgs))
		for _, m := range msgs {
			if m != nil {
				out = append(out, reconcile.Message{ID: m.ID})
			}
		}
		return nil
	})
	return out, err
}

// SendDM opens a direct message channel with userID and posts content.
func (c *Client) SendDM(ctx context.Context, userID, content string) error {
	return c.call("send_dm", func() error {
		ch, err := c.api.UserChannelCreate(userID, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		_, err = c.api.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
			Content:         content,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		}, discordgo.WithContext(ctx))
		return err
	})
}
