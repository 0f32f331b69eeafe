package service_test

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/sm64br/runwatch/internal/adapters/mq/queue"
	service "github.com/sm64br/runwatch/internal/app"
	"github.com/sm64br/runwatch/internal/config"
	"github.com/sm64br/runwatch/internal/domain/community"
	"github.com/sm64br/runwatch/internal/domain/presence"
	"github.com/sm64br/runwatch/internal/reconcile"
	"github.com/sm64br/runwatch/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakePlatform is an in-memory guild: members with roles and one channel
// of messages, ids ascending by creation.
type fakePlatform struct {
	mu       sync.Mutex
	roles    map[string]map[string]bool
	messages map[string][]string
	nextID   int
	dms      []string
	listErr  error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		roles:    make(map[string]map[string]bool),
		messages: make(map[string][]string),
		nextID:   1000,
	}
}

func (p *fakePlatform) addMember(id string, roles ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set := make(map[string]bool)
	for _, r := range roles {
		set[r] = true
	}
	p.roles[id] = set
}

func (p *fakePlatform) SendMessage(_ context.Context, channelID, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := strconv.Itoa(p.nextID)
	p.messages[channelID] = append(p.messages[channelID], id)
	return id, nil
}

func (p *fakePlatform) DeleteMessage(_ context.Context, channelID, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.messages[channelID]
	for i, id := range msgs {
		if id == messageID {
			p.messages[channelID] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return errors.New("unknown message")
}

func (p *fakePlatform) AddRole(_ context.Context, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.roles[userID] == nil {
		p.roles[userID] = make(map[string]bool)
	}
	p.roles[userID][roleID] = true
	return nil
}

func (p *fakePlatform) RemoveRole(_ context.Context, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.roles[userID], roleID)
	return nil
}

func (p *fakePlatform) ListMembers(_ context.Context, after string, limit int) ([]reconcile.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	ids := make([]int, 0, len(p.roles))
	for id := range p.roles {
		n, _ := strconv.Atoi(id)
		ids = append(ids, n)
	}
	sort.Ints(ids)
	floor, _ := strconv.Atoi(after)
	var out []reconcile.Member
	for _, n := range ids {
		if after != "" && n <= floor {
			continue
		}
		id := strconv.Itoa(n)
		m := reconcile.Member{ID: id}
		for r := range p.roles[id] {
			m.Roles = append(m.Roles, r)
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (p *fakePlatform) ListMessages(_ context.Context, channelID, before string, limit int) ([]reconcile.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ceiling, _ := strconv.Atoi(before)
	msgs := p.messages[channelID]
	var out []reconcile.Message
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		n, _ := strconv.Atoi(msgs[i])
		if before != "" && n >= ceiling {
			continue
		}
		out = append(out, reconcile.Message{ID: msgs[i]})
	}
	return out, nil
}

func (p *fakePlatform) SendDM(_ context.Context, userID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dms = append(p.dms, userID)
	return nil
}

func (p *fakePlatform) hasRole(userID, roleID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roles[userID][roleID]
}

func (p *fakePlatform) channelLen(channelID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages[channelID])
}

func testConfig() *config.Config {
	cfg := config.New(context.Background())
	cfg.GuildID = "guild"
	cfg.StreamingRoleID = "live"
	cfg.StreamsChannelID = "streams"
	cfg.RunsChannelID = "runs"
	cfg.UpdatesChannelID = "updates"
	cfg.WorkerCount = 2
	cfg.SweepMemberPageSize = 2
	cfg.SweepMessagePageSize = 2
	cfg.Thresholds = []config.ThresholdConfig{{Category: "16 Star", BPT: 900000, Percentage: 0.9}}
	return cfg
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_New(t *testing.T) {
	Convey("Given a valid configuration", t, func() {
		svc, err := service.New(testConfig(), newFakePlatform(), service.WithoutFeed())

		Convey("Then the service is created but not ready", func() {
			So(err, ShouldBeNil)
			So(svc.Ready(), ShouldBeFalse)
			So(svc.Presence(), ShouldNotBeNil)
			So(svc.Janitor(), ShouldNotBeNil)
			So(svc.Notifier(), ShouldNotBeNil)
			So(svc.GetStats()["feedEnabled"], ShouldEqual, false)
		})
	})

	Convey("Given invalid thresholds", t, func() {
		cfg := testConfig()
		cfg.Thresholds = append(cfg.Thresholds, config.ThresholdConfig{Category: "16 Star", BPT: 1, Percentage: 0.5})
		_, err := service.New(cfg, newFakePlatform())

		Convey("Then construction fails", func() {
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a guild left dirty by a previous run", t, func() {
		p := newFakePlatform()
		for i := 1; i <= 5; i++ {
			p.addMember(strconv.Itoa(i), "live", "member")
		}
		p.addMember("6", "member")
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			_, _ = p.SendMessage(ctx, "streams", "old notice")
		}
		_, _ = p.SendMessage(ctx, "runs", "old report")

		svc, err := service.New(testConfig(), p, service.WithoutFeed())
		So(err, ShouldBeNil)

		Convey("When the service starts", func() {
			So(svc.Start(ctx), ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			Convey("Then the marker role and channel are cleared first", func() {
				for i := 1; i <= 6; i++ {
					So(p.hasRole(strconv.Itoa(i), "live"), ShouldBeFalse)
					So(p.hasRole(strconv.Itoa(i), "member"), ShouldBeTrue)
				}
				So(p.channelLen("streams"), ShouldEqual, 0)
				So(p.channelLen("runs"), ShouldEqual, 1)
				So(svc.Ready(), ShouldBeTrue)

				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				sweep := stats["lastSweep"].(map[string]interface{})
				So(sweep["rolesRevoked"], ShouldEqual, 5)
				So(sweep["messagesDeleted"], ShouldEqual, 5)
			})

			Convey("Then a second Start is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given a platform whose member listing fails", t, func() {
		p := newFakePlatform()
		p.listErr = errors.New("HTTP 503")
		svc, err := service.New(testConfig(), p, service.WithoutFeed())
		So(err, ShouldBeNil)

		Convey("Then startup fails and nothing runs", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, service.ErrStartup), ShouldBeTrue)
			So(errors.Is(err, reconcile.ErrReconciliation), ShouldBeTrue)
			So(svc.Ready(), ShouldBeFalse)
		})
	})
}

// lockedBuffer collects log output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestService_Logging(t *testing.T) {
	Convey("Given a service built with an injected logger", t, func() {
		out := &lockedBuffer{}
		So(logger.Init(logger.WithOutput(out)), ShouldBeNil)
		Reset(func() { _ = logger.Init() })

		ctx := context.Background()
		svc, err := service.New(testConfig(), newFakePlatform(), service.WithoutFeed(),
			service.WithLogger(logger.Named("bot")))
		So(err, ShouldBeNil)

		Convey("When it starts and stops", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then components log under the injected logger", func() {
				logs := out.String()
				So(logs, ShouldContainSubstring, "component=bot ")
				So(logs, ShouldContainSubstring, "component=bot.reconcile")
				So(logs, ShouldNotContainSubstring, "component=reconcile ")
			})
		})
	})
}

func TestService_Pipeline(t *testing.T) {
	Convey("Given a started service", t, func() {
		p := newFakePlatform()
		svc, err := service.New(testConfig(), p, service.WithoutFeed())
		So(err, ShouldBeNil)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		live := []presence.Activity{{
			Type:  presence.ActivityStreaming,
			Name:  "Twitch",
			State: "Super Mario 64",
			URL:   "https://twitch.tv/mario",
		}}

		Convey("When presence tasks flow through the queue", func() {
			So(svc.Enqueue(ctx, queue.NewTask("presence", func(ctx context.Context) error {
				svc.Presence().OnPresenceEvent(ctx, "42", live)
				return nil
			})), ShouldBeNil)

			Convey("Then the session opens with notice and role", func() {
				So(waitFor(func() bool { return svc.Presence().Len() == 1 }), ShouldBeTrue)
				So(p.hasRole("42", "live"), ShouldBeTrue)
				So(p.channelLen("streams"), ShouldEqual, 1)
				So(svc.GetStats()["sessions"], ShouldEqual, 1)

				So(svc.Enqueue(ctx, queue.NewTask("presence", func(ctx context.Context) error {
					svc.Presence().OnPresenceEvent(ctx, "42", nil)
					return nil
				})), ShouldBeNil)
				So(waitFor(func() bool { return svc.Presence().Len() == 0 }), ShouldBeTrue)
				So(p.hasRole("42", "live"), ShouldBeFalse)
				So(p.channelLen("streams"), ShouldEqual, 0)
			})
		})

		Convey("When housekeeping tasks run", func() {
			So(svc.Enqueue(ctx, queue.NewTask("member_joined", func(ctx context.Context) error {
				return svc.Notifier().MemberJoined(ctx, "luigi")
			})), ShouldBeNil)
			So(svc.Enqueue(ctx, queue.NewTask("post", func(ctx context.Context) error {
				_, err := svc.Janitor().OnPost(ctx, community.Post{ID: "1", ChannelID: "streams", AuthorID: "7", Content: "oi"})
				return err
			})), ShouldBeNil)

			Convey("Then notices are posted and rule breakers reminded", func() {
				So(waitFor(func() bool { return p.channelLen("updates") == 1 }), ShouldBeTrue)
				So(waitFor(func() bool {
					p.mu.Lock()
					defer p.mu.Unlock()
					return len(p.dms) == 1
				}), ShouldBeTrue)
			})
		})

		Convey("When the service stops", func() {
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then new tasks are refused", func() {
				err := svc.Enqueue(ctx, queue.NewTask("presence", func(context.Context) error { return nil }))
				So(errors.Is(err, service.ErrStopped), ShouldBeTrue)
				So(svc.Ready(), ShouldBeFalse)
			})

			Convey("Then it cannot be started again", func() {
				So(errors.Is(svc.Start(ctx), service.ErrStopped), ShouldBeTrue)
			})
		})

		Reset(func() { _ = svc.Stop(ctx) })
	})
}
