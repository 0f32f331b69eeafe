package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/sm64br/runwatch/internal/domain/category"
	"github.com/sm64br/runwatch/internal/domain/run"
	"github.com/sm64br/runwatch/pkg/logger"
)

type frame struct {
	kind int
	data []byte
}

// feedServer replays script on every connection. If hold is set, the
// connection stays open after the script until the client goes away.
type feedServer struct {
	*httptest.Server
	script      []frame
	hold        bool
	connections atomic.Int32
}

func newFeedServer(script []frame, hold bool) *feedServer {
	fs := &feedServer{script: script, hold: hold}
	upgrader := websocket.Upgrader{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fs.connections.Add(1)
		for _, f := range fs.script {
			if err := conn.WriteMessage(f.kind, f.data); err != nil {
				return
			}
		}
		if fs.hold {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
	}))
	return fs
}

func (fs *feedServer) url() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

type fakePublisher struct {
	mu      sync.Mutex
	reports []string
	failN   int
}

func (p *fakePublisher) Publish(_ context.Context, report string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failN > 0 {
		p.failN--
		return errors.New("discord unavailable")
	}
	p.reports = append(p.reports, report)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reports)
}

func (p *fakePublisher) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.reports...)
}

func runFrame(user string, percentage float64) frame {
	b, _ := json.Marshal(map[string]any{
		"user": user,
		"run": map[string]any{
			"game":               "Super Mario 64",
			"category":           "16 Star",
			"currentlyStreaming": true,
			"runPercentage":      percentage,
			"bestPossible":       900000,
			"pb":                 950000,
			"sob":                880000,
			"emulator":           true,
			"gameData":           map[string]any{"attemptCount": 7, "url": user + "/sm64"},
		},
	})
	return frame{kind: websocket.TextMessage, data: b}
}

func testEvaluator() *run.Evaluator {
	return run.NewEvaluator(category.NewTable(map[category.Category]category.Threshold{
		category.Star16: {MinPercentage: 0.9, MaxBPT: 900000},
	}))
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

func startClient(c *Client) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	return cancel, errCh
}

func TestClientAnnounces(t *testing.T) {
	_ = logger.Init()

	Convey("Given a feed that streams a mix of frames", t, func() {
		srv := newFeedServer([]frame{
			runFrame("alice", 0.95),
			runFrame("alice", 0.96),
			runFrame("alice", 0.50),
			runFrame("alice", 0.97),
			{kind: websocket.BinaryMessage, data: []byte{0x01, 0x02}},
			{kind: websocket.TextMessage, data: []byte("{not json")},
			runFrame("bob", 0.99),
		}, true)
		defer srv.Close()

		pub := &fakePublisher{}
		c := NewClient(srv.url(), testEvaluator(), pub, WithPingInterval(0))
		So(c.State(), ShouldEqual, Disconnected)

		cancel, errCh := startClient(c)

		Convey("Then each qualifying streak is announced once", func() {
			So(waitFor(func() bool { return pub.count() == 3 }), ShouldBeTrue)
			So(c.State(), ShouldEqual, Connected)

			reports := pub.snapshot()
			So(reports[0], ShouldContainSubstring, "**Runner: alice**")
			So(reports[1], ShouldContainSubstring, "**Runner: alice**")
			So(reports[2], ShouldContainSubstring, "**Runner: bob**")
			So(reports[2], ShouldContainSubstring, "Plataforma: Emulador")
			So(c.Announced(), ShouldEqual, 2)

			cancel()
			err := <-errCh
			So(errors.Is(err, ErrClosed), ShouldBeTrue)
			So(c.State(), ShouldEqual, Disconnected)
		})

		Reset(cancel)
	})
}

func TestClientReconnects(t *testing.T) {
	_ = logger.Init()

	Convey("Given a feed that drops the connection after each frame", t, func() {
		srv := newFeedServer([]frame{runFrame("alice", 0.95)}, false)
		defer srv.Close()

		pub := &fakePublisher{}
		c := NewClient(srv.url(), testEvaluator(), pub,
			WithPingInterval(0),
			WithReconnectBackoff(5*time.Millisecond, 20*time.Millisecond))
		cancel, errCh := startClient(c)
		defer cancel()

		Convey("Then the client reconnects and keeps the announced set", func() {
			So(waitFor(func() bool { return srv.connections.Load() >= 3 }), ShouldBeTrue)
			So(pub.count(), ShouldEqual, 1)

			cancel()
			So(errors.Is(<-errCh, ErrClosed), ShouldBeTrue)
		})
	})
}

func TestClientPublishFailure(t *testing.T) {
	_ = logger.Init()

	Convey("Given a publisher that fails the first post", t, func() {
		srv := newFeedServer([]frame{runFrame("alice", 0.95), runFrame("alice", 0.95)}, true)
		defer srv.Close()

		pub := &fakePublisher{failN: 1}
		c := NewClient(srv.url(), testEvaluator(), pub, WithPingInterval(0))
		cancel, errCh := startClient(c)
		defer cancel()

		Convey("Then the next qualifying frame retries the post", func() {
			So(waitFor(func() bool { return pub.count() == 1 }), ShouldBeTrue)
			So(c.Announced(), ShouldEqual, 1)

			cancel()
			<-errCh
		})
	})
}

func TestClientUnreachable(t *testing.T) {
	_ = logger.Init()

	Convey("Given an endpoint nobody listens on", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
		srv.Close()

		c := NewClient(endpoint, testEvaluator(), &fakePublisher{},
			WithReconnectBackoff(5*time.Millisecond, 10*time.Millisecond))

		Convey("When the context is cancelled while retrying", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			err := c.Run(ctx)

			Convey("Then Run returns a closed error", func() {
				So(errors.Is(err, ErrClosed), ShouldBeTrue)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(c.State(), ShouldEqual, Disconnected)
			})
		})
	})
}

func TestStateString(t *testing.T) {
	Convey("Connection states render in lowercase", t, func() {
		So(Disconnected.String(), ShouldEqual, "disconnected")
		So(Connecting.String(), ShouldEqual, "connecting")
		So(Connected.String(), ShouldEqual, "connected")
	})
}
