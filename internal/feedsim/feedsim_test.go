package feedsim_test

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/sm64br/runwatch/internal/adapters/feed"
	"github.com/sm64br/runwatch/internal/domain/category"
	"github.com/sm64br/runwatch/internal/domain/run"
	"github.com/sm64br/runwatch/internal/feedsim"
	"github.com/sm64br/runwatch/pkg/logger"
)

func permissiveTable() category.Table {
	entries := make(map[category.Category]category.Threshold)
	for _, c := range category.All() {
		entries[c] = category.Threshold{MinPercentage: 0, MaxBPT: 1 << 40}
	}
	return category.NewTable(entries)
}

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		cfg := &feedsim.Config{Runners: 3, Game: "Super Mario 64", Seed: 7}
		gen := feedsim.NewGenerator(cfg)
		ev := run.NewEvaluator(permissiveTable())

		Convey("Then every frame decodes and carries a simulated runner", func() {
			for i := 0; i < 200; i++ {
				b := gen.Next()
				var f feedsim.Frame
				So(json.Unmarshal(b, &f), ShouldBeNil)
				So(f.User, ShouldStartWith, "runner-")
				So(f.Run.RunPercentage, ShouldBeGreaterThan, 0)
				So(f.Run.RunPercentage, ShouldBeLessThanOrEqualTo, 1)
				So(f.Run.SOB, ShouldBeLessThanOrEqualTo, f.Run.BestPossible)

				res := ev.Evaluate(b)
				So(res.Reason, ShouldNotEqual, run.ReasonParseError)
				So(res.Reason, ShouldNotEqual, run.ReasonUnknownCategory)
			}
			So(gen.Count(), ShouldEqual, 200)
		})
	})

	Convey("Given a generator that emits malformed frames", t, func() {
		gen := feedsim.NewGenerator(&feedsim.Config{Runners: 2, Game: "Super Mario 64", MalformedEvery: 5, Seed: 1})
		ev := run.NewEvaluator(permissiveTable())

		Convey("Then every fifth frame fails to parse", func() {
			parseErrors := 0
			for i := 0; i < 50; i++ {
				if ev.Evaluate(gen.Next()).Reason == run.ReasonParseError {
					parseErrors++
				}
			}
			So(parseErrors, ShouldEqual, 10)
		})
	})
}

type collector struct {
	mu      sync.Mutex
	reports []string
}

func (c *collector) Publish(_ context.Context, report string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, report)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

func TestServeWithFeedClient(t *testing.T) {
	_ = logger.Init()

	Convey("Given a running simulator", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		type result struct {
			stats *feedsim.Stats
			err   error
		}
		done := make(chan result, 1)
		go func() {
			stats, err := feedsim.Serve(ctx, ln, &feedsim.Config{
				Runners:  2,
				Interval: 2 * time.Millisecond,
				Game:     "Super Mario 64",
				Seed:     3,
			})
			done <- result{stats, err}
		}()

		pub := &collector{}
		client := feed.NewClient("ws://"+ln.Addr().String()+"/", run.NewEvaluator(permissiveTable()), pub,
			feed.WithReconnectBackoff(5*time.Millisecond, 20*time.Millisecond))
		clientCtx, stopClient := context.WithCancel(ctx)
		clientDone := make(chan error, 1)
		go func() { clientDone <- client.Run(clientCtx) }()

		Convey("Then the feed client announces simulated runs", func() {
			deadline := time.Now().Add(5 * time.Second)
			for pub.count() == 0 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			So(pub.count(), ShouldBeGreaterThan, 0)

			pub.mu.Lock()
			first := pub.reports[0]
			pub.mu.Unlock()
			So(strings.HasPrefix(first, "**Runner: runner-"), ShouldBeTrue)

			stopClient()
			<-clientDone
			cancel()
			res := <-done
			So(res.err, ShouldBeNil)
			So(res.stats.FramesSent, ShouldBeGreaterThan, 0)
		})

		Reset(func() {
			stopClient()
			cancel()
		})
	})
}

func TestServeRejectsZeroInterval(t *testing.T) {
	_ = logger.Init()

	Convey("A zero frame interval is rejected", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)
		defer ln.Close()

		_, err = feedsim.Serve(context.Background(), ln, &feedsim.Config{Runners: 1})
		So(err, ShouldNotBeNil)
	})
}
