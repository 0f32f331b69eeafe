package reconcile

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/sm64br/runwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeRemote is an in-memory guild with one marker channel.
type fakeRemote struct {
	mu           sync.Mutex
	members      map[uint64][]string
	messages     map[uint64]bool
	memberCalls  int
	messageCalls int
	listErr      error
	removeErr    error
	deleteErr    error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{members: map[uint64][]string{}, messages: map[uint64]bool{}}
}

func (f *fakeRemote) ListMembers(_ context.Context, after string, limit int) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var cursor uint64
	if after != "" {
		cursor, _ = strconv.ParseUint(after, 10, 64)
	}
	ids := make([]uint64, 0, len(f.members))
	for id := range f.members {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	page := make([]Member, 0, len(ids))
	for _, id := range ids {
		page = append(page, Member{ID: strconv.FormatUint(id, 10), Roles: append([]string(nil), f.members[id]...)})
	}
	return page, nil
}

func (f *fakeRemote) RemoveRole(_ context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	id, _ := strconv.ParseUint(userID, 10, 64)
	kept := f.members[id][:0]
	for _, r := range f.members[id] {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	f.members[id] = kept
	return nil
}

func (f *fakeRemote) ListMessages(_ context.Context, _ string, before string, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var cursor uint64 = ^uint64(0)
	if before != "" {
		cursor, _ = strconv.ParseUint(before, 10, 64)
	}
	ids := make([]uint64, 0, len(f.messages))
	for id := range f.messages {
		if id < cursor {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	page := make([]Message, 0, len(ids))
	for _, id := range ids {
		page = append(page, Message{ID: strconv.FormatUint(id, 10)})
	}
	return page, nil
}

func (f *fakeRemote) DeleteMessage(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	id, _ := strconv.ParseUint(messageID, 10, 64)
	delete(f.messages, id)
	return nil
}

func (f *fakeRemote) holders(roleID string) int {
	n := 0
	for _, roles := range f.members {
		for _, r := range roles {
			if r == roleID {
				n++
			}
		}
	}
	return n
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func TestSweep(t *testing.T) {
	Convey("Given a guild left dirty by a previous run", t, func() {
		So(logger.Init(), ShouldBeNil)
		remote := newFakeRemote()
		const n, m, pageSize = 7, 5, 3
		// ids straddle a digit boundary so string order would break paging
		for i := 0; i < n; i++ {
			remote.members[uint64(8+i)] = []string{"everyone", "live"}
		}
		for i := 0; i < m; i++ {
			remote.messages[uint64(95+i*3)] = true
		}

		sweep := New(remote, "live", "streams", WithMemberPageSize(pageSize), WithMessagePageSize(pageSize))

		Convey("When the sweep runs", func() {
			rep, err := sweep.Run(context.Background())

			Convey("Then all roles and messages are gone", func() {
				So(err, ShouldBeNil)
				So(remote.holders("live"), ShouldEqual, 0)
				So(remote.holders("everyone"), ShouldEqual, n)
				So(len(remote.messages), ShouldEqual, 0)
				So(rep.RolesRevoked, ShouldEqual, n)
				So(rep.Deleted, ShouldEqual, m)
			})

			Convey("Then each pass makes ceil(count/pageSize) calls plus one terminating call", func() {
				So(remote.memberCalls, ShouldEqual, ceilDiv(n, pageSize)+1)
				So(remote.messageCalls, ShouldEqual, ceilDiv(m, pageSize)+1)
				So(rep.MemberPages, ShouldEqual, remote.memberCalls)
				So(rep.MessagePages, ShouldEqual, remote.messageCalls)
			})
		})

		Convey("When some members do not hold the role", func() {
			remote.members[100] = []string{"everyone"}
			rep, err := sweep.Run(context.Background())

			Convey("Then only holders are touched", func() {
				So(err, ShouldBeNil)
				So(rep.MembersSeen, ShouldEqual, n+1)
				So(rep.RolesRevoked, ShouldEqual, n)
			})
		})

		Convey("When the guild is already clean", func() {
			clean := newFakeRemote()
			rep, err := New(clean, "live", "streams").Run(context.Background())

			Convey("Then one empty page per pass is fetched", func() {
				So(err, ShouldBeNil)
				So(rep.MemberPages, ShouldEqual, 1)
				So(rep.MessagePages, ShouldEqual, 1)
			})
		})

		Convey("When listing fails", func() {
			remote.listErr = errors.New("503")
			_, err := sweep.Run(context.Background())

			Convey("Then the sweep fails with a reconciliation error", func() {
				So(errors.Is(err, ErrReconciliation), ShouldBeTrue)
			})
		})

		Convey("When revoking fails", func() {
			remote.removeErr = errors.New("missing permissions")
			_, err := sweep.Run(context.Background())

			Convey("Then the sweep stops before touching messages", func() {
				So(errors.Is(err, ErrReconciliation), ShouldBeTrue)
				So(remote.messageCalls, ShouldEqual, 0)
			})
		})

		Convey("When deleting fails", func() {
			remote.deleteErr = errors.New("unknown message")
			_, err := sweep.Run(context.Background())

			Convey("Then the sweep fails", func() {
				So(errors.Is(err, ErrReconciliation), ShouldBeTrue)
				So(len(remote.messages), ShouldEqual, m)
			})
		})
	})
}

func TestSnowflakeOrder(t *testing.T) {
	Convey("Given snowflake ids", t, func() {
		So(snowflakeLess("9", "10"), ShouldBeTrue)
		So(snowflakeLess("10", "9"), ShouldBeFalse)
		So(highestID([]Member{{ID: "9"}, {ID: "175928847299117063"}, {ID: "10"}}), ShouldEqual, "175928847299117063")
		So(lowestID([]Message{{ID: "100"}, {ID: "99"}, {ID: "101"}}), ShouldEqual, "99")
		So(snowflakeLess("a", "bb"), ShouldBeTrue)
	})
}
