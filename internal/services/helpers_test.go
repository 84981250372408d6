package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cassa/internal/core"
	"cassa/internal/entries"
	"cassa/internal/gateway/memory"
	"cassa/internal/log"
	"cassa/internal/notify"
)

var testNow = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

var (
	alice = core.Actor{ID: "alice", Name: "Alice", Email: "alice@example.com"}
	bob   = core.Actor{ID: "bob", Email: "bob@example.com"}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newGroupService(gw *memory.Gateway, c *clock) *GroupService {
	var n atomic.Int64
	s := NewGroupService(gw, log.Discard(), WithGroupClock(c.Now), WithBcryptCost(bcrypt.MinCost))
	s.newID = func() string { return fmt.Sprintf("gid-%03d", n.Add(1)) }
	return s
}

func newRegistry(gw *memory.Gateway) *entries.Registry {
	return entries.NewRegistry(gw, log.Discard(), entries.WithClock(func() time.Time { return testNow }))
}

// householdFixture creates group "Casa" owned by alice with bob as member.
func householdFixture(t *testing.T) (*memory.Gateway, *GroupService, core.Group) {
	t.Helper()
	ctx := context.Background()
	gw := memory.New()
	groups := newGroupService(gw, &clock{now: testNow})

	g, err := groups.CreateGroup(ctx, alice, "Casa")
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	_, token, err := groups.CreateInvite(ctx, alice, g.ID, bob.Email)
	if err != nil {
		t.Fatalf("CreateInvite() error = %v", err)
	}
	if _, err := groups.AcceptInvite(ctx, bob, token); err != nil {
		t.Fatalf("AcceptInvite() error = %v", err)
	}
	return gw, groups, g
}

type recordingNotifier struct {
	mu   sync.Mutex
	fail map[string]error
	sent []notify.Message
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, m notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[m.To.UserID]; err != nil {
		return err
	}
	r.sent = append(r.sent, m)
	return nil
}

func (r *recordingNotifier) to(userID string) (notify.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.sent {
		if m.To.UserID == userID {
			return m, true
		}
	}
	return notify.Message{}, false
}
