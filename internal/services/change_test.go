package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cassa/internal/amqp"
	"cassa/internal/log"
)

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	msgs []*amqp.ChangeMessage
}

func (f *fakePublisher) PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	f.msgs = append(f.msgs, msg)
	return f.err
}

func TestChangeNotifier_Changed(t *testing.T) {
	t.Run("publishes", func(t *testing.T) {
		pub := &fakePublisher{}
		n := NewChangeNotifier(pub, log.Discard())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		n.Changed(ctx, "g1", "tasks", amqp.OpCreate, "t1", "alice")

		if len(pub.msgs) != 1 {
			t.Fatalf("published %d, want 1 even after the request ended", len(pub.msgs))
		}
		m := pub.msgs[0]
		if m.GroupID != "g1" || m.Table != "tasks" || m.Op != amqp.OpCreate || m.RecordID != "t1" || m.ActorID != "alice" {
			t.Errorf("message = %+v", m)
		}
	})

	t.Run("failures are swallowed", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("circuit breaker is open")}
		NewChangeNotifier(pub, log.Discard()).Changed(context.Background(), "g1", "tasks", amqp.OpDelete, "t1", "alice")
	})

	t.Run("nil publisher", func(t *testing.T) {
		NewChangeNotifier(nil, log.Discard()).Changed(context.Background(), "g1", "tasks", amqp.OpDelete, "t1", "alice")
		var n *ChangeNotifier
		n.Changed(context.Background(), "g1", "tasks", amqp.OpDelete, "t1", "alice")
	})
}

type recordingInvalidator struct {
	mu     sync.Mutex
	err    error
	groups []string
	seen   chan string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, groupID string) error {
	r.mu.Lock()
	r.groups = append(r.groups, groupID)
	r.mu.Unlock()
	if r.seen != nil {
		r.seen <- groupID
	}
	return r.err
}

// scriptedSubscriber delivers its messages, then fails the first
// subscription and blocks on every later one.
type scriptedSubscriber struct {
	mu    sync.Mutex
	calls int
	msgs  []*amqp.ChangeMessage
}

func (s *scriptedSubscriber) ConsumeChanges(ctx context.Context, handler func(context.Context, *amqp.ChangeMessage) error) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		for _, m := range s.msgs {
			_ = handler(ctx, m)
		}
		return errors.New("connection closed")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *scriptedSubscriber) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestChangeConsumer_Lifecycle(t *testing.T) {
	sub := &scriptedSubscriber{msgs: []*amqp.ChangeMessage{
		amqp.NewChangeMessage("g1", "tasks", amqp.OpCreate, "t1", "bob"),
		amqp.NewChangeMessage("g2", "installments", amqp.OpUpdate, "i1", "bob"),
	}}
	inv := &recordingInvalidator{seen: make(chan string, 4)}
	cfg := ChangeConsumerConfig{RetryDelay: time.Millisecond, MaxRetryDelay: 5 * time.Millisecond}
	c := NewChangeConsumer(sub, inv, cfg, log.Discard())

	if c.IsRunning() {
		t.Fatal("consumer should not be running initially")
	}
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Start(ctx); err == nil {
		t.Error("expected error when starting twice")
	}

	for _, want := range []string{"g1", "g2"} {
		select {
		case got := <-inv.seen:
			if got != want {
				t.Errorf("invalidated %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	deadline := time.Now().Add(time.Second)
	for sub.Calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sub.Calls() < 2 {
		t.Error("consumer should resubscribe after the broker drops it")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if c.IsRunning() {
		t.Error("consumer should not be running after Stop")
	}
	if err := c.Stop(stopCtx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestChangeConsumer_Handle(t *testing.T) {
	boom := errors.New("reload failed")
	inv := Invalidators{
		&recordingInvalidator{},
		InvalidatorFunc(func(context.Context, string) error { return boom }),
	}
	c := NewChangeConsumer(nil, inv, DefaultChangeConsumerConfig(), log.Discard())

	if err := c.Handle(context.Background(), &amqp.ChangeMessage{}); err == nil {
		t.Error("message without group should fail")
	}
	err := c.Handle(context.Background(), amqp.NewChangeMessage("g1", "tasks", amqp.OpCreate, "", ""))
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if got := inv[0].(*recordingInvalidator).groups; len(got) != 1 || got[0] != "g1" {
		t.Errorf("first invalidator saw %v", got)
	}
}
