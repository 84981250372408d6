package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeNotifier struct {
	name string
	err  error
	sent []Message
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(_ context.Context, m Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func TestMulti_Notify(t *testing.T) {
	msg := Message{To: Recipient{UserID: "u1"}, Subject: "s", Body: "b"}

	t.Run("all succeed", func(t *testing.T) {
		a, b := &fakeNotifier{name: "a"}, &fakeNotifier{name: "b"}
		if err := (Multi{a, b}).Notify(context.Background(), msg); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
		if len(a.sent) != 1 || len(b.sent) != 1 {
			t.Errorf("sent a=%d b=%d, want 1 each", len(a.sent), len(b.sent))
		}
	})

	t.Run("missing address is skipped", func(t *testing.T) {
		a := &fakeNotifier{name: "email", err: ErrNoAddress}
		b := &fakeNotifier{name: "telegram"}
		if err := (Multi{a, b}).Notify(context.Background(), msg); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
		if len(b.sent) != 1 {
			t.Error("second notifier should still deliver")
		}
	})

	t.Run("failures are joined", func(t *testing.T) {
		boom := errors.New("boom")
		a := &fakeNotifier{name: "email", err: boom}
		b := &fakeNotifier{name: "telegram"}
		err := (Multi{a, b}).Notify(context.Background(), msg)
		if !errors.Is(err, boom) {
			t.Fatalf("error = %v, want boom", err)
		}
		if !strings.Contains(err.Error(), "email") {
			t.Errorf("error should name the channel: %v", err)
		}
		if len(b.sent) != 1 {
			t.Error("a failing notifier must not stop the others")
		}
	})
}
