// Package notify defines the outbound reminder port and a fan-out helper.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Recipient is the member a message is addressed to.
type Recipient struct {
	UserID string
	Name   string
	Email  string
}

type Message struct {
	To      Recipient
	Subject string
	Body    string
}

// Notifier delivers a message through one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, m Message) error
}

// ErrNoAddress is returned when a recipient has no address for a channel.
// Fan-out treats it as a skip rather than a failure.
var ErrNoAddress = errors.New("recipient has no address for this channel")

// Multi sends every message through each notifier and joins the failures.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil && !errors.Is(err, ErrNoAddress) {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
