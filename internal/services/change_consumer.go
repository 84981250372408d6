package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cassa/internal/amqp"
	"cassa/internal/log"
)

// Subscriber is the inbound side of the change-event bus.
type Subscriber interface {
	ConsumeChanges(ctx context.Context, handler func(context.Context, *amqp.ChangeMessage) error) error
}

// Invalidator reloads a group's cached state.
type Invalidator interface {
	Invalidate(ctx context.Context, groupID string) error
}

// ChangeConsumerConfig holds configuration for the change consumer.
type ChangeConsumerConfig struct {
	// RetryDelay is the pause before resubscribing after the consumer stops (default: 5s)
	RetryDelay time.Duration
	// MaxRetryDelay caps the growing pause between resubscriptions (default: 1m)
	MaxRetryDelay time.Duration
}

func DefaultChangeConsumerConfig() ChangeConsumerConfig {
	return ChangeConsumerConfig{
		RetryDelay:    5 * time.Second,
		MaxRetryDelay: time.Minute,
	}
}

// ChangeConsumer applies change events from other instances by invalidating
// the affected workspace. It resubscribes when the broker drops the consumer.
type ChangeConsumer struct {
	sub    Subscriber
	inv    Invalidator
	config ChangeConsumerConfig
	logger *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

func NewChangeConsumer(sub Subscriber, inv Invalidator, config ChangeConsumerConfig, logger *log.Logger) *ChangeConsumer {
	return &ChangeConsumer{
		sub:    sub,
		inv:    inv,
		config: config,
		logger: logger.WithComponent(log.ComponentAMQP),
	}
}

// Start begins consuming in the background. Returns an error if already running.
func (c *ChangeConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("change consumer is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.doneCh = make(chan struct{})

	go c.runLoop(ctx)

	c.logger.InfoContext(ctx, "Change consumer started")
	return nil
}

// Stop cancels consumption and waits for the loop to exit.
func (c *ChangeConsumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel, done := c.cancel, c.doneCh
	c.mu.Unlock()

	cancel()

	select {
	case <-done:
		c.logger.InfoContext(ctx, "Change consumer stopped gracefully")
	case <-ctx.Done():
		c.logger.WarnContext(ctx, "Change consumer stop timed out")
		return ctx.Err()
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return nil
}

func (c *ChangeConsumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *ChangeConsumer) runLoop(ctx context.Context) {
	defer close(c.doneCh)

	delay := c.config.RetryDelay
	for {
		err := c.sub.ConsumeChanges(ctx, c.Handle)
		if ctx.Err() != nil {
			return
		}
		c.logger.WarnContext(ctx, "Change consumer interrupted, resubscribing",
			log.FieldOperation, log.OpConsume,
			log.FieldError, err,
			"retry_in", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.config.MaxRetryDelay {
			delay = c.config.MaxRetryDelay
		}
	}
}

// Handle invalidates the workspace named by msg.
func (c *ChangeConsumer) Handle(ctx context.Context, msg *amqp.ChangeMessage) error {
	if msg == nil || msg.GroupID == "" {
		return errors.New("change message without group")
	}
	if err := c.inv.Invalidate(ctx, msg.GroupID); err != nil {
		return fmt.Errorf("invalidate %s: %w", msg.GroupID, err)
	}
	c.logger.DebugContext(ctx, "Workspace invalidated",
		log.FieldGroupID, msg.GroupID,
		log.FieldTable, msg.Table,
		log.FieldOperation, msg.Op)
	return nil
}

// Invalidators fans one invalidation out to several caches.
type Invalidators []Invalidator

func (is Invalidators) Invalidate(ctx context.Context, groupID string) error {
	var errs []error
	for _, inv := range is {
		if err := inv.Invalidate(ctx, groupID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context, groupID string) error

func (f InvalidatorFunc) Invalidate(ctx context.Context, groupID string) error { return f(ctx, groupID) }
