package services

import (
	"context"

	"cassa/internal/amqp"
	"cassa/internal/log"
)

// Publisher is the outbound side of the change-event bus.
type Publisher interface {
	PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
}

// ChangeNotifier announces successful mutations to other instances.
// Publishing is best effort: the mutation is already stored, so a failure
// is logged and never returned to the caller.
type ChangeNotifier struct {
	pub    Publisher
	logger *log.Logger
}

// NewChangeNotifier accepts a nil publisher, in which case it only logs.
func NewChangeNotifier(pub Publisher, logger *log.Logger) *ChangeNotifier {
	return &ChangeNotifier{pub: pub, logger: logger.WithComponent(log.ComponentAMQP)}
}

func (n *ChangeNotifier) Changed(ctx context.Context, groupID, table, op, recordID, actorID string) {
	if n == nil || n.pub == nil {
		return
	}
	msg := amqp.NewChangeMessage(groupID, table, op, recordID, actorID)
	// the request may finish before the broker answers
	if err := n.pub.PublishChange(context.WithoutCancel(ctx), msg); err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish change message",
			log.FieldOperation, log.OpPublish,
			log.FieldGroupID, groupID,
			log.FieldTable, table,
			log.FieldRecordID, recordID,
			log.FieldError, err)
	}
}
