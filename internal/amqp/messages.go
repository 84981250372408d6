package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpUpsert = "upsert"
	OpReload = "reload"
)

// ChangeMessage announces that a group's data changed on one instance.
// It carries identifiers only; consumers reload from the store.
type ChangeMessage struct {
	GroupID   string    `json:"group_id"`
	Table     string    `json:"table"`
	Op        string    `json:"op"`
	RecordID  string    `json:"record_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(groupID, table, op, recordID, actorID string) *ChangeMessage {
	return &ChangeMessage{
		GroupID:   groupID,
		Table:     table,
		Op:        op,
		RecordID:  recordID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
	}
}

// RoutingKey is "<table>.<op>", so consumers can bind to a subset.
func (m *ChangeMessage) RoutingKey() string {
	return m.Table + "." + m.Op
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.GroupID == "" {
		return nil, fmt.Errorf("change message without group id")
	}
	return &msg, nil
}
