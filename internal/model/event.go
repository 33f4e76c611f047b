package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventEnvelope is the broker wire format: the outbox row payload plus enough
// routing information to dispatch it without touching the database.
type EventEnvelope struct {
	EventID   uuid.UUID       `json:"event_id"`
	EventType EventType       `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type MessageSentEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	FromUserID uuid.UUID `json:"from_user_id"`
	ToUserID   uuid.UUID `json:"to_user_id"`
	MessageID  uuid.UUID `json:"message_id"`
}

type MessagesReadEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	UserID     uuid.UUID `json:"user_id"`
	PeerUserID uuid.UUID `json:"peer_user_id"`
	Delta      int64     `json:"delta"`
	LastReadTS time.Time `json:"last_read_ts"`
}

type AppliedResponse struct {
	Applied bool `json:"applied"`
}

type MarkReadResponse struct {
	Applied bool      `json:"applied"`
	EventID uuid.UUID `json:"event_id"`
}
