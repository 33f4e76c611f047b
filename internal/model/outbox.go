package model

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeMessageSent  EventType = "message_sent"
	EventTypeMessagesRead EventType = "messages_read"
)

type EventStatus string

const (
	EventStatusPending EventStatus = "pending"
	EventStatusDone    EventStatus = "done"
	EventStatusError   EventStatus = "error"

	// EventStatusRejected parks events the consumer refused as permanently
	// invalid; unlike error rows they are never requeued.
	EventStatusRejected EventStatus = "rejected"
)

type OutboxEvent struct {
	ID        uuid.UUID   `db:"id"`
	EventType EventType   `db:"event_type"`
	Payload   []byte      `db:"payload"`
	Status    EventStatus `db:"status"`
	LastError *string     `db:"last_error"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}
