package model

import (
	"time"

	"github.com/google/uuid"
)

// CounterState is the denormalized per-user read model served to clients.
// Invariant: TotalUnread == sum(ByPeer) after every apply or reconciliation,
// modulo the accepted race between the live path and the reconciler.
type CounterState struct {
	UserID      uuid.UUID           `json:"user_id"`
	TotalUnread int64               `json:"total_unread"`
	ByPeer      map[uuid.UUID]int64 `json:"by_peer"`
}

type PeerCounter struct {
	UserID     uuid.UUID `json:"user_id"`
	PeerUserID uuid.UUID `json:"peer_user_id"`
	Unread     int64     `json:"unread"`
	LastReadTS time.Time `json:"last_read_ts"`
}

type MarkReadRequest struct {
	UserID         uuid.UUID `json:"user_id"`
	PeerUserID     uuid.UUID `json:"peer_user_id"`
	Delta          int64     `json:"delta"`
	LastReadTS     time.Time `json:"last_read_ts"`
	IdempotencyKey string    `json:"idempotency_key"`
}

type UserIDPathParam struct {
	UserID string `uri:"user_id" binding:"required"`
}

type PeerPathParam struct {
	UserID string `uri:"user_id" binding:"required"`
	PeerID string `uri:"peer_id" binding:"required"`
}
