package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is a row of the authoritative message log. The log is append-only
// and is the single source of truth the reconciler recounts from.
type Message struct {
	ID              uuid.UUID `db:"id" json:"id"`
	ConversationKey string    `db:"conversation_key" json:"-"`
	FromUserID      uuid.UUID `db:"from_user" json:"from_user_id"`
	ToUserID        uuid.UUID `db:"to_user" json:"to_user_id"`
	Text            string    `db:"text" json:"text"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

type SendMessageRequest struct {
	FromUserID uuid.UUID `json:"from_user_id"`
	ToUserID   uuid.UUID `json:"to_user_id"`
	Text       string    `json:"text"`
}

// ConversationKey maps an unordered pair of participants onto one canonical
// conversation: both directions of a dialog share the same key.
func ConversationKey(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if strings.Compare(as, bs) > 0 {
		as, bs = bs, as
	}

	return as + ":" + bs
}
