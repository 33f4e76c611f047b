package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"counters-back/internal/model"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{
		db: db,
	}
}

func (r *MessageRepository) Pool() *pgxpool.Pool {
	return r.db
}

func (r *MessageRepository) InsertMessage(ctx context.Context, ext RepoExtension, message *model.Message) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
		INSERT INTO chat.messages (id, conversation_key, from_user, to_user, text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at;
	`

	err := ext.QueryRow(ctx, query,
		message.ID,
		message.ConversationKey,
		message.FromUserID,
		message.ToUserID,
		message.Text,
	).Scan(&message.CreatedAt)
	if err != nil {
		return err
	}

	return nil
}

// CountUnreadSince counts log messages addressed to the user in the canonical
// conversation at or after the last-read marker. This is the authoritative
// value the reconciler overwrites counters with.
func (r *MessageRepository) CountUnreadSince(ctx context.Context, ext RepoExtension, conversationKey string, toUser uuid.UUID, since time.Time) (int64, error) {
	if ext == nil {
		ext = r.db
	}

	const query = `
		SELECT COUNT(*)
		FROM chat.messages
		WHERE conversation_key = $1 AND to_user = $2 AND created_at >= $3;
	`

	var count int64

	if err := ext.QueryRow(ctx, query, conversationKey, toUser, since).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}
