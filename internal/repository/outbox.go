package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"counters-back/internal/model"
)

type OutboxRepository struct {
	db *pgxpool.Pool
}

func NewOutboxRepository(db *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{
		db: db,
	}
}

func (r *OutboxRepository) InsertEvent(ctx context.Context, ext RepoExtension, event model.OutboxEvent) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
        INSERT INTO events.outbox_events (id, event_type, payload)
		VALUES ($1, $2, $3)
        ON CONFLICT DO NOTHING;
    `

	_, err := ext.Exec(ctx, query, event.ID, event.EventType, event.Payload)
	if err != nil {
		return err
	}

	return nil
}

func (r *OutboxRepository) SelectPendingBatch(ctx context.Context, ext RepoExtension, batchSize int) ([]model.OutboxEvent, error) {
	if ext == nil {
		ext = r.db
	}

	var events []model.OutboxEvent

	const query = `
        SELECT id, event_type, payload, status, last_error, created_at, updated_at
        FROM events.outbox_events
        WHERE status = 'pending'
        ORDER BY created_at
        LIMIT $1;
    `

	rows, err := ext.Query(ctx, query, batchSize)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var event model.OutboxEvent
		if err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.Payload,
			&event.Status,
			&event.LastError,
			&event.CreatedAt,
			&event.UpdatedAt,
		); err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, nil
}

func (r *OutboxRepository) MarkDone(ctx context.Context, ext RepoExtension, eventID uuid.UUID) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
        UPDATE events.outbox_events
        SET status = 'done', last_error = NULL, updated_at = NOW()
        WHERE id = $1;
    `

	_, err := ext.Exec(ctx, query, eventID)
	if err != nil {
		return err
	}

	return nil
}

func (r *OutboxRepository) MarkError(ctx context.Context, ext RepoExtension, eventID uuid.UUID, lastError string) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
        UPDATE events.outbox_events
        SET status = 'error', last_error = $2, updated_at = NOW()
        WHERE id = $1;
    `

	_, err := ext.Exec(ctx, query, eventID, lastError)
	if err != nil {
		return err
	}

	return nil
}

func (r *OutboxRepository) MarkRejected(ctx context.Context, ext RepoExtension, eventID uuid.UUID, lastError string) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
        UPDATE events.outbox_events
        SET status = 'rejected', last_error = $2, updated_at = NOW()
        WHERE id = $1;
    `

	_, err := ext.Exec(ctx, query, eventID, lastError)
	if err != nil {
		return err
	}

	return nil
}

// RequeueErrors flips error rows older than the cooldown back to pending so
// the relay picks them up again on the next cycle. Rejected rows stay put.
func (r *OutboxRepository) RequeueErrors(ctx context.Context, ext RepoExtension, olderThan time.Duration) (int64, error) {
	if ext == nil {
		ext = r.db
	}

	const query = `
        UPDATE events.outbox_events
        SET status = 'pending', updated_at = NOW()
        WHERE status = 'error' AND updated_at < NOW() - $1;
    `

	tag, err := ext.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}
