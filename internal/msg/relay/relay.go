// Package relay drains the transactional outbox: it polls pending rows in
// commit order and hands them to the configured publisher. Delivery is
// at-least-once; rows are only marked done after a successful publish.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"counters-back/internal/apperrors"
	"counters-back/internal/model"
	"counters-back/internal/msg/transport"
	"counters-back/internal/repository"
)

const maxLastErrorLen = 500

type Repository interface {
	SelectPendingBatch(ctx context.Context, ext repository.RepoExtension, batchSize int) ([]model.OutboxEvent, error)
	MarkDone(ctx context.Context, ext repository.RepoExtension, eventID uuid.UUID) error
	MarkError(ctx context.Context, ext repository.RepoExtension, eventID uuid.UUID, lastError string) error
	MarkRejected(ctx context.Context, ext repository.RepoExtension, eventID uuid.UUID, lastError string) error
	RequeueErrors(ctx context.Context, ext repository.RepoExtension, olderThan time.Duration) (int64, error)
}

type Config struct {
	Name         string
	PollInterval time.Duration
	BatchSize    int
	ErrorBackoff time.Duration
	RequeueAfter time.Duration
}

type Relay struct {
	log       *zap.Logger
	cfg       Config
	repo      Repository
	publisher transport.Publisher
}

func New(log *zap.Logger, cfg Config, repo Repository, publisher transport.Publisher) *Relay {
	return &Relay{
		log:       log,
		cfg:       cfg,
		repo:      repo,
		publisher: publisher,
	}
}

// Run polls until the context is cancelled. A failed cycle backs off instead
// of hammering a broken downstream.
func (r *Relay) Run(ctx context.Context) {
	r.log.Info("Relay started",
		zap.String("name", r.cfg.Name),
		zap.Duration("poll_interval", r.cfg.PollInterval),
		zap.Int("batch_size", r.cfg.BatchSize),
	)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Relay stopped", zap.String("name", r.cfg.Name))
			return
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil {
				r.log.Error("Relay cycle failed", zap.Error(err))
				r.sleep(ctx, r.cfg.ErrorBackoff)
			}
		}
	}
}

// drainOnce requeues cooled-down error rows, then publishes one pending batch
// in order. A publish failure marks the row and moves on: one poisoned event
// must not wedge the queue forever, the requeue cycle retries it later.
func (r *Relay) drainOnce(ctx context.Context) error {
	if r.cfg.RequeueAfter > 0 {
		requeued, err := r.repo.RequeueErrors(ctx, nil, r.cfg.RequeueAfter)
		if err != nil {
			return err
		}

		if requeued > 0 {
			r.log.Info("Error events requeued", zap.Int64("count", requeued))
		}
	}

	events, err := r.repo.SelectPendingBatch(ctx, nil, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := r.publisher.Publish(ctx, event); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}

			// Permanently refused payloads are parked, not retried: requeuing
			// them would re-reject the same event every cooldown forever.
			if errors.Is(err, apperrors.ErrEventRejected) || errors.Is(err, apperrors.ErrUnknownEventType) {
				r.log.Warn("Dropping permanently rejected event",
					zap.String("event_id", event.ID.String()),
					zap.String("event_type", string(event.EventType)),
					zap.Error(err),
				)

				if err := r.repo.MarkRejected(ctx, nil, event.ID, truncate(err.Error())); err != nil {
					return err
				}

				continue
			}

			r.log.Warn("Failed to publish event",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", string(event.EventType)),
				zap.Error(err),
			)

			if err := r.repo.MarkError(ctx, nil, event.ID, truncate(err.Error())); err != nil {
				return err
			}

			continue
		}

		if err := r.repo.MarkDone(ctx, nil, event.ID); err != nil {
			return err
		}
	}

	return nil
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func truncate(s string) string {
	if len(s) > maxLastErrorLen {
		return s[:maxLastErrorLen]
	}

	return s
}
