package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"counters-back/internal/apperrors"
	"counters-back/internal/model"
)

// CounterStore is the denormalized counter state plus the dedup markers that
// guard it. Backed by redis in production.
type CounterStore interface {
	MarkEventSeen(ctx context.Context, eventID uuid.UUID) (bool, error)
	ClearEventSeen(ctx context.Context, eventID uuid.UUID) error
	IncrementUnread(ctx context.Context, userID, peerID uuid.UUID) error
	DecrementUnread(ctx context.Context, userID, peerID uuid.UUID, peerDelta, totalDelta int64, lastRead time.Time) error
	TotalUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	PeerUnread(ctx context.Context, userID, peerID uuid.UUID) (int64, error)
}

// ApplyService turns delivered events into counter mutations. Every apply is
// gated by a dedup marker, so redelivered events are acknowledged without
// touching the counters.
type ApplyService struct {
	log   *zap.Logger
	store CounterStore
}

func NewApplyService(log *zap.Logger, store CounterStore) *ApplyService {
	return &ApplyService{
		log:   log,
		store: store,
	}
}

// ApplyMessageSent increments the recipient's total and per-sender counters.
// Returns false when the event was already applied.
func (s *ApplyService) ApplyMessageSent(ctx context.Context, event model.MessageSentEvent) (bool, error) {
	if event.EventID == uuid.Nil || event.FromUserID == uuid.Nil || event.ToUserID == uuid.Nil {
		return false, apperrors.ErrInvalidEventPayload
	}

	if event.FromUserID == event.ToUserID {
		return false, apperrors.ErrInvalidEventPayload
	}

	first, err := s.store.MarkEventSeen(ctx, event.EventID)
	if err != nil {
		return false, fmt.Errorf("failed to check dedup marker: %w", err)
	}

	if !first {
		s.log.Debug("Duplicate event skipped", zap.String("event_id", event.EventID.String()))
		return false, nil
	}

	if err := s.store.IncrementUnread(ctx, event.ToUserID, event.FromUserID); err != nil {
		s.clearMarker(ctx, event.EventID)
		return false, fmt.Errorf("failed to increment counters: %w", err)
	}

	return true, nil
}

// ApplyMessagesRead decrements counters by the event delta, clamped so neither
// the per-peer counter nor the total goes below zero. The two clamps are
// independent: a drifted total never blocks the per-peer decrement.
func (s *ApplyService) ApplyMessagesRead(ctx context.Context, event model.MessagesReadEvent) (bool, error) {
	if event.EventID == uuid.Nil || event.UserID == uuid.Nil || event.PeerUserID == uuid.Nil {
		return false, apperrors.ErrInvalidEventPayload
	}

	if event.UserID == event.PeerUserID || event.Delta < 0 {
		return false, apperrors.ErrInvalidEventPayload
	}

	first, err := s.store.MarkEventSeen(ctx, event.EventID)
	if err != nil {
		return false, fmt.Errorf("failed to check dedup marker: %w", err)
	}

	if !first {
		s.log.Debug("Duplicate event skipped", zap.String("event_id", event.EventID.String()))
		return false, nil
	}

	peerUnread, err := s.store.PeerUnread(ctx, event.UserID, event.PeerUserID)
	if err != nil {
		s.clearMarker(ctx, event.EventID)
		return false, fmt.Errorf("failed to read peer counter: %w", err)
	}

	totalUnread, err := s.store.TotalUnread(ctx, event.UserID)
	if err != nil {
		s.clearMarker(ctx, event.EventID)
		return false, fmt.Errorf("failed to read total counter: %w", err)
	}

	peerDelta := min(event.Delta, peerUnread)
	totalDelta := min(event.Delta, totalUnread)

	if err := s.store.DecrementUnread(ctx, event.UserID, event.PeerUserID, peerDelta, totalDelta, event.LastReadTS); err != nil {
		s.clearMarker(ctx, event.EventID)
		return false, fmt.Errorf("failed to decrement counters: %w", err)
	}

	return true, nil
}

// clearMarker rolls back the dedup gate after a failed apply so the retry is
// not mistaken for a duplicate. Best effort: if the delete fails the marker
// expires by TTL and the reconciler covers the gap.
func (s *ApplyService) clearMarker(ctx context.Context, eventID uuid.UUID) {
	if err := s.store.ClearEventSeen(ctx, eventID); err != nil {
		s.log.Warn("Failed to clear dedup marker",
			zap.String("event_id", eventID.String()),
			zap.Error(err),
		)
	}
}
