package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"counters-back/internal/apperrors"
	"counters-back/internal/model"
	"counters-back/internal/repository"
)

type CounterReader interface {
	Counters(ctx context.Context, userID uuid.UUID) (*model.CounterState, error)
	PeerUnread(ctx context.Context, userID, peerID uuid.UUID) (int64, error)
	LastRead(ctx context.Context, userID, peerID uuid.UUID) (time.Time, error)
}

type OutboxWriter interface {
	InsertEvent(ctx context.Context, ext repository.RepoExtension, event model.OutboxEvent) error
}

// CounterService serves the counter read model and records mark-read intents
// through the outbox.
type CounterService struct {
	log    *zap.Logger
	store  CounterReader
	outbox OutboxWriter
}

func NewCounterService(log *zap.Logger, store CounterReader, outbox OutboxWriter) *CounterService {
	return &CounterService{
		log:    log,
		store:  store,
		outbox: outbox,
	}
}

func (s *CounterService) GetCounters(ctx context.Context, userID uuid.UUID) (*model.CounterState, error) {
	if userID == uuid.Nil {
		return nil, apperrors.ErrEmptyUserID
	}

	return s.store.Counters(ctx, userID)
}

func (s *CounterService) GetPeerCounter(ctx context.Context, userID, peerID uuid.UUID) (*model.PeerCounter, error) {
	if userID == uuid.Nil || peerID == uuid.Nil {
		return nil, apperrors.ErrEmptyUserID
	}

	unread, err := s.store.PeerUnread(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}

	lastRead, err := s.store.LastRead(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}

	return &model.PeerCounter{
		UserID:     userID,
		PeerUserID: peerID,
		Unread:     unread,
		LastReadTS: lastRead,
	}, nil
}

// MarkRead records a messages_read event in the outbox. When the caller does
// not supply a positive delta, the delta is pinned to the current per-peer
// unread count at emission time, so a stale snapshot on the client cannot
// over-decrement.
func (s *CounterService) MarkRead(ctx context.Context, req model.MarkReadRequest) (*model.MarkReadResponse, error) {
	if req.UserID == uuid.Nil || req.PeerUserID == uuid.Nil {
		return nil, apperrors.ErrEmptyUserID
	}

	if req.UserID == req.PeerUserID {
		return nil, apperrors.ErrSamePeer
	}

	delta := req.Delta
	if delta <= 0 {
		current, err := s.store.PeerUnread(ctx, req.UserID, req.PeerUserID)
		if err != nil {
			return nil, fmt.Errorf("failed to read peer counter: %w", err)
		}

		delta = current
	}

	lastRead := req.LastReadTS
	if lastRead.IsZero() {
		lastRead = time.Now().UTC()
	}

	eventID := uuid.New()
	if req.IdempotencyKey != "" {
		eventID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.IdempotencyKey))
	}

	payload, err := json.Marshal(model.MessagesReadEvent{
		EventID:    eventID,
		UserID:     req.UserID,
		PeerUserID: req.PeerUserID,
		Delta:      delta,
		LastReadTS: lastRead,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	event := model.OutboxEvent{
		ID:        eventID,
		EventType: model.EventTypeMessagesRead,
		Payload:   payload,
	}

	if err := s.outbox.InsertEvent(ctx, nil, event); err != nil {
		return nil, fmt.Errorf("failed to insert outbox event: %w", err)
	}

	s.log.Debug("Mark-read recorded",
		zap.String("event_id", eventID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.Int64("delta", delta),
	)

	return &model.MarkReadResponse{
		Applied: true,
		EventID: eventID,
	}, nil
}
