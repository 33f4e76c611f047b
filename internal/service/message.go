package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"counters-back/internal/apperrors"
	"counters-back/internal/model"
	"counters-back/internal/repository"
)

type MessageLogRepo interface {
	Pool() *pgxpool.Pool
	InsertMessage(ctx context.Context, ext repository.RepoExtension, message *model.Message) error
}

// MessageService appends to the message log and records the matching
// message_sent event in the same transaction. Either both land or neither
// does, so the log and the outbox cannot disagree.
type MessageService struct {
	log      *zap.Logger
	messages MessageLogRepo
	outbox   OutboxWriter
}

func NewMessageService(log *zap.Logger, messages MessageLogRepo, outbox OutboxWriter) *MessageService {
	return &MessageService{
		log:      log,
		messages: messages,
		outbox:   outbox,
	}
}

func (s *MessageService) Send(ctx context.Context, req model.SendMessageRequest) (*model.Message, error) {
	if req.FromUserID == uuid.Nil || req.ToUserID == uuid.Nil {
		return nil, apperrors.ErrEmptyUserID
	}

	if req.FromUserID == req.ToUserID {
		return nil, apperrors.ErrSamePeer
	}

	if strings.TrimSpace(req.Text) == "" {
		return nil, apperrors.ErrEmptyMessageText
	}

	message := &model.Message{
		ID:              uuid.New(),
		ConversationKey: model.ConversationKey(req.FromUserID, req.ToUserID),
		FromUserID:      req.FromUserID,
		ToUserID:        req.ToUserID,
		Text:            req.Text,
	}

	eventID := uuid.New()

	payload, err := json.Marshal(model.MessageSentEvent{
		EventID:    eventID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		MessageID:  message.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	tx, err := s.messages.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := s.messages.InsertMessage(ctx, tx, message); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	event := model.OutboxEvent{
		ID:        eventID,
		EventType: model.EventTypeMessageSent,
		Payload:   payload,
	}

	if err := s.outbox.InsertEvent(ctx, tx, event); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to insert outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug("Message stored",
		zap.String("message_id", message.ID.String()),
		zap.String("event_id", eventID.String()),
	)

	return message, nil
}
