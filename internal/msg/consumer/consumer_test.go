package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"counters-back/internal/apperrors"
	"counters-back/internal/model"
)

type fakeApplier struct {
	sent []model.MessageSentEvent
	read []model.MessagesReadEvent
	err  error
}

func (a *fakeApplier) ApplyMessageSent(_ context.Context, event model.MessageSentEvent) (bool, error) {
	if a.err != nil {
		return false, a.err
	}

	a.sent = append(a.sent, event)

	return true, nil
}

func (a *fakeApplier) ApplyMessagesRead(_ context.Context, event model.MessagesReadEvent) (bool, error) {
	if a.err != nil {
		return false, a.err
	}

	a.read = append(a.read, event)

	return true, nil
}

func envelope(t *testing.T, eventType model.EventType, payload any) []byte {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	value, err := json.Marshal(model.EventEnvelope{
		EventID:   uuid.New(),
		EventType: eventType,
		Payload:   raw,
	})
	require.NoError(t, err)

	return value
}

func TestProcess_DispatchesMessageSent(t *testing.T) {
	applier := &fakeApplier{}
	sub := NewSubscriber(zap.NewNop(), "test", 1, nil, applier)

	event := model.MessageSentEvent{
		EventID:    uuid.New(),
		FromUserID: uuid.New(),
		ToUserID:   uuid.New(),
		MessageID:  uuid.New(),
	}

	require.NoError(t, sub.process(context.Background(), envelope(t, model.EventTypeMessageSent, event)))

	require.Len(t, applier.sent, 1)
	assert.Equal(t, event.EventID, applier.sent[0].EventID)
}

func TestProcess_DispatchesMessagesRead(t *testing.T) {
	applier := &fakeApplier{}
	sub := NewSubscriber(zap.NewNop(), "test", 1, nil, applier)

	event := model.MessagesReadEvent{
		EventID:    uuid.New(),
		UserID:     uuid.New(),
		PeerUserID: uuid.New(),
		Delta:      2,
		LastReadTS: time.Now().UTC(),
	}

	require.NoError(t, sub.process(context.Background(), envelope(t, model.EventTypeMessagesRead, event)))

	require.Len(t, applier.read, 1)
	assert.Equal(t, int64(2), applier.read[0].Delta)
}

func TestProcess_MalformedValue(t *testing.T) {
	sub := NewSubscriber(zap.NewNop(), "test", 1, nil, &fakeApplier{})

	err := sub.process(context.Background(), []byte("not json"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidEventPayload)
}

func TestProcess_UnknownEventType(t *testing.T) {
	sub := NewSubscriber(zap.NewNop(), "test", 1, nil, &fakeApplier{})

	value, err := json.Marshal(model.EventEnvelope{
		EventID:   uuid.New(),
		EventType: "message_deleted",
		Payload:   []byte(`{}`),
	})
	require.NoError(t, err)

	err = sub.process(context.Background(), value)
	assert.ErrorIs(t, err, apperrors.ErrUnknownEventType)
}

func TestProcess_PropagatesApplierError(t *testing.T) {
	applier := &fakeApplier{err: context.DeadlineExceeded}
	sub := NewSubscriber(zap.NewNop(), "test", 1, nil, applier)

	event := model.MessageSentEvent{
		EventID:    uuid.New(),
		FromUserID: uuid.New(),
		ToUserID:   uuid.New(),
	}

	err := sub.process(context.Background(), envelope(t, model.EventTypeMessageSent, event))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
