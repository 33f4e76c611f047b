package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"counters-back/internal/apperrors"
	"counters-back/internal/model"
)

func TestDirectPublisher_RoutesByEventType(t *testing.T) {
	var (
		gotPath string
		gotBody []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pub := NewDirectPublisher(srv.URL, time.Second)

	payload := []byte(`{"event_id":"x"}`)

	err := pub.Publish(context.Background(), model.OutboxEvent{
		ID:        uuid.New(),
		EventType: model.EventTypeMessageSent,
		Payload:   payload,
	})
	require.NoError(t, err)
	assert.Equal(t, "/internal/events/message_sent", gotPath)
	assert.Equal(t, payload, gotBody)

	err = pub.Publish(context.Background(), model.OutboxEvent{
		ID:        uuid.New(),
		EventType: model.EventTypeMessagesRead,
		Payload:   payload,
	})
	require.NoError(t, err)
	assert.Equal(t, "/internal/events/messages_read", gotPath)
}

func TestDirectPublisher_ServerFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pub := NewDirectPublisher(srv.URL, time.Second)

	err := pub.Publish(context.Background(), model.OutboxEvent{
		ID:        uuid.New(),
		EventType: model.EventTypeMessageSent,
		Payload:   []byte(`{}`),
	})
	require.Error(t, err)
	// 5xx is the consumer being down, not refusing the payload
	assert.NotErrorIs(t, err, apperrors.ErrEventRejected)
}

func TestDirectPublisher_ClientErrorIsPermanentRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	pub := NewDirectPublisher(srv.URL, time.Second)

	err := pub.Publish(context.Background(), model.OutboxEvent{
		ID:        uuid.New(),
		EventType: model.EventTypeMessageSent,
		Payload:   []byte(`{"delta":-1}`),
	})
	assert.ErrorIs(t, err, apperrors.ErrEventRejected)
}

func TestDirectPublisher_UnknownEventType(t *testing.T) {
	pub := NewDirectPublisher("http://localhost:0", time.Second)

	err := pub.Publish(context.Background(), model.OutboxEvent{
		ID:        uuid.New(),
		EventType: "message_deleted",
		Payload:   []byte(`{}`),
	})
	assert.ErrorIs(t, err, apperrors.ErrUnknownEventType)
}
