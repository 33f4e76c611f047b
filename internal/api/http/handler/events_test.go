package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"counters-back/internal/apperrors"
	"counters-back/internal/model"
)

type fakeApplier struct {
	applied bool
	err     error
}

func (a *fakeApplier) ApplyMessageSent(_ context.Context, _ model.MessageSentEvent) (bool, error) {
	return a.applied, a.err
}

func (a *fakeApplier) ApplyMessagesRead(_ context.Context, _ model.MessagesReadEvent) (bool, error) {
	return a.applied, a.err
}

func eventsRouter(applier *fakeApplier) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := NewEventHandler(zap.NewNop(), applier)

	router := gin.New()
	router.POST("/internal/events/message_sent", h.MessageSent)
	router.POST("/internal/events/messages_read", h.MessagesRead)

	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func TestMessageSent_Applied(t *testing.T) {
	router := eventsRouter(&fakeApplier{applied: true})

	rec := postJSON(t, router, "/internal/events/message_sent", model.MessageSentEvent{
		EventID:    uuid.New(),
		FromUserID: uuid.New(),
		ToUserID:   uuid.New(),
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"applied":true`)
}

func TestMessageSent_Duplicate(t *testing.T) {
	router := eventsRouter(&fakeApplier{applied: false})

	rec := postJSON(t, router, "/internal/events/message_sent", model.MessageSentEvent{
		EventID:    uuid.New(),
		FromUserID: uuid.New(),
		ToUserID:   uuid.New(),
	})

	// duplicates are acknowledged so the relay marks the event done
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"applied":false`)
}

func TestMessageSent_InvalidPayload(t *testing.T) {
	router := eventsRouter(&fakeApplier{err: apperrors.ErrInvalidEventPayload})

	rec := postJSON(t, router, "/internal/events/message_sent", model.MessageSentEvent{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagesRead_TransientFailure(t *testing.T) {
	router := eventsRouter(&fakeApplier{err: errors.New("redis down")})

	rec := postJSON(t, router, "/internal/events/messages_read", model.MessagesReadEvent{
		EventID:    uuid.New(),
		UserID:     uuid.New(),
		PeerUserID: uuid.New(),
		Delta:      1,
	})

	// 5xx tells the relay to keep the event pending and retry
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMessagesRead_MalformedJSON(t *testing.T) {
	router := eventsRouter(&fakeApplier{applied: true})

	req := httptest.NewRequest(http.MethodPost, "/internal/events/messages_read", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
