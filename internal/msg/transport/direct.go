package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"counters-back/internal/apperrors"
	"counters-back/internal/model"
)

const (
	messageSentPath  = "/internal/events/message_sent"
	messagesReadPath = "/internal/events/messages_read"
)

// DirectPublisher posts event payloads straight to the consumer's internal
// HTTP endpoints. Meant for single-node deployments that run without a
// broker.
type DirectPublisher struct {
	client  *http.Client
	baseURL string
}

func NewDirectPublisher(baseURL string, timeout time.Duration) *DirectPublisher {
	return &DirectPublisher{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
	}
}

func (p *DirectPublisher) Publish(ctx context.Context, event model.OutboxEvent) error {
	var path string

	switch event.EventType {
	case model.EventTypeMessageSent:
		path = messageSentPath
	case model.EventTypeMessagesRead:
		path = messagesReadPath
	default:
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownEventType, event.EventType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(event.Payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	// 4xx means the consumer refused the payload itself: retrying cannot fix
	// it, so surface it as a permanent rejection.
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", apperrors.ErrEventRejected, resp.StatusCode)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("delivery failed with status %d", resp.StatusCode)
	}

	return nil
}
