// Package transport hides the delivery channel behind a single Publisher
// interface, so the relay stays unchanged when the deployment switches
// between direct HTTP delivery and a kafka broker.
package transport

import (
	"context"

	"counters-back/internal/model"
)

type Publisher interface {
	Publish(ctx context.Context, event model.OutboxEvent) error
}
