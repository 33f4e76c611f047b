// Package consumer runs the broker side of the pipeline: a consumer group
// pulls event envelopes off the topic and a worker pool applies them to the
// counter store.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"counters-back/internal/apperrors"
	"counters-back/internal/model"
	"counters-back/pkg/kafka"
)

const messagePipeSize = 1000

type Applier interface {
	ApplyMessageSent(ctx context.Context, event model.MessageSentEvent) (bool, error)
	ApplyMessagesRead(ctx context.Context, event model.MessagesReadEvent) (bool, error)
}

type Subscriber struct {
	log         *zap.Logger
	name        string
	workerCount int
	runner      kafka.ConsumerGroupRunner
	applier     Applier
	wg          sync.WaitGroup
}

func NewSubscriber(log *zap.Logger, name string, workerCount int, runner kafka.ConsumerGroupRunner, applier Applier) *Subscriber {
	return &Subscriber{
		log:         log,
		name:        name,
		workerCount: workerCount,
		runner:      runner,
		applier:     applier,
	}
}

// Run starts the consumer group and the worker pool and blocks until the
// context is cancelled. Offsets are only marked for events that were applied
// or are permanently unprocessable.
func (s *Subscriber) Run(ctx context.Context) {
	s.log.Info("Subscriber started",
		zap.String("name", s.name),
		zap.Int("workers", s.workerCount),
	)

	go s.runner.Run()

	go func() {
		for info := range s.runner.Info() {
			s.log.Info("Consumer group rebalanced", zap.String("info", info))
		}
	}()

	messagePipe := make(chan *kafka.MessageWithMarkFunc, messagePipeSize)

	for range s.workerCount {
		s.wg.Add(1)
		go s.worker(ctx, messagePipe)
	}

	for {
		select {
		case <-ctx.Done():
			close(messagePipe)
			s.wg.Wait()
			s.log.Info("Subscriber stopped", zap.String("name", s.name))
			return
		case msg, ok := <-s.runner.Messages():
			if !ok {
				close(messagePipe)
				s.wg.Wait()
				return
			}

			messagePipe <- msg
		}
	}
}

func (s *Subscriber) worker(ctx context.Context, pipe <-chan *kafka.MessageWithMarkFunc) {
	defer s.wg.Done()

	for msg := range pipe {
		err := s.process(ctx, msg.Message.Value)

		switch {
		case err == nil:
			msg.Mark()
		case errors.Is(err, apperrors.ErrInvalidEventPayload), errors.Is(err, apperrors.ErrUnknownEventType):
			// Redelivering a malformed event cannot fix it.
			s.log.Warn("Dropping unprocessable event",
				zap.ByteString("value", msg.Message.Value),
				zap.Error(err),
			)
			msg.Mark()
		default:
			// Transient failure: leave the offset unmarked so the event is
			// redelivered after the next rebalance.
			s.log.Error("Failed to apply event", zap.Error(err))
		}
	}
}

func (s *Subscriber) process(ctx context.Context, value []byte) error {
	var envelope model.EventEnvelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidEventPayload, err)
	}

	switch envelope.EventType {
	case model.EventTypeMessageSent:
		var event model.MessageSentEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return fmt.Errorf("%w: %s", apperrors.ErrInvalidEventPayload, err)
		}

		_, err := s.applier.ApplyMessageSent(ctx, event)

		return err
	case model.EventTypeMessagesRead:
		var event model.MessagesReadEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return fmt.Errorf("%w: %s", apperrors.ErrInvalidEventPayload, err)
		}

		_, err := s.applier.ApplyMessagesRead(ctx, event)

		return err
	default:
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownEventType, envelope.EventType)
	}
}

func (s *Subscriber) Stop() error {
	return s.runner.Shutdown()
}
