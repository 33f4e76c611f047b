package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
)

type fakeConsumerGroup struct {
	consumeErr error
}

func (g *fakeConsumerGroup) Consume(_ context.Context, _ []string, _ sarama.ConsumerGroupHandler) error {
	return g.consumeErr
}

func (g *fakeConsumerGroup) Errors() <-chan error { return nil }

func (g *fakeConsumerGroup) Close() error { return nil }

func (g *fakeConsumerGroup) Pause(map[string][]int32) {}

func (g *fakeConsumerGroup) Resume(map[string][]int32) {}

func (g *fakeConsumerGroup) PauseAll() {}

func (g *fakeConsumerGroup) ResumeAll() {}

// Consumers range over both channels; if either stays open after the group
// shuts down, their drain goroutines leak.
func TestGroupRunner_ClosesChannelsOnExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &GroupRunner{
		group:    &fakeConsumerGroup{consumeErr: sarama.ErrClosedConsumerGroup},
		topics:   []string{"events"},
		messages: make(chan *MessageWithMarkFunc, 1),
		info:     make(chan string, 1),
		ctx:      ctx,
		cancel:   cancel,
	}

	done := make(chan struct{})

	go func() {
		r.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not exit")
	}

	_, msgOpen := <-r.Messages()
	assert.False(t, msgOpen)

	_, infoOpen := <-r.Info()
	assert.False(t, infoOpen)
}
