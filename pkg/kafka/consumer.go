package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
)

type BalanceStrategy string

const (
	RoundrobinBalanceStrategy BalanceStrategy = "roundrobin"
	RangeBalanceStrategy      BalanceStrategy = "range"
	StickyBalanceStrategy     BalanceStrategy = "sticky"
)

// MessageWithMarkFunc couples a consumed message with its acknowledgement.
// Calling Mark commits the offset; a message never marked is redelivered
// after a rebalance or restart.
type MessageWithMarkFunc struct {
	Message *sarama.ConsumerMessage
	Mark    func()
}

type ConsumerGroupRunner interface {
	Run()
	Messages() <-chan *MessageWithMarkFunc
	Info() <-chan string
	Shutdown() error
}

type ConsumerOption func(*sarama.Config)

func WithBalancerConsumer(strategy BalanceStrategy) ConsumerOption {
	return func(cfg *sarama.Config) {
		switch strategy {
		case StickyBalanceStrategy:
			cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
		case RangeBalanceStrategy:
			cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
		default:
			cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
		}
	}
}

type GroupRunner struct {
	group    sarama.ConsumerGroup
	topics   []string
	messages chan *MessageWithMarkFunc
	info     chan string
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewConsumerGroupRunner(brokers []string, groupID string, topics []string, bufferSize int, opts ...ConsumerOption) (*GroupRunner, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	for _, opt := range opts {
		opt(cfg)
	}

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &GroupRunner{
		group:    group,
		topics:   topics,
		messages: make(chan *MessageWithMarkFunc, bufferSize),
		info:     make(chan string, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Run blocks, rejoining the group after every rebalance until Shutdown.
func (r *GroupRunner) Run() {
	handler := &groupHandler{
		messages: r.messages,
		info:     r.info,
	}

	defer close(r.messages)
	defer close(r.info)

	for {
		if err := r.group.Consume(r.ctx, r.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
		}

		if r.ctx.Err() != nil {
			return
		}
	}
}

func (r *GroupRunner) Messages() <-chan *MessageWithMarkFunc {
	return r.messages
}

func (r *GroupRunner) Info() <-chan string {
	return r.info
}

func (r *GroupRunner) Shutdown() error {
	r.cancel()

	if err := r.group.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}

	return nil
}

type groupHandler struct {
	messages chan<- *MessageWithMarkFunc
	info     chan<- string
}

func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	select {
	case h.info <- fmt.Sprintf("consumer group up and running, member %s", session.MemberID()):
	default:
	}

	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.messages <- &MessageWithMarkFunc{
				Message: msg,
				Mark: func() {
					session.MarkMessage(msg, "")
				},
			}
		}
	}
}
