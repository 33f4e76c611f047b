package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

type Balancer int

const (
	RoundRobin Balancer = iota
	Hash
)

const (
	RequireNone = sarama.NoResponse
	RequireOne  = sarama.WaitForLocal
	RequireAll  = sarama.WaitForAll
)

type Producer interface {
	PushMessage(ctx context.Context, key, value []byte, topic string) (partition int32, offset int64, err error)
	Close() error
}

type ProducerOption func(*sarama.Config)

func WithBalancer(balancer Balancer) ProducerOption {
	return func(cfg *sarama.Config) {
		switch balancer {
		case Hash:
			cfg.Producer.Partitioner = sarama.NewHashPartitioner
		default:
			cfg.Producer.Partitioner = sarama.NewRoundRobinPartitioner
		}
	}
}

func WithRequiredAcks(acks sarama.RequiredAcks) ProducerOption {
	return func(cfg *sarama.Config) {
		cfg.Producer.RequiredAcks = acks
	}
}

type SyncProducer struct {
	producer sarama.SyncProducer
}

func NewProducer(brokers []string, opts ...ProducerOption) (*SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	for _, opt := range opts {
		opt(cfg)
	}

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	return &SyncProducer{producer: producer}, nil
}

func (p *SyncProducer) PushMessage(ctx context.Context, key, value []byte, topic string) (partition int32, offset int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err = p.producer.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to send message: %w", err)
	}

	return partition, offset, nil
}

func (p *SyncProducer) Close() error {
	return p.producer.Close()
}
