package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/timeline/internal/kafka"
	"github.com/flexprice/timeline/internal/logger"
	"github.com/flexprice/timeline/internal/pubsub"
)

type PubSub struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	logger   *logger.Logger
}

// NewPubSub creates a new kafka-based pubsub
func NewPubSub(
	logger *logger.Logger,
	producer *kafka.Producer,
	consumer *kafka.Consumer,
) pubsub.PubSub {
	return &PubSub{
		producer: producer,
		consumer: consumer,
		logger:   logger,
	}
}

func (p *PubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	msg.SetContext(ctx)
	return p.producer.Publish(topic, msg)
}

func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.consumer.Subscribe(ctx, topic)
}

func (p *PubSub) Close() error {
	if err := p.producer.Close(); err != nil {
		p.logger.Errorw("failed to close kafka producer", "error", err)
	}
	return p.consumer.Close()
}
