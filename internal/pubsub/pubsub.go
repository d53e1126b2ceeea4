package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher publishes messages to a named topic
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
	Close() error
}

// Subscriber consumes messages from a named topic.
// Its method set matches watermill's message.Subscriber.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

// PubSub combines both Publisher and Subscriber interfaces
type PubSub interface {
	Publisher
	Subscriber
}

// WatermillPublisher adapts a Publisher to watermill's message.Publisher,
// used by the router's poison queue.
func WatermillPublisher(p Publisher) message.Publisher {
	return &watermillPublisher{p}
}

type watermillPublisher struct {
	Publisher
}

func (w *watermillPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		if err := w.Publisher.Publish(msg.Context(), topic, msg); err != nil {
			return err
		}
	}
	return nil
}
