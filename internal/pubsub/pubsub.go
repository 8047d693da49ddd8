package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher defines the interface for publishing outbox messages
type Publisher interface {
	// Publish publishes a message to a topic
	Publish(ctx context.Context, topic string, msg *message.Message) error
	// Close closes the publisher
	Close() error
}

// Subscriber defines the interface for consuming outbox messages.
// It matches watermill's message.Subscriber so a PubSub can feed a router.
type Subscriber interface {
	// Subscribe starts consuming messages of a topic
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	// Close closes the subscriber
	Close() error
}

// PubSub combines both Publisher and Subscriber interfaces
type PubSub interface {
	Publisher
	Subscriber
}

type watermillPublisher struct {
	pub Publisher
}

// AsWatermillPublisher adapts a Publisher to watermill's message.Publisher,
// used where router middleware needs to republish
func AsWatermillPublisher(p Publisher) message.Publisher {
	return &watermillPublisher{pub: p}
}

func (w *watermillPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		ctx := msg.Context()
		if err := w.pub.Publish(ctx, topic, msg); err != nil {
			return err
		}
	}
	return nil
}

func (w *watermillPublisher) Close() error {
	return w.pub.Close()
}
