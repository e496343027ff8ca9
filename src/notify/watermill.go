package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"scientia/src/log"
)

// WatermillBus adapts a watermill publisher/subscriber pair to the Bus
// contract. Either side may be nil for publish-only or subscribe-only
// deployments (e.g. the worker publishes, the HTTP server subscribes).
type WatermillBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	closers    []func() error
}

func NewBus(publisher message.Publisher, subscriber message.Subscriber) *WatermillBus {
	return &WatermillBus{publisher: publisher, subscriber: subscriber}
}

// NewGoChannelBus builds an in-process bus. Used for single-process
// deployments and tests; the gochannel pubsub preserves publish order per
// topic and does not persist anything, which matches the no-replay contract.
func NewGoChannelBus(logger watermill.LoggerAdapter) *WatermillBus {
	ps := gochannel.NewGoChannel(gochannel.Config{}, logger)
	return &WatermillBus{
		publisher:  ps,
		subscriber: ps,
		closers:    []func() error{ps.Close},
	}
}

func (b *WatermillBus) Publish(channel string, event Event) error {
	if b.publisher == nil {
		return fmt.Errorf("bus is subscribe-only")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.publisher.Publish(channel, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *WatermillBus) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	if b.subscriber == nil {
		return nil, fmt.Errorf("bus is publish-only")
	}

	messages, err := b.subscriber.Subscribe(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.Error(err, "dropping undecodable event", "message_id", msg.UUID)
				msg.Ack()
				continue
			}
			select {
			case out <- event:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()

	return out, nil
}

func (b *WatermillBus) Close() error {
	var firstErr error
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
