package cache

import (
	"context"

	"portfolioalerts/internal/logger"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NotificationsChannel carries NotificationEvent payloads from the price
// processor to every API instance.
const NotificationsChannel = "notification_events"

// Publish publishes a message to a Redis channel
func (c *Cache) Publish(ctx context.Context, channel, message string) error {
	return c.client.Publish(ctx, channel, message).Err()
}

// Subscriber represents a subscription to a Redis channel
type Subscriber struct {
	pubsub *redis.PubSub
}

// Subscribe opens a subscription and waits for Redis to confirm it.
func (c *Cache) Subscribe(ctx context.Context, channel string) (*Subscriber, error) {
	pubsub := c.client.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.Wrapf(err, "subscribe to %s", channel)
	}

	logger.Log.Info("Subscribed to Redis channel", zap.String("channel", channel))
	return &Subscriber{pubsub: pubsub}, nil
}

// ReceiveMessage waits for and returns the next message payload
func (s *Subscriber) ReceiveMessage(ctx context.Context) (string, error) {
	msg, err := s.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return "", err
	}
	return msg.Payload, nil
}

// Close closes the subscription
func (s *Subscriber) Close() error {
	return s.pubsub.Close()
}
