package notification

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher publishes a payload on a pub/sub channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisNotifier publishes alerts as JSON on a Redis pub/sub channel.
// Nothing is stored; subscribers only see messages while connected.
type RedisNotifier struct {
	pub     Publisher
	channel string
}

// NewRedisNotifier creates a pub/sub notifier.
func NewRedisNotifier(pub Publisher, channel string) *RedisNotifier {
	return &RedisNotifier{pub: pub, channel: channel}
}

func (r *RedisNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("%w: redis: marshal: %v", ErrTransport, err)
	}
	if err := r.pub.Publish(ctx, r.channel, body); err != nil {
		return fmt.Errorf("%w: redis: publish %s: %v", ErrTransport, r.channel, err)
	}
	return nil
}
