package publish

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisPublisher publishes engine events to a Redis pub/sub channel named
// prefix + session id, one JSON document per event.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher connects to the given Redis address. The prefix
// namespaces channels, e.g. "minutes:" yields "minutes:<session>".
func NewRedisPublisher(addr, prefix string) *RedisPublisher {
	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	channel := p.prefix + ev.SessionID
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH %s: %w", channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
