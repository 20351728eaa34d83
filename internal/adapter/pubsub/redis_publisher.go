package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/allocation/internal/core/domain"
)

// envelope is the wire form of a published event.
type envelope struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	OccurredAt time.Time    `json:"occurred_at"`
	Payload    domain.Event `json:"payload"`
}

// RedisPublisher broadcasts domain events on Redis pub/sub channels.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, event domain.Event) error {
	payload, err := json.Marshal(envelope{
		ID:         uuid.New().String(),
		Name:       event.EventName(),
		OccurredAt: time.Now().UTC(),
		Payload:    event,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
