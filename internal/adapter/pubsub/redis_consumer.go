package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/service"
)

// ChangeBatchQuantityChannel carries batch quantity corrections from the
// warehouse system.
const ChangeBatchQuantityChannel = "change_batch_quantity"

// RedisConsumer turns inbound pub/sub messages into commands on the bus.
type RedisConsumer struct {
	client *redis.Client
	bus    *service.MessageBus
	logger *zap.Logger
}

func NewRedisConsumer(client *redis.Client, bus *service.MessageBus, logger *zap.Logger) *RedisConsumer {
	return &RedisConsumer{client: client, bus: bus, logger: logger}
}

// Run subscribes to the change_batch_quantity channel and dispatches each
// message until the context is cancelled. A bad or failed message is
// logged and skipped; redeliveries are the publisher's concern.
func (c *RedisConsumer) Run(ctx context.Context) error {
	sub := c.client.Subscribe(ctx, ChangeBatchQuantityChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var cmd domain.ChangeBatchQuantity
			if err := json.Unmarshal([]byte(msg.Payload), &cmd); err != nil {
				c.logger.Error("bad change_batch_quantity payload",
					zap.String("payload", msg.Payload),
					zap.Error(err),
				)
				continue
			}
			if _, err := c.bus.Handle(ctx, cmd); err != nil {
				c.logger.Error("change_batch_quantity failed",
					zap.String("batchref", cmd.Ref),
					zap.Int("qty", cmd.Qty),
					zap.Error(err),
				)
			}
		}
	}
}
