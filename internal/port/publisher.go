package port

import (
	"context"

	"github.com/rl1809/allocation/internal/core/domain"
)

// EventPublisher broadcasts a domain event to external subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, event domain.Event) error
}
