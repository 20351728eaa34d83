package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

// NewBus wires every command and event handler onto a message bus. This is
// the one place the command-to-handler mapping is defined.
func NewBus(uow port.UnitOfWorkStarter, notifier port.Notifier, publisher port.EventPublisher, alertEmail string, logger *zap.Logger) (*MessageBus, error) {
	h := NewHandlers(uow, notifier, publisher, alertEmail)
	bus := NewMessageBus(logger)

	commands := map[string]CommandHandler{
		domain.CreateBatch{}.CommandName(): func(ctx context.Context, cmd domain.Command) (string, []domain.Event, error) {
			c, ok := cmd.(domain.CreateBatch)
			if !ok {
				return "", nil, fmt.Errorf("unexpected command type %T", cmd)
			}
			events, err := h.AddBatch(ctx, c)
			return "", events, err
		},
		domain.Allocate{}.CommandName(): func(ctx context.Context, cmd domain.Command) (string, []domain.Event, error) {
			c, ok := cmd.(domain.Allocate)
			if !ok {
				return "", nil, fmt.Errorf("unexpected command type %T", cmd)
			}
			return h.Allocate(ctx, c)
		},
		domain.ChangeBatchQuantity{}.CommandName(): func(ctx context.Context, cmd domain.Command) (string, []domain.Event, error) {
			c, ok := cmd.(domain.ChangeBatchQuantity)
			if !ok {
				return "", nil, fmt.Errorf("unexpected command type %T", cmd)
			}
			events, err := h.ChangeBatchQuantity(ctx, c)
			return "", events, err
		},
	}
	for name, handler := range commands {
		if err := bus.RegisterCommand(name, handler); err != nil {
			return nil, err
		}
	}

	bus.Subscribe(domain.OutOfStock{}.EventName(), func(ctx context.Context, event domain.Event) ([]domain.Event, error) {
		e, ok := event.(domain.OutOfStock)
		if !ok {
			return nil, fmt.Errorf("unexpected event type %T", event)
		}
		return nil, h.SendOutOfStockNotification(ctx, e)
	})
	bus.Subscribe(domain.Allocated{}.EventName(), func(ctx context.Context, event domain.Event) ([]domain.Event, error) {
		e, ok := event.(domain.Allocated)
		if !ok {
			return nil, fmt.Errorf("unexpected event type %T", event)
		}
		return nil, h.PublishAllocated(ctx, e)
	})

	return bus, nil
}
