package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

// Handlers bind commands and events to domain operations. Command handlers
// open a unit of work, mutate one aggregate and commit; event handlers call
// outbound adapters and never touch the originating aggregate.
type Handlers struct {
	uow        port.UnitOfWorkStarter
	notifier   port.Notifier
	publisher  port.EventPublisher
	alertEmail string
}

func NewHandlers(uow port.UnitOfWorkStarter, notifier port.Notifier, publisher port.EventPublisher, alertEmail string) *Handlers {
	return &Handlers{
		uow:        uow,
		notifier:   notifier,
		publisher:  publisher,
		alertEmail: alertEmail,
	}
}

// AddBatch appends a new batch to the SKU's product, creating the product
// on first sight of the SKU.
func (h *Handlers) AddBatch(ctx context.Context, cmd domain.CreateBatch) ([]domain.Event, error) {
	uow, err := h.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	product, err := uow.Products().Get(ctx, cmd.SKU)
	if err != nil {
		return nil, err
	}
	if product == nil {
		product = domain.NewProduct(cmd.SKU)
		if err := uow.Products().Add(ctx, product); err != nil {
			return nil, err
		}
	}
	product.AddBatch(domain.NewBatch(cmd.Ref, cmd.SKU, cmd.Qty, cmd.ETA))

	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return uow.Events(), nil
}

// Allocate assigns the order line to a batch of its SKU and returns the
// batch reference. Out of stock still commits: nothing was mutated and the
// recorded event is the only durable trace of the failed attempt.
func (h *Handlers) Allocate(ctx context.Context, cmd domain.Allocate) (string, []domain.Event, error) {
	line := domain.OrderLine{OrderID: cmd.OrderID, SKU: cmd.SKU, Qty: cmd.Qty}

	uow, err := h.uow.Begin(ctx)
	if err != nil {
		return "", nil, err
	}
	defer uow.Rollback()

	product, err := uow.Products().Get(ctx, cmd.SKU)
	if err != nil {
		return "", nil, err
	}
	if product == nil {
		return "", nil, fmt.Errorf("%w: %s", domain.ErrInvalidSKU, cmd.SKU)
	}

	batchRef, allocErr := product.Allocate(line)
	if allocErr != nil && !errors.Is(allocErr, domain.ErrOutOfStock) {
		return "", nil, allocErr
	}

	if err := uow.Commit(ctx); err != nil {
		return "", nil, err
	}
	return batchRef, uow.Events(), allocErr
}

// ChangeBatchQuantity shrinks or grows a batch and commits the
// deallocate/re-allocate cascade the aggregate ran.
func (h *Handlers) ChangeBatchQuantity(ctx context.Context, cmd domain.ChangeBatchQuantity) ([]domain.Event, error) {
	uow, err := h.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	product, err := uow.Products().GetByBatchRef(ctx, cmd.Ref)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrBatchNotFound, cmd.Ref)
	}
	if err := product.ChangeBatchQuantity(cmd.Ref, cmd.Qty); err != nil {
		return nil, err
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return uow.Events(), nil
}

func (h *Handlers) SendOutOfStockNotification(ctx context.Context, event domain.OutOfStock) error {
	return h.notifier.Send(ctx, h.alertEmail, fmt.Sprintf("Out of stock for %s", event.SKU))
}

func (h *Handlers) PublishAllocated(ctx context.Context, event domain.Allocated) error {
	return h.publisher.Publish(ctx, event.EventName(), event)
}
