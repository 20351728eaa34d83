package port

import (
	"context"
	"errors"

	"github.com/rl1809/allocation/internal/core/domain"
)

var (
	// ErrConcurrentUpdate means another transaction committed a conflicting
	// change to the same product; the caller retries the whole command.
	ErrConcurrentUpdate = errors.New("concurrent update conflict")

	// ErrUnitOfWorkDone means Commit was called on a unit of work that has
	// already committed or rolled back.
	ErrUnitOfWorkDone = errors.New("unit of work already finished")
)

type ProductRepository interface {
	// Add registers a new product with the current transaction.
	Add(ctx context.Context, p *domain.Product) error

	// Get loads the whole aggregate for a SKU; nil when the SKU is unknown.
	Get(ctx context.Context, sku string) (*domain.Product, error)

	// GetByBatchRef resolves the product owning the batch reference; nil when absent.
	GetByBatchRef(ctx context.Context, ref string) (*domain.Product, error)
}

// UnitOfWork is a scoped transaction plus the repository handle valid only
// within that scope.
type UnitOfWork interface {
	Products() ProductRepository

	// Commit persists every aggregate touched through Products. At most one
	// commit succeeds per unit of work; a second attempt reports
	// ErrUnitOfWorkDone, a version conflict reports ErrConcurrentUpdate.
	Commit(ctx context.Context) error

	// Rollback discards uncommitted mutations. Safe to defer: after a
	// successful commit it is a no-op.
	Rollback() error

	// Events returns the pending events drained from every aggregate touched
	// in this unit of work. Only meaningful after a successful Commit.
	Events() []domain.Event
}

type UnitOfWorkStarter interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
