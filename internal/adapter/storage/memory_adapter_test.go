package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

func TestMemoryUnitOfWork_CommitPersistsAndDrainsEvents(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)

	product := domain.NewProduct("SKU-1", domain.NewBatch("batch-001", "SKU-1", 10, nil))
	require.NoError(t, uow.Products().Add(ctx, product))
	_, err = product.Allocate(domain.OrderLine{OrderID: "o1", SKU: "SKU-1", Qty: 2})
	require.NoError(t, err)

	require.NoError(t, uow.Commit(ctx))

	assert.Equal(t, []domain.Event{
		domain.Allocated{OrderID: "o1", SKU: "SKU-1", Qty: 2, BatchRef: "batch-001"},
	}, uow.Events())

	stored, ok := store.Get("SKU-1")
	require.True(t, ok)
	assert.Equal(t, 8, stored.Batches[0].AvailableQty())
	assert.Equal(t, 1, stored.Version)
}

func TestMemoryUnitOfWork_RollbackDiscardsMutation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seed(t, store, "SKU-1", domain.NewBatch("batch-001", "SKU-1", 10, nil))

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	product, err := uow.Products().Get(ctx, "SKU-1")
	require.NoError(t, err)
	_, err = product.Allocate(domain.OrderLine{OrderID: "o1", SKU: "SKU-1", Qty: 2})
	require.NoError(t, err)
	require.NoError(t, uow.Rollback())

	stored, _ := store.Get("SKU-1")
	assert.Equal(t, 10, stored.Batches[0].AvailableQty())
	assert.Empty(t, uow.Events())
}

func TestMemoryUnitOfWork_SecondCommitFails(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Commit(ctx))

	assert.ErrorIs(t, uow.Commit(ctx), port.ErrUnitOfWorkDone)
}

func TestMemoryUnitOfWork_CommitAfterRollbackFails(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Rollback())

	assert.ErrorIs(t, uow.Commit(ctx), port.ErrUnitOfWorkDone)
}

func TestMemoryUnitOfWork_ConcurrentCommitConflicts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seed(t, store, "RED-CHAIR", domain.NewBatch("batch-001", "RED-CHAIR", 10, nil))

	uow1, err := store.Begin(ctx)
	require.NoError(t, err)
	uow2, err := store.Begin(ctx)
	require.NoError(t, err)

	p1, err := uow1.Products().Get(ctx, "RED-CHAIR")
	require.NoError(t, err)
	p2, err := uow2.Products().Get(ctx, "RED-CHAIR")
	require.NoError(t, err)

	_, err = p1.Allocate(domain.OrderLine{OrderID: "o1", SKU: "RED-CHAIR", Qty: 1})
	require.NoError(t, err)
	_, err = p2.Allocate(domain.OrderLine{OrderID: "o2", SKU: "RED-CHAIR", Qty: 1})
	require.NoError(t, err)

	require.NoError(t, uow1.Commit(ctx))
	assert.ErrorIs(t, uow2.Commit(ctx), port.ErrConcurrentUpdate)

	stored, _ := store.Get("RED-CHAIR")
	assert.Equal(t, 9, stored.Batches[0].AvailableQty(), "losing commit is not visible")
}

func TestMemoryUnitOfWork_StaleAllocateConflictsWithShrink(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seed(t, store, "NARROW-BENCH", domain.NewBatch("batch-001", "NARROW-BENCH", 20, nil))

	stale, err := store.Begin(ctx)
	require.NoError(t, err)
	staleProduct, err := stale.Products().Get(ctx, "NARROW-BENCH")
	require.NoError(t, err)

	shrink, err := store.Begin(ctx)
	require.NoError(t, err)
	shrinkProduct, err := shrink.Products().Get(ctx, "NARROW-BENCH")
	require.NoError(t, err)
	require.NoError(t, shrinkProduct.ChangeBatchQuantity("batch-001", 3))
	require.NoError(t, shrink.Commit(ctx))

	_, err = staleProduct.Allocate(domain.OrderLine{OrderID: "o1", SKU: "NARROW-BENCH", Qty: 5})
	require.NoError(t, err)
	assert.ErrorIs(t, stale.Commit(ctx), port.ErrConcurrentUpdate)

	stored, _ := store.Get("NARROW-BENCH")
	assert.Equal(t, 3, stored.Batches[0].PurchasedQty(), "committed shrink must survive the stale commit")
	assert.Empty(t, stored.Batches[0].Allocations())
}

func TestMemoryUnitOfWork_ConcurrentCreateConflicts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	uow1, err := store.Begin(ctx)
	require.NoError(t, err)
	uow2, err := store.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, uow1.Products().Add(ctx, domain.NewProduct("NEW-SKU", domain.NewBatch("batch-a", "NEW-SKU", 10, nil))))
	require.NoError(t, uow2.Products().Add(ctx, domain.NewProduct("NEW-SKU", domain.NewBatch("batch-b", "NEW-SKU", 10, nil))))

	require.NoError(t, uow1.Commit(ctx))
	assert.ErrorIs(t, uow2.Commit(ctx), port.ErrConcurrentUpdate)

	stored, ok := store.Get("NEW-SKU")
	require.True(t, ok)
	require.Len(t, stored.Batches, 1)
	assert.Equal(t, "batch-a", stored.Batches[0].Reference, "first commit's batch must survive")
}

func TestMemoryRepository_GetByBatchRef(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seed(t, store, "SKU-1", domain.NewBatch("batch-001", "SKU-1", 10, nil))

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	product, err := uow.Products().GetByBatchRef(ctx, "batch-001")
	require.NoError(t, err)
	require.NotNil(t, product)
	assert.Equal(t, "SKU-1", product.SKU)

	missing, err := uow.Products().GetByBatchRef(ctx, "no-such-batch")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func seed(t *testing.T, store *MemoryStore, sku string, batches ...*domain.Batch) {
	t.Helper()
	ctx := context.Background()
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Products().Add(ctx, domain.NewProduct(sku, batches...)))
	require.NoError(t, uow.Commit(ctx))
}
