package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

// MemoryStore is an in-process product store with the same optimistic
// semantics as the MySQL adapter. Units of work operate on deep copies, so
// uncommitted mutation never leaks into the store or into other readers.
type MemoryStore struct {
	mu       sync.Mutex
	products map[string]*domain.Product
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[string]*domain.Product)}
}

func (s *MemoryStore) Begin(ctx context.Context) (port.UnitOfWork, error) {
	return &memoryUnitOfWork{
		store: s,
		repo: &memoryProductRepository{
			store:          s,
			seen:           make(map[string]*domain.Product),
			loadedVersions: make(map[string]int),
		},
	}, nil
}

// Get returns a snapshot of the stored aggregate, for test assertions.
func (s *MemoryStore) Get(sku string) (*domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[sku]
	if !ok {
		return nil, false
	}
	return cloneProduct(p), true
}

type memoryUnitOfWork struct {
	store  *MemoryStore
	repo   *memoryProductRepository
	done   bool
	events []domain.Event
}

func (u *memoryUnitOfWork) Products() port.ProductRepository { return u.repo }

func (u *memoryUnitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return port.ErrUnitOfWorkDone
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	for sku, loaded := range u.repo.loadedVersions {
		current, ok := u.store.products[sku]
		if loaded == newProductVersion {
			// a product Add'ed here must still be unseen at commit time
			if ok {
				return port.ErrConcurrentUpdate
			}
			continue
		}
		if !ok || current.Version != loaded {
			return port.ErrConcurrentUpdate
		}
	}
	for sku, product := range u.repo.seen {
		u.store.products[sku] = cloneProduct(product)
	}
	u.done = true

	for _, product := range u.repo.seen {
		u.events = append(u.events, product.PullEvents()...)
	}
	return nil
}

func (u *memoryUnitOfWork) Rollback() error {
	u.done = true
	return nil
}

func (u *memoryUnitOfWork) Events() []domain.Event { return u.events }

type memoryProductRepository struct {
	store          *MemoryStore
	seen           map[string]*domain.Product
	loadedVersions map[string]int
}

func (r *memoryProductRepository) Add(ctx context.Context, p *domain.Product) error {
	r.seen[p.SKU] = p
	r.loadedVersions[p.SKU] = newProductVersion
	return nil
}

func (r *memoryProductRepository) Get(ctx context.Context, sku string) (*domain.Product, error) {
	if p, ok := r.seen[sku]; ok {
		return p, nil
	}

	r.store.mu.Lock()
	stored, ok := r.store.products[sku]
	r.store.mu.Unlock()
	if !ok {
		return nil, nil
	}

	p := cloneProduct(stored)
	r.seen[sku] = p
	r.loadedVersions[sku] = p.Version
	return p, nil
}

func (r *memoryProductRepository) GetByBatchRef(ctx context.Context, ref string) (*domain.Product, error) {
	for _, p := range r.seen {
		for _, b := range p.Batches {
			if b.Reference == ref {
				return p, nil
			}
		}
	}

	r.store.mu.Lock()
	sku := ""
	for _, p := range r.store.products {
		for _, b := range p.Batches {
			if b.Reference == ref {
				sku = p.SKU
			}
		}
	}
	r.store.mu.Unlock()
	if sku == "" {
		return nil, nil
	}
	return r.Get(ctx, sku)
}

func cloneProduct(p *domain.Product) *domain.Product {
	batches := make([]*domain.Batch, 0, len(p.Batches))
	for _, b := range p.Batches {
		var eta *time.Time
		if b.ETA != nil {
			t := *b.ETA
			eta = &t
		}
		batches = append(batches, domain.RehydrateBatch(b.Reference, b.SKU, b.PurchasedQty(), eta, b.Allocations()))
	}
	clone := domain.NewProduct(p.SKU, batches...)
	clone.Version = p.Version
	return clone
}
