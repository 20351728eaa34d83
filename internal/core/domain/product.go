package domain

import "fmt"

// Product is the aggregate root for one SKU. All batches of a SKU are
// loaded and mutated together; Version is the optimistic-concurrency token
// checked by the repository at commit time.
type Product struct {
	SKU     string
	Batches []*Batch
	Version int

	events []Event
}

func NewProduct(sku string, batches ...*Batch) *Product {
	return &Product{SKU: sku, Batches: batches}
}

func (p *Product) AddBatch(b *Batch) {
	p.Batches = append(p.Batches, b)
}

// Allocate assigns the line to the highest-priority batch that can hold it
// and returns that batch's reference. When no batch fits, it records an
// OutOfStock event and returns ErrOutOfStock with nothing mutated.
func (p *Product) Allocate(line OrderLine) (string, error) {
	if line.SKU != p.SKU {
		return "", fmt.Errorf("%w: line %s against product %s", ErrInvalidSKU, line.SKU, p.SKU)
	}

	var best *Batch
	for _, b := range p.Batches {
		if !b.CanAllocate(line) {
			continue
		}
		if best == nil || b.earlierThan(best) {
			best = b
		}
	}
	if best == nil {
		p.events = append(p.events, OutOfStock{SKU: p.SKU})
		return "", fmt.Errorf("%w: %s", ErrOutOfStock, p.SKU)
	}

	best.Allocate(line)
	p.Version++
	p.events = append(p.events, Allocated{
		OrderID:  line.OrderID,
		SKU:      line.SKU,
		Qty:      line.Qty,
		BatchRef: best.Reference,
	})
	return best.Reference, nil
}

// ChangeBatchQuantity sets the batch's purchased quantity and reconciles:
// while the batch is over-allocated, the most recently allocated line is
// deallocated and re-allocated across the whole product. Every displaced
// line either lands on another batch or leaves an OutOfStock record.
func (p *Product) ChangeBatchQuantity(ref string, qty int) error {
	var batch *Batch
	for _, b := range p.Batches {
		if b.Reference == ref {
			batch = b
			break
		}
	}
	if batch == nil {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, ref)
	}

	batch.purchasedQty = qty
	// every mutation bumps the version: commit guards the whole rewrite with it
	p.Version++
	for batch.AvailableQty() < 0 && len(batch.order) > 0 {
		line := batch.order[len(batch.order)-1]
		batch.Deallocate(line)
		p.events = append(p.events, Deallocated{
			OrderID: line.OrderID,
			SKU:     line.SKU,
			Qty:     line.Qty,
		})
		// may land on a different batch, or record OutOfStock
		p.Allocate(line)
	}
	return nil
}

// PullEvents drains the pending events accumulated by domain operations.
// The unit of work calls this after a successful commit.
func (p *Product) PullEvents() []Event {
	events := p.events
	p.events = nil
	return events
}
