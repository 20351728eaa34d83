package domain

import "time"

// OrderLine is a customer's request to reserve a quantity of a SKU.
// It is a value object: two lines with identical fields are the same line.
type OrderLine struct {
	OrderID string `json:"order_id"`
	SKU     string `json:"sku"`
	Qty     int    `json:"qty"`
}

// Batch is a discrete lot of stock for one SKU. A nil ETA means the batch
// is already in the warehouse.
type Batch struct {
	Reference string
	SKU       string
	ETA       *time.Time

	purchasedQty int
	allocations  map[OrderLine]struct{}
	order        []OrderLine // allocation insertion order, for deterministic deallocation
}

func NewBatch(ref, sku string, qty int, eta *time.Time) *Batch {
	return &Batch{
		Reference:    ref,
		SKU:          sku,
		ETA:          eta,
		purchasedQty: qty,
		allocations:  make(map[OrderLine]struct{}),
	}
}

// RehydrateBatch rebuilds a batch from persisted state without re-running
// allocation guards. Storage adapters only.
func RehydrateBatch(ref, sku string, qty int, eta *time.Time, lines []OrderLine) *Batch {
	b := NewBatch(ref, sku, qty, eta)
	for _, line := range lines {
		if _, ok := b.allocations[line]; ok {
			continue
		}
		b.allocations[line] = struct{}{}
		b.order = append(b.order, line)
	}
	return b
}

// Allocate records the line against this batch. Allocating a line that is
// already recorded, has the wrong SKU, or does not fit is a no-op.
func (b *Batch) Allocate(line OrderLine) {
	if !b.CanAllocate(line) {
		return
	}
	if _, ok := b.allocations[line]; ok {
		return
	}
	b.allocations[line] = struct{}{}
	b.order = append(b.order, line)
}

// Deallocate removes the line if present, no-op otherwise.
func (b *Batch) Deallocate(line OrderLine) {
	if _, ok := b.allocations[line]; !ok {
		return
	}
	delete(b.allocations, line)
	for i, l := range b.order {
		if l == line {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *Batch) CanAllocate(line OrderLine) bool {
	return b.SKU == line.SKU && b.AvailableQty() >= line.Qty
}

func (b *Batch) PurchasedQty() int { return b.purchasedQty }

func (b *Batch) AllocatedQty() int {
	total := 0
	for line := range b.allocations {
		total += line.Qty
	}
	return total
}

func (b *Batch) AvailableQty() int { return b.purchasedQty - b.AllocatedQty() }

// Allocations returns the allocated lines in insertion order.
func (b *Batch) Allocations() []OrderLine {
	out := make([]OrderLine, len(b.order))
	copy(out, b.order)
	return out
}

// earlierThan is the allocation priority: in-warehouse before any dated
// batch, then earlier ETA first.
func (b *Batch) earlierThan(other *Batch) bool {
	switch {
	case b.ETA == nil && other.ETA == nil:
		return false
	case b.ETA == nil:
		return true
	case other.ETA == nil:
		return false
	default:
		return b.ETA.Before(*other.ETA)
	}
}
