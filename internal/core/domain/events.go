package domain

// Event is a fact about something that already happened. Events accumulate
// on the aggregate during a transaction and are dispatched once after
// commit; any number of handlers may subscribe to an event name.
type Event interface {
	EventName() string
}

type Allocated struct {
	OrderID  string `json:"orderid"`
	SKU      string `json:"sku"`
	Qty      int    `json:"qty"`
	BatchRef string `json:"batchref"`
}

func (Allocated) EventName() string { return "line_allocated" }

type Deallocated struct {
	OrderID string `json:"orderid"`
	SKU     string `json:"sku"`
	Qty     int    `json:"qty"`
}

func (Deallocated) EventName() string { return "line_deallocated" }

type OutOfStock struct {
	SKU string `json:"sku"`
}

func (OutOfStock) EventName() string { return "out_of_stock" }
