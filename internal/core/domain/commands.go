package domain

import "time"

// Command is an instruction to change state. Each command kind has exactly
// one handler, keyed by CommandName.
type Command interface {
	CommandName() string
}

type CreateBatch struct {
	Ref string     `json:"ref"`
	SKU string     `json:"sku"`
	Qty int        `json:"qty"`
	ETA *time.Time `json:"eta,omitempty"`
}

func (CreateBatch) CommandName() string { return "create_batch" }

type Allocate struct {
	OrderID string `json:"orderid"`
	SKU     string `json:"sku"`
	Qty     int    `json:"qty"`
}

func (Allocate) CommandName() string { return "allocate" }

type ChangeBatchQuantity struct {
	Ref string `json:"batchref"`
	Qty int    `json:"qty"`
}

func (ChangeBatchQuantity) CommandName() string { return "change_batch_quantity" }
