package domain

import "errors"

var (
	ErrInvalidSKU    = errors.New("invalid sku")
	ErrOutOfStock    = errors.New("out of stock")
	ErrBatchNotFound = errors.New("batch not found")
)
