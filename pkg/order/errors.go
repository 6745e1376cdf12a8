package order

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownDirection     = errors.New("unknown order direction")
	ErrNegativeBuyAmount    = errors.New("negative amount for buy order")
	ErrMissingAmountRate    = errors.New("please provide amount and rate or buyAmount and sellAmount")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrConflictingDirection = errors.New("direction conflicts with token pair")
	ErrNoContractAddress    = errors.New("no contract address to hash the order with")
	ErrInvalidAddress       = errors.New("invalid address")
)

// ConstructionError reports order input that cannot be turned into a
// canonical order.
type ConstructionError struct {
	Err    error
	Detail string
}

func (e *ConstructionError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

func constructionErr(err error, format string, args ...any) *ConstructionError {
	return &ConstructionError{Err: err, Detail: fmt.Sprintf(format, args...)}
}
