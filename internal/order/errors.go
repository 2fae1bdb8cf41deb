package order

import (
	"errors"
	"fmt"

	"storefront/internal/customer"
	"storefront/internal/stock"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrTerminalState    = errors.New("order is cancelled or refunded")
	ErrInvalidState     = errors.New("order is not in a confirmable state")
	ErrEmptyOrder       = errors.New("order has no items")
	ErrUnknownVariant   = errors.New("order references unknown variants")
	ErrOrderNotEditable = errors.New("order can no longer be edited")
	ErrItemNotFound     = errors.New("order item not found")
)

// BusinessError is a rule violation the caller can act on, as opposed to an infrastructure failure.
type BusinessError struct {
	Kind error
	Msg  string
}

func (e *BusinessError) Error() string { return e.Msg }

func (e *BusinessError) Unwrap() error { return e.Kind }

func businessf(kind error, format string, args ...any) error {
	return &BusinessError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsBusiness reports whether err is a domain rejection rather than an infrastructure error.
func IsBusiness(err error) bool {
	var be *BusinessError
	if errors.As(err, &be) {
		return true
	}
	var ve *stock.ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, stock.ErrInvalidQuantity) || errors.Is(err, customer.ErrIncompleteIdentity)
}
