package service

import (
	"errors"
	"fmt"

	"github.com/storefront/checkout/internal/coupon"
)

var (
	// ErrEmptyCart rejects a checkout with no line items.
	ErrEmptyCart = errors.New("order must have at least one item")
	// ErrGuestContactRequired rejects a guest checkout without contact details.
	ErrGuestContactRequired = errors.New("guest checkout requires name and email")
	// ErrInvalidQuantity rejects a line item with a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// AddressError reports a missing required shipping address field.
type AddressError struct {
	Field string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("shipping address is missing %s", e.Field)
}

// ItemError ties an inventory failure to the line item that caused it, so
// the caller learns which product was out of stock or missing.
type ItemError struct {
	ProductID string
	Err       error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s: %v", e.ProductID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// CouponError reports a coupon rejection with its taxonomy reason.
type CouponError struct {
	Reason coupon.Reason
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("coupon rejected: %s", e.Reason)
}
