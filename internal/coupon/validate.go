// Package coupon decides whether a coupon applies to a subtotal and what
// discount it yields. It is pure: eligibility depends only on the coupon,
// the subtotal and the supplied clock reading.
package coupon

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/checkout/internal/entity"
)

// Reason explains why a coupon was rejected.
type Reason string

const (
	ReasonNotFound      Reason = "not_found"
	ReasonInactive      Reason = "inactive"
	ReasonNotYetActive  Reason = "not_yet_active"
	ReasonExpired       Reason = "expired"
	ReasonUsageExceeded Reason = "usage_exceeded"
	ReasonBelowMinimum  Reason = "below_minimum"
	ReasonNotApplicable Reason = "not_applicable"
)

// Result is the outcome of validating a coupon against a subtotal.
type Result struct {
	Applicable bool
	Discount   decimal.Decimal
	Reason     Reason
}

var oneHundred = decimal.NewFromInt(100)

func rejected(r Reason) Result {
	return Result{Discount: decimal.Zero, Reason: r}
}

// Validate checks a coupon's eligibility against a subtotal at the given
// instant. Checks short-circuit in a fixed order so every rejection carries
// the first failing reason. A nil coupon means the code did not resolve.
//
// Usage-limit eligibility here is only a pre-check: enforcement under
// concurrent redemptions happens at the coupon store, whose usage increment
// is an atomic conditional operation.
func Validate(c *entity.Coupon, subtotal decimal.Decimal, now time.Time) Result {
	if c == nil {
		return rejected(ReasonNotFound)
	}
	if !c.IsActive {
		return rejected(ReasonInactive)
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return rejected(ReasonNotYetActive)
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return rejected(ReasonExpired)
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return rejected(ReasonUsageExceeded)
	}
	if subtotal.LessThan(c.MinSubtotal) {
		return rejected(ReasonBelowMinimum)
	}

	discount := computeDiscount(c, subtotal)
	if discount.LessThanOrEqual(decimal.Zero) {
		// A coupon that passes eligibility but yields nothing is not
		// silently accepted as valid.
		return rejected(ReasonNotApplicable)
	}
	return Result{Applicable: true, Discount: discount}
}

// computeDiscount applies the coupon's kind to the subtotal. The result is
// rounded half-up to the smallest currency unit and never exceeds the
// subtotal for fixed coupons.
func computeDiscount(c *entity.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.Kind {
	case entity.CouponPercent:
		discount = subtotal.Mul(c.Value).Div(oneHundred).Round(2)
	case entity.CouponFixed:
		discount = c.Value.Round(2)
		if discount.GreaterThan(subtotal) {
			discount = subtotal
		}
	default:
		return decimal.Zero
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}
