// Package pricing computes the authoritative order totals from line items
// and an optional coupon. It is the single place totals are computed; client
// submitted amounts are never trusted.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/checkout/internal/coupon"
	"github.com/storefront/checkout/internal/entity"
)

// Config holds the store-wide pricing constants.
type Config struct {
	// TaxRate is applied to the discounted subtotal, e.g. 0.15 for 15%.
	TaxRate decimal.Decimal
	// FreeShippingThreshold waives shipping when the discounted subtotal
	// strictly exceeds it.
	FreeShippingThreshold decimal.Decimal
	// ShippingFee is the flat fee charged below the threshold.
	ShippingFee decimal.Decimal
}

// Quote is the full pricing breakdown for a set of line items.
type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// Engine prices carts. Zero-value engines are not usable; construct with New.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Price computes subtotal, discount, tax, shipping and total for the items.
// A nil or inapplicable coupon contributes a zero discount. Tax rounding is
// half-up to the smallest currency unit and applied once on the discounted
// subtotal, not per line, so no per-item drift accumulates. Shipping waiver
// is decided on the post-discount amount. The total is never negative: the
// discount is capped at the subtotal before tax and shipping.
func (e *Engine) Price(items []entity.LineItem, c *entity.Coupon, now time.Time) Quote {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Subtotal())
	}

	discount := decimal.Zero
	if c != nil {
		if res := coupon.Validate(c, subtotal, now); res.Applicable {
			discount = res.Discount
		}
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	discounted := subtotal.Sub(discount)
	tax := discounted.Mul(e.cfg.TaxRate).Round(2)

	shipping := e.cfg.ShippingFee
	if discounted.GreaterThan(e.cfg.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return Quote{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    discounted.Add(tax).Add(shipping),
	}
}
