package repository

import (
	"context"
	"errors"
	"time"

	"github.com/storefront/checkout/internal/entity"
)

var (
	// ErrNotFound is returned when a looked-up entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is returned by a conditional stock decrement
	// when the remaining stock cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUsageExceeded is returned by a conditional usage increment when
	// the coupon's usage limit has been reached.
	ErrUsageExceeded = errors.New("coupon usage limit exceeded")
	// ErrAlreadyPaid is returned by MarkPaid when the order has already
	// transitioned to paid.
	ErrAlreadyPaid = errors.New("order already paid")
)

// CatalogStore handles persistence for products. Stock is the shared
// mutable resource of the checkout pipeline: it is only ever mutated
// through the atomic conditional operations below, never read-modify-write.
type CatalogStore interface {
	FindAll(ctx context.Context) ([]entity.Product, error)
	FindByID(ctx context.Context, id string) (*entity.Product, error)
	// DecrementStock atomically subtracts qty only if the current stock
	// covers it, as one storage-level operation. Returns
	// ErrInsufficientStock when it does not, ErrNotFound for an unknown
	// product.
	DecrementStock(ctx context.Context, id string, qty int) error
	// IncrementStock returns previously decremented stock. Used as the
	// compensating action when a later step of the same checkout fails.
	IncrementStock(ctx context.Context, id string, qty int) error
	Seed(ctx context.Context, products []entity.Product) error
}

// CouponStore handles persistence for coupons. Lookups are case-insensitive
// on the code.
type CouponStore interface {
	FindByCode(ctx context.Context, code string) (*entity.Coupon, error)
	// IncrementUsage atomically bumps used_count only while it is below
	// the usage limit, as one storage-level operation. This closes the
	// check-then-increment race between concurrent redemptions near the
	// limit. Returns ErrUsageExceeded when the limit has been reached.
	IncrementUsage(ctx context.Context, id string) error
	// DecrementUsage undoes a redemption when order persistence fails
	// after the usage counter was already bumped.
	DecrementUsage(ctx context.Context, id string) error
	Seed(ctx context.Context, coupons []entity.Coupon) error
}

// OrderStore handles persistence for orders.
type OrderStore interface {
	Create(ctx context.Context, o *entity.Order) error
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	FindRecent(ctx context.Context, limit int) ([]entity.Order, error)
	// MarkPaid performs the single allowed unpaid-to-paid transition as an
	// atomic compare-and-set: the update applies only if the order is
	// currently unpaid. Returns ErrAlreadyPaid when it is not, so
	// redelivered gateway notifications are safe without extra state.
	MarkPaid(ctx context.Context, id string, res entity.PaymentResult, paidAt time.Time) error
}

// CartStore is the ephemeral per-user cart. Clearing is idempotent;
// clearing an absent cart is a no-op.
type CartStore interface {
	Get(ctx context.Context, userID string) ([]entity.LineItem, error)
	Set(ctx context.Context, userID string, items []entity.LineItem) error
	Clear(ctx context.Context, userID string) error
}
