package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the store catalog.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
}

// LineItem is a priced line within a cart or an order. Once embedded in an
// order the unit price and quantity are frozen; later catalog price changes
// never touch it.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Subtotal returns unit price times quantity for this line.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Address is a shipping address. All fields are required at checkout.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// GuestContact identifies a guest buyer when there is no authenticated user.
type GuestContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CouponKind distinguishes percentage coupons from fixed-amount ones.
type CouponKind string

const (
	CouponPercent CouponKind = "percent"
	CouponFixed   CouponKind = "fixed"
)

// Coupon is a discount code. Codes are canonically uppercase; lookups are
// case-insensitive. A nil UsageLimit means unlimited redemptions.
type Coupon struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Kind        CouponKind      `json:"kind"`
	Value       decimal.Decimal `json:"value"`
	IsActive    bool            `json:"is_active"`
	StartsAt    *time.Time      `json:"starts_at,omitempty"`
	EndsAt      *time.Time      `json:"ends_at,omitempty"`
	MinSubtotal decimal.Decimal `json:"min_subtotal"`
	UsageLimit  *int            `json:"usage_limit,omitempty"`
	UsedCount   int             `json:"used_count"`
}

// PaymentResult records the gateway's view of a completed transaction.
type PaymentResult struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	Email         string    `json:"email,omitempty"`
	NotifiedAt    time.Time `json:"notified_at"`
}

// Order is a priced, immutable snapshot of a cart at checkout time. It is
// created unpaid and transitions to paid exactly once, via reconciliation.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id,omitempty"` // empty for guest checkout
	GuestContact    *GuestContact   `json:"guest_contact,omitempty"`
	Items           []LineItem      `json:"items"`
	ShippingAddress Address         `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	ShippingAmount  decimal.Decimal `json:"shipping_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	IsPaid          bool            `json:"is_paid"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	PaymentResult   *PaymentResult  `json:"payment_result,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// --- Events ---

// OrderCreated is emitted when an order is persisted in the unpaid state.
type OrderCreated struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id,omitempty"`
	Items       []LineItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (e OrderCreated) EventType() string { return "OrderCreated" }

// OrderPaid is emitted when a gateway notification reconciles an order.
type OrderPaid struct {
	OrderID       string          `json:"order_id"`
	TransactionID string          `json:"transaction_id"`
	AmountGross   decimal.Decimal `json:"amount_gross"`
	PaidAt        time.Time       `json:"paid_at"`
}

func (e OrderPaid) EventType() string { return "OrderPaid" }

// Event is implemented by all domain events published to the broker.
type Event interface {
	EventType() string
}
