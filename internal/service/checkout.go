package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefront/checkout/internal/coupon"
	"github.com/storefront/checkout/internal/entity"
	"github.com/storefront/checkout/internal/messaging"
	"github.com/storefront/checkout/internal/pricing"
	"github.com/storefront/checkout/internal/repository"
)

// TopicOrderCreated carries OrderCreated events for downstream consumers.
const TopicOrderCreated = "orders.created"

// CheckoutService turns a cart into a durable unpaid order: it validates
// the request, secures inventory, computes authoritative pricing and
// persists the snapshot.
type CheckoutService struct {
	catalog   repository.CatalogStore
	coupons   repository.CouponStore
	orders    repository.OrderStore
	carts     repository.CartStore
	publisher messaging.Publisher
	pricer    *pricing.Engine
	now       func() time.Time
}

func NewCheckoutService(
	catalog repository.CatalogStore,
	coupons repository.CouponStore,
	orders repository.OrderStore,
	carts repository.CartStore,
	publisher messaging.Publisher,
	pricer *pricing.Engine,
) *CheckoutService {
	return &CheckoutService{
		catalog:   catalog,
		coupons:   coupons,
		orders:    orders,
		carts:     carts,
		publisher: publisher,
		pricer:    pricer,
		now:       time.Now,
	}
}

// CreateOrderInput is a checkout submission. Authenticated users (UserID
// set) check out their server-side cart; guests submit explicit items and
// contact details. Submitted prices are never trusted either way.
type CreateOrderInput struct {
	UserID          string
	GuestContact    *entity.GuestContact
	Items           []entity.LineItem
	ShippingAddress entity.Address
	PaymentMethod   string
	CouponCode      string
}

// CreateOrder runs the checkout pipeline. Stock is decremented
// speculatively per item; any later failure issues compensating increments
// for everything already decremented in this request, so a failed checkout
// leaves no partial state. Multi-item carts are not cross-product-atomic:
// compensation, not a distributed transaction, is the contract here.
func (s *CheckoutService) CreateOrder(ctx context.Context, in CreateOrderInput) (*entity.Order, error) {
	if err := validateAddress(in.ShippingAddress); err != nil {
		return nil, err
	}
	if in.UserID == "" {
		if in.GuestContact == nil || in.GuestContact.Name == "" || in.GuestContact.Email == "" {
			return nil, ErrGuestContactRequired
		}
	}

	items, err := s.resolveItems(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Subtotal())
	}

	now := s.now()

	// Re-validate the coupon server-side. The client only ever submits a
	// code; eligibility and discount are decided here.
	var cpn *entity.Coupon
	if in.CouponCode != "" {
		cpn, err = s.coupons.FindByCode(ctx, in.CouponCode)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &CouponError{Reason: coupon.ReasonNotFound}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve coupon: %w", err)
		}
		if res := coupon.Validate(cpn, subtotal, now); !res.Applicable {
			return nil, &CouponError{Reason: res.Reason}
		}
	}

	// Secure inventory. Each decrement is atomic and conditional at the
	// store, so concurrent checkouts for the last unit cannot both pass.
	decremented, err := s.reserveStock(ctx, items)
	if err != nil {
		s.compensateStock(ctx, decremented)
		return nil, err
	}

	// Redeem the coupon. The conditional increment is the authoritative
	// usage-limit check; the Validate call above was only a pre-check.
	if cpn != nil {
		if err := s.coupons.IncrementUsage(ctx, cpn.ID); err != nil {
			s.compensateStock(ctx, decremented)
			if errors.Is(err, repository.ErrUsageExceeded) {
				return nil, &CouponError{Reason: coupon.ReasonUsageExceeded}
			}
			return nil, fmt.Errorf("failed to redeem coupon: %w", err)
		}
	}

	quote := s.pricer.Price(items, cpn, now)

	order := &entity.Order{
		ID:              uuid.New().String(),
		UserID:          in.UserID,
		GuestContact:    in.GuestContact,
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		Subtotal:        quote.Subtotal,
		DiscountAmount:  quote.Discount,
		TaxAmount:       quote.Tax,
		ShippingAmount:  quote.Shipping,
		TotalAmount:     quote.Total,
		CouponCode:      in.CouponCode,
		CreatedAt:       now,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.compensateStock(ctx, decremented)
		if cpn != nil {
			if derr := s.coupons.DecrementUsage(ctx, cpn.ID); derr != nil {
				slog.Error("Failed to compensate coupon usage", "coupon_id", cpn.ID, "err", derr)
			}
		}
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	// Best effort from here on: the order exists and is the source of truth.
	if in.UserID != "" {
		if err := s.carts.Clear(ctx, in.UserID); err != nil {
			slog.Error("Failed to clear cart after checkout", "user_id", in.UserID, "err", err)
		}
	}

	event := entity.OrderCreated{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Items:       order.Items,
		TotalAmount: order.TotalAmount,
		CreatedAt:   order.CreatedAt,
	}
	if err := s.publisher.PublishEvent(ctx, TopicOrderCreated, order.ID, event); err != nil {
		slog.Error("Failed to publish OrderCreated event", "order_id", order.ID, "err", err)
	}

	slog.Info("Order created", "order_id", order.ID, "total", order.TotalAmount, "items", len(order.Items))
	return order, nil
}

// ValidateCoupon is the public read path: it reports eligibility and the
// discount for a subtotal without redeeming anything.
func (s *CheckoutService) ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	cpn, err := s.coupons.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return decimal.Zero, &CouponError{Reason: coupon.ReasonNotFound}
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to resolve coupon: %w", err)
	}

	res := coupon.Validate(cpn, subtotal, s.now())
	if !res.Applicable {
		return decimal.Zero, &CouponError{Reason: res.Reason}
	}
	return res.Discount, nil
}

// resolveItems loads the line items for the checkout and snapshots their
// prices. Authenticated users check out the server-side cart, whose unit
// prices were snapshotted when the items were added. Guest items arrive
// explicitly and are priced from the catalog.
func (s *CheckoutService) resolveItems(ctx context.Context, in CreateOrderInput) ([]entity.LineItem, error) {
	if in.UserID != "" {
		items, err := s.carts.Get(ctx, in.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load cart: %w", err)
		}
		return items, nil
	}

	items := make([]entity.LineItem, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity < 1 {
			return nil, &ItemError{ProductID: it.ProductID, Err: ErrInvalidQuantity}
		}
		p, err := s.catalog.FindByID(ctx, it.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ItemError{ProductID: it.ProductID, Err: repository.ErrNotFound}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load product %s: %w", it.ProductID, err)
		}
		items = append(items, entity.LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
		})
	}
	return items, nil
}

// reserveStock decrements stock item by item and returns what it managed to
// decrement, whether or not it succeeded, so the caller can compensate.
func (s *CheckoutService) reserveStock(ctx context.Context, items []entity.LineItem) ([]entity.LineItem, error) {
	var decremented []entity.LineItem
	for _, it := range items {
		if it.Quantity < 1 {
			return decremented, &ItemError{ProductID: it.ProductID, Err: ErrInvalidQuantity}
		}
		if err := s.catalog.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInsufficientStock) {
				return decremented, &ItemError{ProductID: it.ProductID, Err: err}
			}
			return decremented, fmt.Errorf("failed to reserve stock for %s: %w", it.ProductID, err)
		}
		decremented = append(decremented, it)
	}
	return decremented, nil
}

// compensateStock returns previously decremented stock after a failed
// checkout. Failures here are logged and not surfaced; the original error
// matters more to the caller than the compensation's.
func (s *CheckoutService) compensateStock(ctx context.Context, decremented []entity.LineItem) {
	for _, it := range decremented {
		if err := s.catalog.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			slog.Error("Failed to compensate stock decrement", "product_id", it.ProductID, "qty", it.Quantity, "err", err)
		}
	}
}

func validateAddress(a entity.Address) error {
	switch {
	case a.Street == "":
		return &AddressError{Field: "street"}
	case a.City == "":
		return &AddressError{Field: "city"}
	case a.State == "":
		return &AddressError{Field: "state"}
	case a.Zip == "":
		return &AddressError{Field: "zip"}
	case a.Country == "":
		return &AddressError{Field: "country"}
	}
	return nil
}
