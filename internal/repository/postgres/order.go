package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/storefront/checkout/internal/entity"
	"github.com/storefront/checkout/internal/repository"
)

type orderStore struct {
	db *sql.DB
}

// NewOrderStore creates an OrderStore backed by Postgres.
func NewOrderStore(db *sql.DB) repository.OrderStore {
	return &orderStore{db: db}
}

func (s *orderStore) Create(ctx context.Context, o *entity.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var guestName, guestEmail, guestPhone string
	if o.GuestContact != nil {
		guestName = o.GuestContact.Name
		guestEmail = o.GuestContact.Email
		guestPhone = o.GuestContact.Phone
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, guest_name, guest_email, guest_phone,
			street, city, state, zip, country, payment_method,
			subtotal, discount_amount, tax_amount, shipping_amount, total_amount,
			coupon_code, is_paid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, FALSE, $18)`,
		o.ID, o.UserID, guestName, guestEmail, guestPhone,
		o.ShippingAddress.Street, o.ShippingAddress.City, o.ShippingAddress.State,
		o.ShippingAddress.Zip, o.ShippingAddress.Country, o.PaymentMethod,
		o.Subtotal, o.DiscountAmount, o.TaxAmount, o.ShippingAmount, o.TotalAmount,
		o.CouponCode, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, product_id, name, unit_price, quantity) VALUES ($1, $2, $3, $4, $5)",
			o.ID, item.ProductID, item.Name, item.UnitPrice, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *orderStore) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	var (
		o          entity.Order
		guest      entity.GuestContact
		paidAt     sql.NullTime
		txID       string
		payStatus  string
		payerEmail string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, guest_name, guest_email, guest_phone,
			street, city, state, zip, country, payment_method,
			subtotal, discount_amount, tax_amount, shipping_amount, total_amount,
			coupon_code, is_paid, paid_at, transaction_id, payment_status, payer_email, created_at
		FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.UserID, &guest.Name, &guest.Email, &guest.Phone,
		&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.State,
		&o.ShippingAddress.Zip, &o.ShippingAddress.Country, &o.PaymentMethod,
		&o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.ShippingAmount, &o.TotalAmount,
		&o.CouponCode, &o.IsPaid, &paidAt, &txID, &payStatus, &payerEmail, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order %s: %w", id, err)
	}

	if guest != (entity.GuestContact{}) {
		o.GuestContact = &guest
	}
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
		o.PaymentResult = &entity.PaymentResult{
			TransactionID: txID,
			Status:        payStatus,
			Email:         payerEmail,
			NotifiedAt:    t,
		}
	}

	items, err := s.findItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (s *orderStore) findItems(ctx context.Context, orderID string) ([]entity.LineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT product_id, name, unit_price, quantity FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []entity.LineItem
	for rows.Next() {
		var item entity.LineItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *orderStore) FindRecent(ctx context.Context, limit int) ([]entity.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, subtotal, discount_amount, tax_amount, shipping_amount, total_amount, is_paid, created_at FROM orders ORDER BY created_at DESC LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []entity.Order
	for rows.Next() {
		var o entity.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.ShippingAmount, &o.TotalAmount, &o.IsPaid, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// MarkPaid applies the unpaid-to-paid transition as a compare-and-set: the
// WHERE clause only matches while the order is unpaid, so a redelivered
// notification updates zero rows instead of double-crediting.
func (s *orderStore) MarkPaid(ctx context.Context, id string, res entity.PaymentResult, paidAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE orders SET is_paid = TRUE, paid_at = $2, transaction_id = $3, payment_status = $4, payer_email = $5 WHERE id = $1 AND is_paid = FALSE",
		id, paidAt, res.TransactionID, res.Status, res.Email,
	)
	if err != nil {
		return fmt.Errorf("failed to mark order %s paid: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check order %s: %w", id, err)
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrAlreadyPaid
	}
	return nil
}
