package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/storefront/checkout/internal/entity"
	"github.com/storefront/checkout/internal/repository"
)

const decrementSQL = `UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`

func TestDecrementStock_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	s := NewCatalogStore(db)

	mock.ExpectExec(regexp.QuoteMeta(decrementSQL)).
		WithArgs(2, "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.DecrementStock(context.Background(), "p1", 2); err != nil {
		t.Fatalf("DecrementStock failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDecrementStock_Insufficient(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewCatalogStore(db)

	// The guard clause matched no row; the product exists, so the stock
	// could not cover the quantity.
	mock.ExpectExec(regexp.QuoteMeta(decrementSQL)).
		WithArgs(3, "p1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := s.DecrementStock(context.Background(), "p1", 3)
	if !errors.Is(err, repository.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDecrementStock_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewCatalogStore(db)

	mock.ExpectExec(regexp.QuoteMeta(decrementSQL)).
		WithArgs(1, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := s.DecrementStock(context.Background(), "ghost", 1)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementStock(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewCatalogStore(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET stock = stock + $1 WHERE id = $2`)).
		WithArgs(2, "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.IncrementStock(context.Background(), "p1", 2); err != nil {
		t.Fatalf("IncrementStock failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

const incrementUsageSQL = `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

func TestIncrementUsage_Success(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewCouponStore(db)

	mock.ExpectExec(regexp.QuoteMeta(incrementUsageSQL)).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.IncrementUsage(context.Background(), "c1"); err != nil {
		t.Fatalf("IncrementUsage failed: %v", err)
	}
}

func TestIncrementUsage_Exhausted(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewCouponStore(db)

	mock.ExpectExec(regexp.QuoteMeta(incrementUsageSQL)).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := s.IncrementUsage(context.Background(), "c1")
	if !errors.Is(err, repository.ErrUsageExceeded) {
		t.Fatalf("expected ErrUsageExceeded, got %v", err)
	}
}

func TestFindByCode_CanonicalizesCode(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewCouponStore(db)

	rows := sqlmock.NewRows([]string{"id", "code", "kind", "value", "is_active", "starts_at", "ends_at", "min_subtotal", "usage_limit", "used_count"}).
		AddRow("c1", "SAVE10", "percent", "10", true, nil, nil, "0", nil, 0)

	// Lookup is case-insensitive: the code is uppercased and trimmed
	// before it reaches the database.
	mock.ExpectQuery("SELECT id, code, kind, value, is_active, starts_at, ends_at, min_subtotal, usage_limit, used_count FROM coupons WHERE code = \\$1").
		WithArgs("SAVE10").
		WillReturnRows(rows)

	c, err := s.FindByCode(context.Background(), "  save10 ")
	if err != nil {
		t.Fatalf("FindByCode failed: %v", err)
	}
	if c.Code != "SAVE10" {
		t.Fatalf("expected code SAVE10, got %s", c.Code)
	}
	if c.UsageLimit != nil {
		t.Fatalf("expected nil usage limit, got %v", *c.UsageLimit)
	}
}

const markPaidSQL = `UPDATE orders SET is_paid = TRUE, paid_at = $2, transaction_id = $3, payment_status = $4, payer_email = $5 WHERE id = $1 AND is_paid = FALSE`

func TestMarkPaid_Success(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewOrderStore(db)
	paidAt := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	res := entity.PaymentResult{TransactionID: "1089250", Status: "COMPLETE", Email: "buyer@example.com"}

	mock.ExpectExec(regexp.QuoteMeta(markPaidSQL)).
		WithArgs("o1", paidAt, "1089250", "COMPLETE", "buyer@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkPaid(context.Background(), "o1", res, paidAt); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
}

func TestMarkPaid_AlreadyPaid(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewOrderStore(db)
	paidAt := time.Now()

	// The CAS matched no row because is_paid was already true.
	mock.ExpectExec(regexp.QuoteMeta(markPaidSQL)).
		WithArgs("o1", paidAt, "tx", "COMPLETE", "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`)).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := s.MarkPaid(context.Background(), "o1", entity.PaymentResult{TransactionID: "tx", Status: "COMPLETE"}, paidAt)
	if !errors.Is(err, repository.ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
}

func TestCreateOrderTransaction(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewOrderStore(db)
	o := &entity.Order{
		ID:     "o1",
		UserID: "u1",
		Items: []entity.LineItem{
			{ProductID: "p1", Name: "Lamp", UnitPrice: decimal.RequireFromString("89.99"), Quantity: 2},
		},
		ShippingAddress: entity.Address{Street: "1 Main Rd", City: "Cape Town", State: "WC", Zip: "8001", Country: "ZA"},
		PaymentMethod:   "payfast",
		Subtotal:        decimal.RequireFromString("179.98"),
		DiscountAmount:  decimal.Zero,
		TaxAmount:       decimal.RequireFromString("27.00"),
		ShippingAmount:  decimal.RequireFromString("50"),
		TotalAmount:     decimal.RequireFromString("256.98"),
		CreatedAt:       time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := s.Create(context.Background(), o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateOrderRollsBackOnItemFailure(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	s := NewOrderStore(db)
	o := &entity.Order{
		ID:              "o1",
		Items:           []entity.LineItem{{ProductID: "p1", Name: "Lamp", UnitPrice: decimal.NewFromInt(10), Quantity: 1}},
		ShippingAddress: entity.Address{Street: "s", City: "c", State: "st", Zip: "z", Country: "ZA"},
		CreatedAt:       time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	if err := s.Create(context.Background(), o); err == nil {
		t.Fatalf("expected error from item insert")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
