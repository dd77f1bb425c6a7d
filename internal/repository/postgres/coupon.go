package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/storefront/checkout/internal/entity"
	"github.com/storefront/checkout/internal/repository"
)

type couponStore struct {
	db *sql.DB
}

// NewCouponStore creates a CouponStore backed by Postgres.
func NewCouponStore(db *sql.DB) repository.CouponStore {
	return &couponStore{db: db}
}

func (s *couponStore) FindByCode(ctx context.Context, code string) (*entity.Coupon, error) {
	var (
		c          entity.Coupon
		usageLimit sql.NullInt64
		startsAt   sql.NullTime
		endsAt     sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, code, kind, value, is_active, starts_at, ends_at, min_subtotal, usage_limit, used_count FROM coupons WHERE code = $1",
		strings.ToUpper(strings.TrimSpace(code)),
	).Scan(&c.ID, &c.Code, &c.Kind, &c.Value, &c.IsActive, &startsAt, &endsAt, &c.MinSubtotal, &usageLimit, &c.UsedCount)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query coupon %s: %w", code, err)
	}

	if startsAt.Valid {
		t := startsAt.Time
		c.StartsAt = &t
	}
	if endsAt.Valid {
		t := endsAt.Time
		c.EndsAt = &t
	}
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		c.UsageLimit = &limit
	}
	return &c, nil
}

// IncrementUsage bumps used_count and enforces the usage limit in the same
// statement. Reading the count first and writing second would let two
// redemptions near the limit both pass; the conditional update cannot.
func (s *couponStore) IncrementUsage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE coupons SET used_count = used_count + 1 WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)",
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to increment coupon usage for %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check coupon %s: %w", id, err)
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrUsageExceeded
	}
	return nil
}

func (s *couponStore) DecrementUsage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE coupons SET used_count = used_count - 1 WHERE id = $1 AND used_count > 0",
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to decrement coupon usage for %s: %w", id, err)
	}
	return nil
}

func (s *couponStore) Seed(ctx context.Context, coupons []entity.Coupon) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM coupons").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil // already seeded
	}

	for _, c := range coupons {
		var usageLimit sql.NullInt64
		if c.UsageLimit != nil {
			usageLimit = sql.NullInt64{Int64: int64(*c.UsageLimit), Valid: true}
		}
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO coupons (id, code, kind, value, is_active, starts_at, ends_at, min_subtotal, usage_limit, used_count) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
			c.ID, strings.ToUpper(c.Code), c.Kind, c.Value, c.IsActive, c.StartsAt, c.EndsAt, c.MinSubtotal, usageLimit, c.UsedCount,
		)
		if err != nil {
			return fmt.Errorf("failed to seed coupon %s: %w", c.Code, err)
		}
	}
	return nil
}
