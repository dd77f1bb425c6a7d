package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/storefront/checkout/internal/entity"
	"github.com/storefront/checkout/internal/repository"
)

type catalogStore struct {
	db *sql.DB
}

// NewCatalogStore creates a CatalogStore backed by Postgres.
func NewCatalogStore(db *sql.DB) repository.CatalogStore {
	return &catalogStore{db: db}
}

func (s *catalogStore) FindAll(ctx context.Context) ([]entity.Product, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, description, price, image_url, category, stock FROM products ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []entity.Product
	for rows.Next() {
		var p entity.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &p.Category, &p.Stock); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *catalogStore) FindByID(ctx context.Context, id string) (*entity.Product, error) {
	var p entity.Product
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, price, image_url, category, stock FROM products WHERE id = $1", id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &p.Category, &p.Stock)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product %s: %w", id, err)
	}
	return &p, nil
}

// DecrementStock is the load-bearing concurrency contract of the pipeline:
// the guard and the subtraction execute as one statement, so two concurrent
// orders for the last unit cannot both succeed.
func (s *catalogStore) DecrementStock(ctx context.Context, id string, qty int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1",
		qty, id,
	)
	if err != nil {
		return fmt.Errorf("failed to decrement stock for %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish an unknown product from one that ran dry.
		var exists bool
		err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check product %s: %w", id, err)
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrInsufficientStock
	}
	return nil
}

func (s *catalogStore) IncrementStock(ctx context.Context, id string, qty int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1 WHERE id = $2",
		qty, id,
	)
	if err != nil {
		return fmt.Errorf("failed to increment stock for %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *catalogStore) Seed(ctx context.Context, products []entity.Product) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil // already seeded
	}

	for _, p := range products {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO products (id, name, description, price, image_url, category, stock) VALUES ($1, $2, $3, $4, $5, $6, $7)",
			p.ID, p.Name, p.Description, p.Price, p.ImageURL, p.Category, p.Stock,
		)
		if err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.ID, err)
		}
	}
	return nil
}
