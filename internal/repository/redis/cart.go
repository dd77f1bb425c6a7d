// Package redis implements the ephemeral per-user cart on a Redis cache.
// Carts are session state, not durable data: a lost cart is an
// inconvenience, a lost order is not, so orders live in Postgres and carts
// live here.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/storefront/checkout/internal/entity"
	"github.com/storefront/checkout/internal/repository"
)

const cartTTL = 30 * 24 * time.Hour

type cartStore struct {
	client *goredis.Client
}

// NewCartStore creates a CartStore backed by Redis.
func NewCartStore(client *goredis.Client) repository.CartStore {
	return &cartStore{client: client}
}

func cartKey(userID string) string {
	return "cart:" + userID
}

func (s *cartStore) Get(ctx context.Context, userID string) ([]entity.LineItem, error) {
	raw, err := s.client.Get(ctx, cartKey(userID)).Result()
	if err == goredis.Nil {
		return nil, nil // no cart is an empty cart
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart for %s: %w", userID, err)
	}

	var items []entity.LineItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to decode cart for %s: %w", userID, err)
	}
	return items, nil
}

func (s *cartStore) Set(ctx context.Context, userID string, items []entity.LineItem) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode cart for %s: %w", userID, err)
	}
	if err := s.client.Set(ctx, cartKey(userID), payload, cartTTL).Err(); err != nil {
		return fmt.Errorf("failed to set cart for %s: %w", userID, err)
	}
	return nil
}

// Clear deletes the cart key. Deleting an absent key is a no-op, which makes
// the post-checkout clear safe to retry.
func (s *cartStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart for %s: %w", userID, err)
	}
	return nil
}
