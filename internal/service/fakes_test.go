package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/storefront/checkout/internal/entity"
	"github.com/storefront/checkout/internal/repository"
)

// ---- in-memory fakes implementing the repository interfaces ----

type memCatalog struct {
	mu       sync.Mutex
	products map[string]*entity.Product
}

func newMemCatalog(products ...entity.Product) *memCatalog {
	m := &memCatalog{products: make(map[string]*entity.Product)}
	for i := range products {
		p := products[i]
		m.products[p.ID] = &p
	}
	return m
}

func (m *memCatalog) FindAll(ctx context.Context) ([]entity.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Product
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memCatalog) FindByID(ctx context.Context, id string) (*entity.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memCatalog) DecrementStock(ctx context.Context, id string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Stock < qty {
		return repository.ErrInsufficientStock
	}
	p.Stock -= qty
	return nil
}

func (m *memCatalog) IncrementStock(ctx context.Context, id string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Stock += qty
	return nil
}

func (m *memCatalog) Seed(ctx context.Context, products []entity.Product) error { return nil }

func (m *memCatalog) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

type memCoupons struct {
	mu      sync.Mutex
	coupons map[string]*entity.Coupon // keyed by id
}

func newMemCoupons(coupons ...entity.Coupon) *memCoupons {
	m := &memCoupons{coupons: make(map[string]*entity.Coupon)}
	for i := range coupons {
		c := coupons[i]
		m.coupons[c.ID] = &c
	}
	return m
}

func (m *memCoupons) FindByCode(ctx context.Context, code string) (*entity.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.coupons {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memCoupons) IncrementUsage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok {
		return repository.ErrNotFound
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return repository.ErrUsageExceeded
	}
	c.UsedCount++
	return nil
}

func (m *memCoupons) DecrementUsage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.coupons[id]; ok && c.UsedCount > 0 {
		c.UsedCount--
	}
	return nil
}

func (m *memCoupons) Seed(ctx context.Context, coupons []entity.Coupon) error { return nil }

func (m *memCoupons) usedCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coupons[id].UsedCount
}

type memOrders struct {
	mu        sync.Mutex
	orders    map[string]*entity.Order
	createErr error
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*entity.Order)}
}

func (m *memOrders) Create(ctx context.Context, o *entity.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrders) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) FindRecent(ctx context.Context, limit int) ([]entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *memOrders) MarkPaid(ctx context.Context, id string, res entity.PaymentResult, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	if o.IsPaid {
		return repository.ErrAlreadyPaid
	}
	o.IsPaid = true
	o.PaidAt = &paidAt
	o.PaymentResult = &res
	return nil
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type memCarts struct {
	mu    sync.Mutex
	carts map[string][]entity.LineItem
}

func newMemCarts() *memCarts {
	return &memCarts{carts: make(map[string][]entity.LineItem)}
}

func (m *memCarts) Get(ctx context.Context, userID string) ([]entity.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.carts[userID], nil
}

func (m *memCarts) Set(ctx context.Context, userID string, items []entity.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[userID] = items
	return nil
}

func (m *memCarts) Clear(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

type publishedEvent struct {
	topic string
	key   string
	event any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	fail   bool
}

func (f *fakePublisher) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.events = append(f.events, publishedEvent{topic: topic, key: key, event: event})
	return nil
}

func (f *fakePublisher) published() []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedEvent{}, f.events...)
}
