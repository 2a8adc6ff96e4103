package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shop/internal/adapter/storage"
	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/port"
)

// Mock CacheRepository
type mockCacheRepo struct {
	mu      sync.Mutex
	entries map[string]int64
	failSet bool
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{entries: make(map[string]int64)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSet {
		return false, errors.New("cache down")
	}
	if _, ok := m.entries[key]; ok {
		return false, nil
	}
	m.entries[key] = 0
	return true, nil
}

func (m *mockCacheRepo) CompleteIdempotency(ctx context.Context, key string, orderID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = orderID
	return nil
}

func (m *mockCacheRepo) GetIdempotency(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Mock EventPublisher
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.OrderPlacedEvent
	err    error
}

func (m *mockPublisher) PublishOrderPlaced(ctx context.Context, event domain.OrderPlacedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// failingRecorderDB reserves stock normally but fails every Record call.
type failingRecorderDB struct {
	*storage.MemoryAdapter
	err error
}

type failingUnitOfWork struct {
	port.UnitOfWork
	err error
}

func (f *failingUnitOfWork) Record(ctx context.Context, userID int64, items []domain.LineItem, placedAt time.Time) (int64, error) {
	return 0, f.err
}

func (f *failingRecorderDB) WithinTx(ctx context.Context, fn func(ctx context.Context, uow port.UnitOfWork) error) error {
	return f.MemoryAdapter.WithinTx(ctx, func(ctx context.Context, uow port.UnitOfWork) error {
		return fn(ctx, &failingUnitOfWork{UnitOfWork: uow, err: f.err})
	})
}

// cancelAfterCommitDB cancels the request context once the transaction
// has committed.
type cancelAfterCommitDB struct {
	*storage.MemoryAdapter
	cancel context.CancelFunc
}

func (c *cancelAfterCommitDB) WithinTx(ctx context.Context, fn func(ctx context.Context, uow port.UnitOfWork) error) error {
	err := c.MemoryAdapter.WithinTx(ctx, fn)
	c.cancel()
	return err
}

// Plain-text hasher, good enough to exercise the service logic.
type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (fakeHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return domain.ErrInvalidCredentials
	}
	return nil
}

func seedUser(t *testing.T, db port.UserRepository, email string, role domain.Role) domain.User {
	t.Helper()
	u, err := db.CreateUser(context.Background(), domain.User{
		Email:        email,
		PasswordHash: "hashed:secret",
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed user failed: %v", err)
	}
	return u
}

func seedProduct(t *testing.T, db port.ProductRepository, price string, stock int) domain.Product {
	t.Helper()
	p, err := db.CreateProduct(context.Background(), domain.Product{
		Name:  "Chips",
		Price: decimal.RequireFromString(price),
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("seed product failed: %v", err)
	}
	return p
}

func stockOf(t *testing.T, db port.ProductRepository, id int64) int {
	t.Helper()
	p, err := db.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	return p.Stock
}
