package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/port"
)

// MemoryAdapter is an in-process store for development and tests. Units of
// work are serialized by a single mutex and undone on error.
type MemoryAdapter struct {
	mu sync.Mutex

	users    map[int64]domain.User
	products map[int64]domain.Product
	orders   map[int64]domain.Order

	nextUserID      int64
	nextProductID   int64
	nextOrderID     int64
	nextOrderItemID int64
}

var _ port.DatabaseRepository = (*MemoryAdapter)(nil)

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		users:    make(map[int64]domain.User),
		products: make(map[int64]domain.Product),
		orders:   make(map[int64]domain.Order),
	}
}

type memoryUnitOfWork struct {
	m    *MemoryAdapter
	undo []func()
}

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, uow port.UnitOfWork) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	uow := &memoryUnitOfWork{m: m}
	if err := fn(ctx, uow); err != nil {
		for i := len(uow.undo) - 1; i >= 0; i-- {
			uow.undo[i]()
		}
		return err
	}
	return nil
}

func (u *memoryUnitOfWork) Reserve(ctx context.Context, productID int64, quantity int) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, domain.ErrInvalidQuantity
	}

	p, ok := u.m.products[productID]
	if !ok {
		return decimal.Zero, fmt.Errorf("product %d: %w", productID, domain.ErrNotFound)
	}
	if p.Stock < quantity {
		return decimal.Zero, &domain.InsufficientStockError{ProductID: productID, Available: p.Stock}
	}

	previous := p
	p.Stock -= quantity
	p.UpdatedAt = time.Now().UTC()
	u.m.products[productID] = p
	u.undo = append(u.undo, func() { u.m.products[productID] = previous })

	return p.Price, nil
}

func (u *memoryUnitOfWork) Record(ctx context.Context, userID int64, items []domain.LineItem, placedAt time.Time) (int64, error) {
	if len(items) == 0 {
		return 0, errors.New("order has no items")
	}
	if _, ok := u.m.users[userID]; !ok {
		return 0, fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}

	u.m.nextOrderID++
	order := domain.Order{
		ID:         u.m.nextOrderID,
		UserID:     userID,
		TotalPrice: domain.OrderTotal(items),
		CreatedAt:  placedAt,
		Items:      make([]domain.OrderItem, 0, len(items)),
	}

	for _, it := range items {
		if it.Quantity <= 0 {
			return 0, domain.ErrInvalidQuantity
		}
		if _, ok := u.m.products[it.ProductID]; !ok {
			return 0, fmt.Errorf("product %d: %w", it.ProductID, domain.ErrNotFound)
		}

		u.m.nextOrderItemID++
		order.Items = append(order.Items, domain.OrderItem{
			ID:        u.m.nextOrderItemID,
			OrderID:   order.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	u.m.orders[order.ID] = order
	u.undo = append(u.undo, func() { delete(u.m.orders, order.ID) })

	return order.ID, nil
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextProductID++
	product.ID = m.nextProductID
	m.products[product.ID] = product
	return product, nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (m *MemoryAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *MemoryAdapter) SetStock(ctx context.Context, id int64, stock int) error {
	if stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", domain.ErrInvalidProduct)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	p.Stock = stock
	p.UpdatedAt = time.Now().UTC()
	m.products[id] = p
	return nil
}

func (m *MemoryAdapter) DeleteProduct(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	for _, o := range m.orders {
		for _, it := range o.Items {
			if it.ProductID == id {
				return fmt.Errorf("product %d: %w", id, domain.ErrProductInUse)
			}
		}
	}
	delete(m.products, id)
	return nil
}

func (m *MemoryAdapter) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return domain.User{}, fmt.Errorf("%w: %s", domain.ErrDuplicateEmail, user.Email)
		}
	}

	m.nextUserID++
	user.ID = m.nextUserID
	m.users[user.ID] = user
	return user, nil
}

func (m *MemoryAdapter) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

func (m *MemoryAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
}

func (m *MemoryAdapter) ListUsers(ctx context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *MemoryAdapter) SetRole(ctx context.Context, id int64, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	u.Role = role
	m.users[id] = u
	return nil
}

func (m *MemoryAdapter) ToggleBlock(ctx context.Context, id int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	u.Blocked = !u.Blocked
	m.users[id] = u
	return u, nil
}

func (m *MemoryAdapter) OrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := []domain.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			res = append(res, copyOrder(o))
		}
	}
	sortNewestFirst(res)
	return res, nil
}

func (m *MemoryAdapter) RecentOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		res = append(res, copyOrder(o))
	}
	sortNewestFirst(res)
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryAdapter) CountOrdersByDay(ctx context.Context, since time.Time) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, o := range m.orders {
		if o.CreatedAt.Before(since) {
			continue
		}
		counts[o.CreatedAt.UTC().Format(time.DateOnly)]++
	}
	return counts, nil
}

func copyOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

func sortNewestFirst(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}
