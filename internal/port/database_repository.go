package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shop/internal/core/domain"
)

type InventoryLedger interface {
	// Reserve decrements stock inside the current unit of work and returns the unit price
	Reserve(ctx context.Context, productID int64, quantity int) (decimal.Decimal, error)
}

type OrderRecorder interface {
	// Record writes the order header and its items inside the current unit of work
	Record(ctx context.Context, userID int64, items []domain.LineItem, placedAt time.Time) (int64, error)
}

// UnitOfWork is only valid inside the callback passed to WithinTx.
type UnitOfWork interface {
	InventoryLedger
	OrderRecorder
}

type Transactor interface {
	// WithinTx commits when fn returns nil and rolls everything back otherwise
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

type ProductRepository interface {
	CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	SetStock(ctx context.Context, id int64, stock int) error
	DeleteProduct(ctx context.Context, id int64) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	SetRole(ctx context.Context, id int64, role domain.Role) error

	// ToggleBlock flips the blocked flag in a single write and returns the updated user
	ToggleBlock(ctx context.Context, id int64) (domain.User, error)
}

type OrderRepository interface {
	OrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	RecentOrders(ctx context.Context, limit int) ([]domain.Order, error)

	// CountOrdersByDay returns order counts keyed by UTC date (YYYY-MM-DD) for orders created at or after since
	CountOrdersByDay(ctx context.Context, since time.Time) (map[string]int, error)
}

type DatabaseRepository interface {
	Transactor
	ProductRepository
	UserRepository
	OrderRepository
}
