package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/port"
)

// MySQL server error numbers.
const (
	errDuplicateEntry  = 1062
	errRowIsReferenced = 1451
	errNoReferencedRow = 1452
)

//go:embed schema.sql
var schema string

type MySQLAdapter struct {
	db *sql.DB
}

var _ port.DatabaseRepository = (*MySQLAdapter)(nil)

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates missing tables. Statements run one by one because the
// driver rejects multi-statement queries unless the DSN enables them.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, uow port.UnitOfWork) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlUnitOfWork{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type mysqlUnitOfWork struct {
	tx *sql.Tx
}

// Reserve locks the product row so concurrent reservations on the same
// product queue behind each other; the guarded UPDATE keeps stock >= 0 even
// if the lock is ever bypassed.
func (u *mysqlUnitOfWork) Reserve(ctx context.Context, productID int64, quantity int) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, domain.ErrInvalidQuantity
	}

	var (
		price decimal.Decimal
		stock int
	)
	err := u.tx.QueryRowContext(ctx, `
		SELECT price, stock FROM products WHERE id = ? FOR UPDATE`, productID,
	).Scan(&price, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("product %d: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query product: %w", err)
	}

	if stock < quantity {
		return decimal.Zero, &domain.InsufficientStockError{ProductID: productID, Available: stock}
	}

	result, err := u.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, updated_at = ?
		WHERE id = ? AND stock >= ?`,
		quantity, time.Now().UTC(), productID, quantity,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("update stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return decimal.Zero, fmt.Errorf("update stock: %w", err)
	}
	if rows == 0 {
		return decimal.Zero, &domain.InsufficientStockError{ProductID: productID, Available: stock}
	}

	return price, nil
}

func (u *mysqlUnitOfWork) Record(ctx context.Context, userID int64, items []domain.LineItem, placedAt time.Time) (int64, error) {
	if len(items) == 0 {
		return 0, errors.New("order has no items")
	}

	result, err := u.tx.ExecContext(ctx, `
		INSERT INTO orders (user_id, total_price, created_at)
		VALUES (?, ?, ?)`,
		userID, domain.OrderTotal(items), placedAt.UTC(),
	)
	if isMySQLError(err, errNoReferencedRow) {
		return 0, fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	orderID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for _, it := range items {
		if it.Quantity <= 0 {
			return 0, domain.ErrInvalidQuantity
		}

		_, err := u.tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			VALUES (?, ?, ?, ?)`,
			orderID, it.ProductID, it.Quantity, it.UnitPrice,
		)
		if isMySQLError(err, errNoReferencedRow) {
			return 0, fmt.Errorf("product %d: %w", it.ProductID, domain.ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("insert order item: %w", err)
		}
	}

	return orderID, nil
}

// exists distinguishes "no such row" from "row already had that value",
// since MySQL reports changed rows, not matched rows, by default.
func (m *MySQLAdapter) exists(ctx context.Context, table string, id int64) (bool, error) {
	var one int
	err := m.db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query %s: %w", table, err)
	}
	return true, nil
}

func isMySQLError(err error, number uint16) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == number
}
