package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/shop/internal/core/domain"
)

const productColumns = `id, name, price, stock, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO products (name, price, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		product.Name, product.Price, product.Stock, product.CreatedAt.UTC(), product.UpdatedAt.UTC(),
	)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	product.ID, err = result.LastInsertId()
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return product, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(m.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (m *MySQLAdapter) SetStock(ctx context.Context, id int64, stock int) error {
	if stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", domain.ErrInvalidProduct)
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE products SET stock = ?, updated_at = ? WHERE id = ?`,
		stock, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}
	ok, err := m.exists(ctx, "products", id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (m *MySQLAdapter) DeleteProduct(ctx context.Context, id int64) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if isMySQLError(err, errRowIsReferenced) {
		return fmt.Errorf("product %d: %w", id, domain.ErrProductInUse)
	}
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
