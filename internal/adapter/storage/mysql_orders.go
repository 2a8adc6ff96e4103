package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/shop/internal/core/domain"
)

func (m *MySQLAdapter) OrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return m.queryOrders(ctx, `
		SELECT id, user_id, total_price, created_at
		FROM orders WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
}

func (m *MySQLAdapter) RecentOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return m.queryOrders(ctx, `
		SELECT id, user_id, total_price, created_at
		FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
}

func (m *MySQLAdapter) CountOrdersByDay(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT DATE_FORMAT(created_at, '%Y-%m-%d') AS day, COUNT(*)
		FROM orders
		WHERE created_at >= ?
		GROUP BY day`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			day   string
			count int
		)
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("scan order count: %w", err)
		}
		counts[day] = count
	}
	return counts, rows.Err()
}

func (m *MySQLAdapter) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	index := make(map[int64]int)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Items = []domain.OrderItem{}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	if err := m.attachItems(ctx, orders, index); err != nil {
		return nil, err
	}
	return orders, nil
}

func (m *MySQLAdapter) attachItems(ctx context.Context, orders []domain.Order, index map[int64]int) error {
	if len(orders) == 0 {
		return nil
	}

	placeholders := make([]string, len(orders))
	args := make([]any, len(orders))
	for i, o := range orders {
		placeholders[i] = "?"
		args[i] = o.ID
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items
		WHERE order_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY id`, args...)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		i := index[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return rows.Err()
}
