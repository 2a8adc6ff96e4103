package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/shop/internal/core/domain"
)

const userColumns = `id, email, password_hash, role, is_blocked, created_at`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Blocked, &u.CreatedAt)
	return u, err
}

func (m *MySQLAdapter) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, role, is_blocked, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.Email, user.PasswordHash, user.Role, user.Blocked, user.CreatedAt.UTC(),
	)
	if isMySQLError(err, errDuplicateEntry) {
		return domain.User{}, fmt.Errorf("%w: %s", domain.ErrDuplicateEmail, user.Email)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}

	user.ID, err = result.LastInsertId()
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (m *MySQLAdapter) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return m.queryUser(ctx, m.db, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (m *MySQLAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.queryUser(ctx, m.db, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (m *MySQLAdapter) queryUser(ctx context.Context, q queryRower, query string, arg any) (*domain.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %v: %w", arg, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (m *MySQLAdapter) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (m *MySQLAdapter) SetRole(ctx context.Context, id int64, role domain.Role) error {
	result, err := m.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, id)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}
	ok, err := m.exists(ctx, "users", id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (m *MySQLAdapter) ToggleBlock(ctx context.Context, id int64) (domain.User, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE users SET is_blocked = NOT is_blocked WHERE id = ?`, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("toggle block: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.User{}, fmt.Errorf("toggle block: %w", err)
	}
	if rows == 0 {
		return domain.User{}, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}

	user, err := m.queryUser(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return domain.User{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.User{}, fmt.Errorf("commit tx: %w", err)
	}
	return *user, nil
}
