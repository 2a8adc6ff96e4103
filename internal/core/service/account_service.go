package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/core/policy"
	"github.com/rl1809/shop/internal/port"
)

type AccountService struct {
	users  port.UserRepository
	hasher port.PasswordHasher
	logger *zap.Logger
}

func NewAccountService(users port.UserRepository, hasher port.PasswordHasher, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{users: users, hasher: hasher, logger: logger}
}

// bcrypt rejects longer passwords.
const maxPasswordBytes = 72

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a customer account.
func (s *AccountService) Register(ctx context.Context, email, password string) (domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, fmt.Errorf("%w: email and password are required", domain.ErrInvalidCredentials)
	}
	if len(password) > maxPasswordBytes {
		return domain.User{}, fmt.Errorf("%w: password longer than %d bytes", domain.ErrInvalidCredentials, maxPasswordBytes)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("email", user.Email))
	return user, nil
}

// Authenticate checks the blocked flag before the password, so a blocked
// account is reported as such even with a wrong password.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}

	if user.Blocked {
		s.logger.Warn("blocked user attempted login", zap.Int64("user_id", user.ID))
		return domain.User{}, domain.ErrAccountBlocked
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

func (s *AccountService) Me(ctx context.Context, actorID int64) (domain.User, error) {
	user, err := s.users.GetUser(ctx, actorID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("%w: unknown user %d", domain.ErrUnauthorized, actorID)
	}
	if err != nil {
		return domain.User{}, err
	}
	if user.Blocked {
		return domain.User{}, domain.ErrAccountBlocked
	}
	return *user, nil
}

func (s *AccountService) ListUsers(ctx context.Context, actorID int64) ([]domain.User, error) {
	if _, err := authorize(ctx, s.users, actorID, policy.PermManageUsers); err != nil {
		return nil, err
	}
	return s.users.ListUsers(ctx)
}

func (s *AccountService) SetUserRole(ctx context.Context, actorID, userID int64, role string) error {
	if _, err := authorize(ctx, s.users, actorID, policy.PermManageUsers); err != nil {
		return err
	}

	parsed, err := policy.ParseRole(role)
	if err != nil {
		return err
	}
	if err := s.users.SetRole(ctx, userID, parsed); err != nil {
		return err
	}

	s.logger.Info("user role changed",
		zap.Int64("actor_id", actorID), zap.Int64("user_id", userID), zap.String("role", string(parsed)))
	return nil
}

func (s *AccountService) ToggleBlock(ctx context.Context, actorID, userID int64) (domain.User, error) {
	if _, err := authorize(ctx, s.users, actorID, policy.PermManageUsers); err != nil {
		return domain.User{}, err
	}

	user, err := s.users.ToggleBlock(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	s.logger.Info("user block toggled",
		zap.Int64("actor_id", actorID), zap.Int64("user_id", userID), zap.Bool("blocked", user.Blocked))
	return user, nil
}

// PromoteByEmail makes an existing user an admin. It is an operator action
// without an acting user and is not reachable from the network handlers.
func (s *AccountService) PromoteByEmail(ctx context.Context, email string) (domain.User, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return domain.User{}, err
	}
	if err := s.users.SetRole(ctx, user.ID, domain.RoleAdmin); err != nil {
		return domain.User{}, err
	}

	user.Role = domain.RoleAdmin
	s.logger.Info("user promoted to admin", zap.Int64("user_id", user.ID), zap.String("email", user.Email))
	return *user, nil
}
