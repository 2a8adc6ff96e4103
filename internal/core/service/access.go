package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/core/policy"
	"github.com/rl1809/shop/internal/port"
)

// authorize reloads the acting user on every call, so role and block
// changes apply from the next operation on.
func authorize(ctx context.Context, users port.UserRepository, actorID int64, perm policy.Permission) (domain.User, error) {
	user, err := users.GetUser(ctx, actorID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("%w: unknown user %d", domain.ErrUnauthorized, actorID)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}

	if err := policy.Check(*user, perm); err != nil {
		return domain.User{}, err
	}
	return *user, nil
}
