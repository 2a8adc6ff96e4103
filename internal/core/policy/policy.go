// Package policy decides what an authenticated user may do.
package policy

import (
	"fmt"
	"strings"

	"github.com/rl1809/shop/internal/core/domain"
)

type Permission string

const (
	PermPlaceOrder    Permission = "place_order"
	PermViewOwnOrders Permission = "view_own_orders"
	PermManageCatalog Permission = "manage_catalog"
	PermManageUsers   Permission = "manage_users"
	PermViewSales     Permission = "view_sales"
)

// Seller has no grants beyond customer yet.
var grants = map[domain.Role]map[Permission]bool{
	domain.RoleCustomer: {
		PermPlaceOrder:    true,
		PermViewOwnOrders: true,
	},
	domain.RoleSeller: {
		PermPlaceOrder:    true,
		PermViewOwnOrders: true,
	},
	domain.RoleAdmin: {
		PermPlaceOrder:    true,
		PermViewOwnOrders: true,
		PermManageCatalog: true,
		PermManageUsers:   true,
		PermViewSales:     true,
	},
}

func Allows(role domain.Role, perm Permission) bool {
	return grants[role][perm]
}

// Check fails with ErrAccountBlocked for blocked users whatever their role,
// and with ErrUnauthorized when the role lacks perm.
func Check(user domain.User, perm Permission) error {
	if user.Blocked {
		return domain.ErrAccountBlocked
	}
	if !Allows(user.Role, perm) {
		return fmt.Errorf("%w: role %q cannot %s", domain.ErrUnauthorized, user.Role, perm)
	}
	return nil
}

func ParseRole(s string) (domain.Role, error) {
	role := domain.Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := grants[role]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidRole, s)
	}
	return role, nil
}
