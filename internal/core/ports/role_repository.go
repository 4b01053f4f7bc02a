package ports

import (
	"context"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

// RoleChecker answers has_role(user_id, role_name).
type RoleChecker interface {
	HasRole(ctx context.Context, userID, roleName string) (bool, error)
}

// RoleRepository is the role table: roles, user_roles and has_role.
type RoleRepository interface {
	RoleChecker
	// FindRoleByName returns domain.ErrRoleNotFound when the row is missing.
	FindRoleByName(ctx context.Context, name string) (*domain.Role, error)
	EnsureRole(ctx context.Context, name string) (*domain.Role, error)
	HasAssignment(ctx context.Context, userID, roleID string) (bool, error)
	// InsertAssignment reports a duplicate (user_id, role_id) row as
	// domain.GrantAlreadyPresent rather than as an error.
	InsertAssignment(ctx context.Context, userID, roleID string) (domain.GrantOutcome, error)
}
