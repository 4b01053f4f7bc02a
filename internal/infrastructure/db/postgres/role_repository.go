package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

// RoleRepository reads roles through the has_role function and writes
// user_roles rows guarded by UNIQUE (user_id, role_id).
type RoleRepository struct {
	db dbtx
}

var _ ports.RoleRepository = (*RoleRepository)(nil)

func NewRoleRepository(db dbtx) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) HasRole(ctx context.Context, userID, roleName string) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, `SELECT has_role($1, $2)`, userID, roleName).Scan(&ok); err != nil {
		if isInvalidInput(err) {
			return false, nil
		}
		return false, fmt.Errorf("has_role: %w", err)
	}
	return ok, nil
}

func (r *RoleRepository) FindRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.QueryRow(ctx, `SELECT id::text, role_name FROM roles WHERE role_name = $1`, name).
		Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	return &role, nil
}

func (r *RoleRepository) EnsureRole(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.QueryRow(ctx,
		`INSERT INTO roles (role_name) VALUES ($1)
		 ON CONFLICT (role_name) DO UPDATE SET role_name = EXCLUDED.role_name
		 RETURNING id::text, role_name`, name).
		Scan(&role.ID, &role.Name)
	if err != nil {
		return nil, fmt.Errorf("ensure role %q: %w", name, err)
	}
	return &role, nil
}

func (r *RoleRepository) HasAssignment(ctx context.Context, userID, roleID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role_id = $2)`,
		userID, roleID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check user role: %w", err)
	}
	return ok, nil
}

func (r *RoleRepository) InsertAssignment(ctx context.Context, userID, roleID string) (domain.GrantOutcome, error) {
	_, err := r.db.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.GrantAlreadyPresent, nil
		}
		return 0, fmt.Errorf("insert user role: %w", err)
	}
	return domain.GrantInserted, nil
}
