package ports

import (
	"context"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

// BootstrapPolicy decides which email may self-grant the admin role.
type BootstrapPolicy interface {
	Allowed(email string) bool
}

// BootstrapService grants the admin role to the allow-listed identity.
type BootstrapService interface {
	GrantAdmin(ctx context.Context, email string) (domain.GrantOutcome, error)
}
