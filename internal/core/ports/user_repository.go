package ports

import (
	"context"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

// UserRepository defines credential-store persistence for user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
}
