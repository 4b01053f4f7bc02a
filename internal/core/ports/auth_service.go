package ports

import (
	"context"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

// SessionBackend is the part of the credential store a client-side session
// holder talks to. It is satisfied in-process by the auth service and
// remotely by the HTTP backend.
type SessionBackend interface {
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*domain.Identity, error)
}

// UserDirectory is the administrative, server-side lookup of identities.
type UserDirectory interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.Identity, error)
}

// TokenClaims is what a verified access token proves.
type TokenClaims struct {
	Identity  domain.Identity
	SessionID string
}

// AuthService is the credential store served over HTTP.
type AuthService interface {
	SessionBackend
	UserDirectory
	Register(ctx context.Context, email, password string) (*domain.User, error)
	Verify(ctx context.Context, accessToken string) (*TokenClaims, error)
}
