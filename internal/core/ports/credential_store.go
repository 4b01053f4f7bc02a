package ports

import (
	"context"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

// SessionListener receives credential-store change notifications. session is
// nil for SIGNED_OUT.
type SessionListener func(event domain.SessionEvent, session *domain.Session)

// CredentialStore is the client-side view of the identity service consumed by
// the authorization state machine.
type CredentialStore interface {
	// CurrentSession returns the existing session, or nil when there is none.
	CurrentSession(ctx context.Context) (*domain.Session, error)
	// OnSessionChange registers listener until the returned func is called.
	OnSessionChange(listener SessionListener) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	SignOut(ctx context.Context) error
}
