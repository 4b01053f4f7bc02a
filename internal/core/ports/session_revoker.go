package ports

import (
	"context"
	"time"
)

// SessionRevoker keeps the list of signed-out session ids until their tokens
// would have expired anyway.
type SessionRevoker interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}
