package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

const minRevocationTTL = time.Minute

// RevocationList records signed-out session ids.
// Key format: revoked:<session_id>
type RevocationList struct {
	client *redis.Client
}

var _ ports.SessionRevoker = (*RevocationList)(nil)

func NewRevocationList(client *redis.Client) *RevocationList {
	return &RevocationList{client: client}
}

// Revoke marks sessionID as signed out. The key expires after ttl, once every
// token of the session has expired on its own.
func (r *RevocationList) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}
	if err := r.client.Set(ctx, r.key(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether sessionID has been signed out.
func (r *RevocationList) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation check: %w", err)
	}
	return n > 0, nil
}

func (r *RevocationList) key(sessionID string) string {
	return "revoked:" + sessionID
}
