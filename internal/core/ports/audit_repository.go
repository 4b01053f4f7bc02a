package ports

import (
	"context"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

// AuditRepository persists audit events.
type AuditRepository interface {
	InsertAudit(ctx context.Context, event *domain.AuditEvent) error
}
