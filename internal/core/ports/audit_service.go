package ports

import (
	"context"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

// AuditService writes one audit event through to storage.
type AuditService interface {
	Process(ctx context.Context, event domain.AuditEvent) error
}

// AuditRecorder accepts audit events without blocking the caller.
type AuditRecorder interface {
	Record(event domain.AuditEvent)
}
