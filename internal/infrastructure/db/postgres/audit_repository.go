package postgres

import (
	"context"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

type AuditRepository struct {
	db dbtx
}

func NewAuditRepository(db dbtx) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) InsertAudit(ctx context.Context, event *domain.AuditEvent) error {
	var reason *string
	if event.Reason != "" {
		reason = &event.Reason
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_events (actor, action, status, reason, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
		event.Actor, event.Action, event.Status, reason, event.OccurredAt)
	return err
}
