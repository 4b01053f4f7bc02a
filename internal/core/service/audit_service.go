package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

var errAuditIncomplete = errors.New("audit event requires actor and action")

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService returns an AuditService that logs every event and persists
// it when a repository is configured.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{
		repo: repo,
		log:  log.With().Str("component", "audit").Logger(),
	}
}

// Process validates, logs and persists a single audit event.
func (s *auditService) Process(ctx context.Context, in domain.AuditEvent) error {
	if in.Actor == "" || in.Action == "" {
		return errAuditIncomplete
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}

	evt := s.log.Info()
	if in.Status == "denied" || in.Status == "failed" {
		evt = s.log.Warn()
	}
	evt.Str("actor", in.Actor).
		Str("action", in.Action).
		Str("status", in.Status).
		Str("reason", in.Reason).
		Msg("audit")

	if s.repo == nil {
		return nil
	}
	if err := s.repo.InsertAudit(ctx, &in); err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}
