package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
	"github.com/pawhaven/adoption-portal/internal/pkg/metrics"
)

// grantTimeout bounds one shared grant regardless of who is waiting on it.
const grantTimeout = 10 * time.Second

// SingleEmailPolicy allow-lists exactly one address. An empty address allows
// nobody.
type SingleEmailPolicy string

func (p SingleEmailPolicy) Allowed(email string) bool {
	return p != "" && string(p) == email
}

// BootstrapService seeds the first administrator. It is a single-tenant
// bootstrap, not a general grant API.
type BootstrapService struct {
	policy    ports.BootstrapPolicy
	directory ports.UserDirectory
	roles     ports.RoleRepository
	audit     ports.AuditRecorder
	log       zerolog.Logger

	sf singleflight.Group
}

var _ ports.BootstrapService = (*BootstrapService)(nil)

func NewBootstrapService(
	policy ports.BootstrapPolicy,
	directory ports.UserDirectory,
	roles ports.RoleRepository,
	audit ports.AuditRecorder,
	log zerolog.Logger,
) *BootstrapService {
	return &BootstrapService{
		policy:    policy,
		directory: directory,
		roles:     roles,
		audit:     audit,
		log:       log.With().Str("component", "bootstrap").Logger(),
	}
}

// GrantAdmin gives the admin role to the allow-listed email. Repeated calls
// succeed with domain.GrantAlreadyPresent and never insert a second row.
func (s *BootstrapService) GrantAdmin(ctx context.Context, email string) (domain.GrantOutcome, error) {
	if email == "" {
		s.finish(email, 0, domain.ErrEmailRequired)
		return 0, domain.ErrEmailRequired
	}
	if !s.policy.Allowed(email) {
		s.finish(email, 0, domain.ErrEmailNotAllowed)
		return 0, domain.ErrEmailNotAllowed
	}

	// Coalesce concurrent calls inside this process; cross-process races are
	// settled by the unique (user_id, role_id) index. The shared grant ignores
	// any one caller's cancellation; each caller stops waiting on its own.
	ch := s.sf.DoChan(email, func() (any, error) {
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grantTimeout)
		defer cancel()
		return s.grant(gctx, email)
	})

	select {
	case <-ctx.Done():
		s.finish(email, 0, ctx.Err())
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.finish(email, 0, res.Err)
			return 0, res.Err
		}
		outcome := res.Val.(domain.GrantOutcome)
		s.finish(email, outcome, nil)
		return outcome, nil
	}
}

func (s *BootstrapService) grant(ctx context.Context, email string) (domain.GrantOutcome, error) {
	user, err := s.directory.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("bootstrap: find user: %w", err)
	}

	role, err := s.roles.FindRoleByName(ctx, domain.RoleAdmin)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return 0, domain.ErrRoleNotFound
		}
		return 0, fmt.Errorf("bootstrap: find admin role: %w", err)
	}

	exists, err := s.roles.HasAssignment(ctx, user.ID, role.ID)
	if err != nil {
		// Fall through to the insert: a duplicate is still reported as
		// already present.
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("existing assignment check failed")
	} else if exists {
		return domain.GrantAlreadyPresent, nil
	}

	outcome, err := s.roles.InsertAssignment(ctx, user.ID, role.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrGrantFailed, err)
	}
	return outcome, nil
}

func (s *BootstrapService) finish(email string, outcome domain.GrantOutcome, err error) {
	result := outcome.String()
	status := "granted"
	reason := ""
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrEmailRequired):
		result, status, reason = "bad_request", "denied", "email_required"
	case errors.Is(err, domain.ErrEmailNotAllowed):
		result, status, reason = "forbidden", "denied", "not_allow_listed"
	case errors.Is(err, domain.ErrUserNotFound):
		result, status, reason = "user_not_found", "denied", "user_not_found"
	default:
		result, status, reason = "failed", "failed", err.Error()
	}
	metrics.BootstrapRequestsTotal.WithLabelValues(result).Inc()

	evt := s.log.Info()
	if err != nil {
		evt = s.log.Warn().Err(err)
	}
	evt.Str("email", email).Str("result", result).Msg("bootstrap admin request")

	if s.audit != nil {
		s.audit.Record(domain.AuditEvent{
			Actor:      email,
			Action:     domain.AuditBootstrap,
			Status:     status,
			Reason:     reason,
			OccurredAt: time.Now().UTC(),
		})
	}
}
