package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pawhaven/adoption-portal/internal/api/portal"
	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

const defaultResolveTimeout = 3 * time.Second

// PortalHandler drives the per-visitor authorization state machine for the
// browser-facing portal.
type PortalHandler struct {
	registry       *portal.Registry
	bootstrap      ports.BootstrapService
	policy         ports.BootstrapPolicy
	audit          ports.AuditRecorder
	log            zerolog.Logger
	autoBootstrap  bool
	resolveTimeout time.Duration
}

type PortalOptions struct {
	// AutoBootstrap grants the admin role on login when the email is the
	// bootstrap address.
	AutoBootstrap  bool
	ResolveTimeout time.Duration
}

func NewPortalHandler(
	registry *portal.Registry,
	bootstrap ports.BootstrapService,
	policy ports.BootstrapPolicy,
	audit ports.AuditRecorder,
	opts PortalOptions,
	log zerolog.Logger,
) *PortalHandler {
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultResolveTimeout
	}
	return &PortalHandler{
		registry:       registry,
		bootstrap:      bootstrap,
		policy:         policy,
		audit:          audit,
		log:            log.With().Str("component", "portal").Logger(),
		autoBootstrap:  opts.AutoBootstrap,
		resolveTimeout: opts.ResolveTimeout,
	}
}

// StateResponse is the portal's view of an AuthState.
type StateResponse struct {
	Phase    string           `json:"phase"`
	Resolved bool             `json:"resolved"`
	IsAdmin  bool             `json:"is_admin"`
	Role     string           `json:"role,omitempty"`
	User     *domain.Identity `json:"user,omitempty"`
}

func newStateResponse(st domain.AuthState) StateResponse {
	return StateResponse{
		Phase:    st.Phase.String(),
		Resolved: st.Resolved,
		IsAdmin:  st.IsAdmin,
		Role:     st.Role(),
		User:     st.Identity,
	}
}

type portalLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login signs the visitor in and waits briefly for the role to resolve. A
// lookup still running at the deadline is reported with 202.
//
// @Summary      Portal sign-in
// @Tags         portal
// @Accept       json
// @Produce      json
// @Param        body  body      portalLoginRequest  true  "Credentials"
// @Success      200   {object}  StateResponse
// @Success      202   {object}  StateResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /portal/login [post]
func (h *PortalHandler) Login(c echo.Context) error {
	var req portalLoginRequest
	if msg := bindAndValidate(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}

	v, err := h.registry.Attach(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := v.Manager.SignIn(ctx, req.Email, req.Password); err != nil {
		h.record(req.Email, domain.AuditSignIn, "denied", "invalid_credentials")
		return respondError(c, err)
	}
	h.record(req.Email, domain.AuditSignIn, "ok", "")

	if h.autoBootstrap && h.policy != nil && h.policy.Allowed(req.Email) {
		if _, err := h.bootstrap.GrantAdmin(ctx, req.Email); err != nil {
			h.log.Warn().Err(err).Str("email", req.Email).Msg("auto bootstrap failed")
		} else {
			v.Manager.Reresolve()
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.resolveTimeout)
	defer cancel()
	st, err := v.Manager.WaitResolved(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.JSON(http.StatusAccepted, newStateResponse(st))
		}
		return err
	}
	return c.JSON(http.StatusOK, newStateResponse(st))
}

// Logout signs the visitor out. The state is anonymous afterwards even when
// the credential store could not be reached.
//
// @Summary      Portal sign-out
// @Tags         portal
// @Produce      json
// @Success      200   {object}  StateResponse
// @Router       /portal/logout [post]
func (h *PortalHandler) Logout(c echo.Context) error {
	v := h.registry.Visitor(c)
	if v == nil {
		return c.JSON(http.StatusOK, newStateResponse(h.registry.StateFor(c)))
	}

	var actor string
	if id := v.Manager.State().Identity; id != nil {
		actor = id.Email
	}
	if err := v.Manager.SignOut(c.Request().Context()); err != nil {
		h.log.Warn().Err(err).Str("visitor_id", v.ID).Msg("portal sign out incomplete")
	}
	h.record(actor, domain.AuditSignOut, "ok", "")
	st := v.Manager.State()
	h.registry.Forget(c)
	return c.JSON(http.StatusOK, newStateResponse(st))
}

// Session reports the visitor's current authorization state.
//
// @Summary      Portal session state
// @Tags         portal
// @Produce      json
// @Success      200   {object}  StateResponse
// @Router       /portal/session [get]
func (h *PortalHandler) Session(c echo.Context) error {
	return c.JSON(http.StatusOK, newStateResponse(h.registry.StateFor(c)))
}

// Profile is the signed-in user's page. Mounted behind the Authenticated guard.
//
// @Summary      User profile
// @Tags         portal
// @Produce      json
// @Success      200   {object}  StateResponse
// @Success      202   {object}  map[string]string
// @Success      302
// @Router       /user/profile [get]
func (h *PortalHandler) Profile(c echo.Context) error {
	return c.JSON(http.StatusOK, newStateResponse(h.registry.StateFor(c)))
}

// Admin is the administrator dashboard. Mounted behind the Admin guard.
//
// @Summary      Admin dashboard
// @Tags         portal
// @Produce      json
// @Success      200   {object}  map[string]any
// @Success      202   {object}  map[string]string
// @Success      302
// @Router       /admin [get]
func (h *PortalHandler) Admin(c echo.Context) error {
	st := h.registry.StateFor(c)
	return c.JSON(http.StatusOK, map[string]any{
		"page":     "admin",
		"user":     st.Identity,
		"visitors": h.registry.Len(),
	})
}

// LoginPage is where the guards send visitors without an identity.
func (h *PortalHandler) LoginPage(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"page":   "login",
		"action": "/portal/login",
	})
}

func (h *PortalHandler) record(actor, action, status, reason string) {
	if h.audit == nil || actor == "" {
		return
	}
	h.audit.Record(domain.AuditEvent{Actor: actor, Action: action, Status: status, Reason: reason})
}
