package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pawhaven/adoption-portal/internal/api/middleware"
	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

// AuthHandler serves the credential store under /auth/v1.
type AuthHandler struct {
	authService ports.AuthService
	audit       ports.AuditRecorder
}

func NewAuthHandler(authService ports.AuthService, audit ports.AuditRecorder) *AuthHandler {
	return &AuthHandler{authService: authService, audit: audit}
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type tokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type userResponse struct {
	User *domain.User `json:"user"`
}

// Signup creates a new account. New accounts hold no role.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signupRequest  true  "Credentials"
// @Success      201   {object}  userResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /auth/v1/signup [post]
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupRequest
	if msg := bindAndValidate(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}

	user, err := h.authService.Register(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		h.record(req.Email, domain.AuditRegister, "failed", err.Error())
		return respondError(c, err)
	}
	h.record(user.Email, domain.AuditRegister, "ok", "")
	return c.JSON(http.StatusCreated, userResponse{User: user})
}

// Token signs in with email and password.
//
// @Summary      Password sign-in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      tokenRequest  true  "Credentials"
// @Success      200   {object}  domain.Session
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/v1/token [post]
func (h *AuthHandler) Token(c echo.Context) error {
	var req tokenRequest
	if msg := bindAndValidate(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}

	sess, err := h.authService.SignIn(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			h.record(req.Email, domain.AuditSignIn, "denied", "invalid_credentials")
		}
		return respondError(c, err)
	}
	h.record(sess.Identity.Email, domain.AuditSignIn, "ok", "")
	return c.JSON(http.StatusOK, sess)
}

// Refresh exchanges a refresh token for a new token pair.
//
// @Summary      Refresh a session
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Refresh token"
// @Success      200   {object}  domain.Session
// @Failure      401   {object}  map[string]string
// @Router       /auth/v1/token/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if msg := bindAndValidate(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}

	sess, err := h.authService.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// Logout revokes the caller's session.
//
// @Summary      Sign out
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Failure      401   {object}  map[string]string
// @Router       /auth/v1/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	id, err := callerIdentity(c)
	if err != nil {
		return err
	}
	if err := h.authService.SignOut(c.Request().Context(), middleware.AccessTokenFrom(c)); err != nil {
		return respondError(c, err)
	}
	h.record(id.Email, domain.AuditSignOut, "ok", "")
	return c.NoContent(http.StatusNoContent)
}

// User returns the caller's identity.
//
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  domain.Identity
// @Failure      401   {object}  map[string]string
// @Router       /auth/v1/user [get]
func (h *AuthHandler) User(c echo.Context) error {
	id, err := callerIdentity(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, id)
}

// LookupUser finds an identity by email. Admin only.
//
// @Summary      Find user by email
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        email  query     string  true  "Email"
// @Success      200    {object}  domain.Identity
// @Failure      400    {object}  map[string]string
// @Failure      403    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Router       /auth/v1/admin/users [get]
func (h *AuthHandler) LookupUser(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "email query parameter is required"})
	}

	id, err := h.authService.FindUserByEmail(c.Request().Context(), email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, id)
}

func (h *AuthHandler) record(actor, action, status, reason string) {
	if h.audit == nil || actor == "" {
		return
	}
	h.audit.Record(domain.AuditEvent{Actor: actor, Action: action, Status: status, Reason: reason})
}
