package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

// BootstrapHandler serves the add_admin_role function.
type BootstrapHandler struct {
	service ports.BootstrapService
	log     zerolog.Logger
}

func NewBootstrapHandler(service ports.BootstrapService, log zerolog.Logger) *BootstrapHandler {
	return &BootstrapHandler{service: service, log: log.With().Str("component", "bootstrap_handler").Logger()}
}

type bootstrapRequest struct {
	Email string `json:"email"`
}

type bootstrapResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

type bootstrapError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Handle grants the admin role to the allow-listed email. It is mounted for
// every method; OPTIONS is answered by the CORS middleware.
//
// @Summary      Bootstrap the first administrator
// @Tags         functions
// @Accept       json
// @Produce      json
// @Param        body  body      bootstrapRequest  true  "Email to promote"
// @Success      200   {object}  bootstrapResponse
// @Failure      400   {object}  bootstrapError
// @Failure      403   {object}  bootstrapError
// @Failure      404   {object}  bootstrapError
// @Failure      405   {object}  bootstrapError
// @Failure      500   {object}  bootstrapError
// @Router       /functions/v1/add_admin_role [post]
func (h *BootstrapHandler) Handle(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return c.JSON(http.StatusMethodNotAllowed, bootstrapError{Error: "Method not allowed"})
	}

	var req bootstrapRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, bootstrapError{Error: "invalid payload"})
	}

	outcome, err := h.service.GrantAdmin(c.Request().Context(), req.Email)
	if err != nil {
		status, body := bootstrapFailure(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("email", req.Email).Msg("bootstrap failed")
		}
		return c.JSON(status, body)
	}

	msg := "Admin role assigned successfully"
	if outcome == domain.GrantAlreadyPresent {
		msg = "User already has admin role"
	}
	return c.JSON(http.StatusOK, bootstrapResponse{Message: msg, Success: true})
}

func bootstrapFailure(err error) (int, bootstrapError) {
	switch {
	case errors.Is(err, domain.ErrEmailRequired):
		return http.StatusBadRequest, bootstrapError{Error: "Email is required"}
	case errors.Is(err, domain.ErrEmailNotAllowed):
		return http.StatusForbidden, bootstrapError{Error: "Email not allowed"}
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, bootstrapError{Error: "Failed to find user"}
	case errors.Is(err, domain.ErrRoleNotFound):
		return http.StatusInternalServerError, bootstrapError{Error: "Failed to find admin role"}
	case errors.Is(err, domain.ErrGrantFailed):
		return http.StatusInternalServerError, bootstrapError{Error: "Failed to assign admin role", Details: err.Error()}
	default:
		return http.StatusInternalServerError, bootstrapError{Error: "Internal server error"}
	}
}
