package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/pawhaven/adoption-portal/docs"
	"github.com/pawhaven/adoption-portal/internal/api/handler"
	"github.com/pawhaven/adoption-portal/internal/api/middleware"
	"github.com/pawhaven/adoption-portal/internal/api/portal"
	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/guard"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

// Dependencies are the wired services the router exposes.
type Dependencies struct {
	Auth      ports.AuthService
	Roles     ports.RoleChecker
	Bootstrap ports.BootstrapService
	Policy    ports.BootstrapPolicy
	Audit     ports.AuditRecorder
	Portal    *portal.Registry
	Health    map[string]handler.HealthCheck

	AutoBootstrap bool
	LoginPath     string
	UserHomePath  string

	// Registry receives the HTTP metrics. Nil means the default registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	if deps.LoginPath == "" {
		deps.LoginPath = guard.DefaultLoginPath
	}
	if deps.UserHomePath == "" {
		deps.UserHomePath = guard.DefaultUserHomePath
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(log))

	promMiddleware := echoprometheus.MiddlewareConfig{Subsystem: "adoption_api"}
	promHandler := echoprometheus.HandlerConfig{}
	if deps.Registry != nil {
		promMiddleware.Registerer = deps.Registry
		promHandler.Gatherer = deps.Registry
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(promMiddleware))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(deps.Auth, deps.Audit)
	bootstrapHandler := handler.NewBootstrapHandler(deps.Bootstrap, log)
	rpcHandler := handler.NewRPCHandler(deps.Roles, log)
	portalHandler := handler.NewPortalHandler(deps.Portal, deps.Bootstrap, deps.Policy, deps.Audit,
		handler.PortalOptions{AutoBootstrap: deps.AutoBootstrap}, log)
	healthHandler := handler.NewHealthHandler(deps.Health)

	bearer := middleware.Auth(deps.Auth)

	// --- Credential store ---
	auth := e.Group("/auth/v1")
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/token", authHandler.Token)
	auth.POST("/token/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout, bearer)
	auth.GET("/user", authHandler.User, bearer)
	auth.GET("/admin/users", authHandler.LookupUser, bearer, middleware.RequireRole(deps.Roles, domain.RoleAdmin, log))

	// --- Role table ---
	rpc := e.Group("/rest/v1/rpc", bearer)
	rpc.POST("/has_role", rpcHandler.HasRole)

	// --- Functions ---
	functions := e.Group("/functions/v1", middleware.FunctionsCORS())
	functions.Any("/add_admin_role", bootstrapHandler.Handle)

	// --- Portal ---
	e.POST("/portal/login", portalHandler.Login)
	e.POST("/portal/logout", portalHandler.Logout)
	e.GET("/portal/session", portalHandler.Session)
	e.GET(deps.LoginPath, portalHandler.LoginPage)
	e.GET(deps.UserHomePath, portalHandler.Profile,
		middleware.Guard(guard.Authenticated{LoginPath: deps.LoginPath}, deps.Portal))
	e.GET("/admin", portalHandler.Admin,
		middleware.Guard(guard.Admin{LoginPath: deps.LoginPath, UserHomePath: deps.UserHomePath}, deps.Portal))

	// --- Health probes (no auth required) ---
	e.GET("/health", healthHandler.Live)
	e.GET("/health/ready", healthHandler.Ready)

	// --- Ops ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(promHandler))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil {
				evt = log.Error().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
