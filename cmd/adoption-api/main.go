// Command adoption-api serves the adoption portal's identity backend: the
// credential store, the role table, the admin bootstrap function and the
// browser portal with its route guards.
//
// @title                       PawHaven Adoption Portal API
// @version                     1.0
// @description                 Identity, role table and admin bootstrap for the adoption portal.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/pawhaven/adoption-portal/internal/api"
	"github.com/pawhaven/adoption-portal/internal/api/handler"
	"github.com/pawhaven/adoption-portal/internal/api/portal"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
	"github.com/pawhaven/adoption-portal/internal/core/service"
	"github.com/pawhaven/adoption-portal/internal/infrastructure/db/mongo"
	"github.com/pawhaven/adoption-portal/internal/infrastructure/db/postgres"
	"github.com/pawhaven/adoption-portal/internal/infrastructure/db/redis"
	"github.com/pawhaven/adoption-portal/internal/infrastructure/queue"
	"github.com/pawhaven/adoption-portal/internal/pkg/config"
	"github.com/pawhaven/adoption-portal/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// stores is the persistence selected by STORE_BACKEND.
type stores struct {
	users ports.UserRepository
	roles ports.RoleRepository
	audit ports.AuditRepository
	probe handler.HealthCheck
	close func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "adoption-api",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("adoption-api stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	// Background work lives until shutdown has drained the HTTP server.
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	auditService := service.NewAuditService(st.audit, log)
	dispatcher := queue.NewDispatcher(cfg.AuditWorkers, auditService, logger.Component("audit_dispatcher"))
	dispatcher.Start(bgCtx)

	authService := service.NewAuthService(st.users, redis.NewRevocationList(rdb), cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	policy := service.SingleEmailPolicy(cfg.Bootstrap.AdminEmail)
	if cfg.Bootstrap.AdminEmail == "" {
		log.Warn().Msg("BOOTSTRAP_ADMIN_EMAIL is empty; admin bootstrap is disabled")
	}
	bootstrapService := service.NewBootstrapService(policy, authService, st.roles, dispatcher, log)

	registry := portal.NewRegistry(bgCtx, authService, st.roles, portal.Options{
		MaxVisitors:  cfg.Portal.MaxVisitors,
		IdleTTL:      cfg.Portal.IdleTTL,
		SecureCookie: !cfg.IsDevelopment(),
	}, log)
	defer registry.Close()

	e := api.NewRouter(api.Dependencies{
		Auth:          authService,
		Roles:         st.roles,
		Bootstrap:     bootstrapService,
		Policy:        policy,
		Audit:         dispatcher,
		Portal:        registry,
		Health:        map[string]handler.HealthCheck{cfg.StoreBackend: st.probe, "redis": redis.Probe(rdb)},
		AutoBootstrap: cfg.Bootstrap.AutoOnLogin,
		LoginPath:     cfg.Portal.LoginPath,
		UserHomePath:  cfg.Portal.UserHomePath,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Msg("adoption-api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().Msg("postgres schema applied")
		return &stores{
			users: postgres.NewUserRepository(pool),
			roles: postgres.NewRoleRepository(pool),
			audit: postgres.NewAuditRepository(pool),
			probe: pgProbe(pool),
			close: pool.Close,
		}, nil

	default:
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		users := mongo.NewUserRepository(db)
		roles := mongo.NewRoleRepository(db)
		if err := mongo.EnsureSchema(ctx, users, roles); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("mongo schema: %w", err)
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("mongo indexes and roles ensured")
		return &stores{
			users: users,
			roles: roles,
			audit: mongo.NewAuditRepository(db),
			probe: mongoProbe(client),
			close: func() { _ = client.Disconnect(context.Background()) },
		}, nil
	}
}

func pgProbe(pool *pgxpool.Pool) handler.HealthCheck {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

func mongoProbe(client *mongodriver.Client) handler.HealthCheck {
	return func(ctx context.Context) error { return client.Ping(ctx, nil) }
}
