// Package portal keeps one authorization state machine per browser visitor.
// Visitors are identified by the portal_visitor cookie and held in a bounded
// LRU; eviction or expiry closes the visitor's state machine.
package portal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pawhaven/adoption-portal/internal/core/authstate"
	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
	"github.com/pawhaven/adoption-portal/internal/infrastructure/credentials"
	"github.com/pawhaven/adoption-portal/internal/pkg/metrics"
)

const (
	CookieName = "portal_visitor"

	defaultRefreshLeeway = time.Minute
)

// Visitor is one browser's credential client and state machine.
type Visitor struct {
	ID      string
	Client  *credentials.Client
	Manager *authstate.Manager

	stopRefresh context.CancelFunc
}

func (v *Visitor) close() {
	v.stopRefresh()
	v.Manager.Close()
}

type Options struct {
	MaxVisitors   int
	IdleTTL       time.Duration
	RefreshLeeway time.Duration
	SecureCookie  bool
}

// Registry implements middleware.StateSource.
type Registry struct {
	ctx     context.Context
	backend ports.SessionBackend
	roles   ports.RoleChecker
	log     zerolog.Logger
	opts    Options

	mu    sync.Mutex // serialises get-or-create
	cache *expirable.LRU[string, *Visitor]
}

// NewRegistry creates a registry whose state machines live at most as long
// as ctx.
func NewRegistry(ctx context.Context, backend ports.SessionBackend, roles ports.RoleChecker, opts Options, log zerolog.Logger) *Registry {
	if opts.MaxVisitors <= 0 {
		opts.MaxVisitors = 10000
	}
	if opts.RefreshLeeway <= 0 {
		opts.RefreshLeeway = defaultRefreshLeeway
	}
	r := &Registry{
		ctx:     ctx,
		backend: backend,
		roles:   roles,
		log:     log.With().Str("component", "portal").Logger(),
		opts:    opts,
	}
	r.cache = expirable.NewLRU[string, *Visitor](opts.MaxVisitors, r.onEvict, opts.IdleTTL)
	return r
}

// onEvict runs under the LRU lock; it must not call back into the cache.
func (r *Registry) onEvict(id string, v *Visitor) {
	v.close()
	metrics.PortalVisitors.Dec()
	r.log.Debug().Str("visitor_id", id).Msg("visitor evicted")
}

// Visitor returns the live visitor for c, or nil.
func (r *Registry) Visitor(c echo.Context) *Visitor {
	id := visitorID(c)
	if id == "" {
		return nil
	}
	v, ok := r.cache.Get(id)
	if !ok {
		return nil
	}
	// Re-adding pushes the expiry back: the TTL counts idle time.
	r.cache.Add(id, v)
	return v
}

// Attach returns the visitor for c, creating it and setting the cookie when
// needed.
func (r *Registry) Attach(c echo.Context) (*Visitor, error) {
	if v := r.Visitor(c); v != nil {
		return v, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := visitorID(c)
	if v, ok := r.cache.Get(id); ok && id != "" {
		return v, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	v, err := r.newVisitor(id)
	if err != nil {
		return nil, err
	}
	r.cache.Add(id, v)
	metrics.PortalVisitors.Inc()

	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	c.Request().AddCookie(&http.Cookie{Name: CookieName, Value: id})
	return v, nil
}

func (r *Registry) newVisitor(id string) (*Visitor, error) {
	log := r.log.With().Str("visitor_id", id).Logger()
	client := credentials.NewClient(r.backend, log)
	mgr := authstate.NewManager(client, r.roles, log)
	if err := mgr.Start(r.ctx); err != nil {
		return nil, err
	}

	refreshCtx, cancel := context.WithCancel(r.ctx)
	go client.AutoRefresh(refreshCtx, r.opts.RefreshLeeway)

	return &Visitor{ID: id, Client: client, Manager: mgr, stopRefresh: cancel}, nil
}

// Forget drops the visitor behind c and closes its state machine.
func (r *Registry) Forget(c echo.Context) {
	if id := visitorID(c); id != "" {
		r.cache.Remove(id)
	}
}

// StateFor reports the visitor's authorization state. A browser without a
// live visitor has no session and is therefore anonymous.
func (r *Registry) StateFor(c echo.Context) domain.AuthState {
	if v := r.Visitor(c); v != nil {
		return v.Manager.State()
	}
	return domain.AuthState{Resolved: true, Phase: domain.PhaseAnonymous}
}

func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close evicts every visitor.
func (r *Registry) Close() {
	r.cache.Purge()
}

func visitorID(c echo.Context) string {
	ck, err := c.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}
