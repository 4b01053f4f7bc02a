// Package credentials is the client side of the credential store: it holds
// the current session of one visitor and notifies listeners when it changes.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
	"github.com/pawhaven/adoption-portal/internal/pkg/metrics"
)

const minRetryDelay = 5 * time.Second

// Client implements ports.CredentialStore on top of a SessionBackend.
type Client struct {
	backend ports.SessionBackend
	log     zerolog.Logger
	now     func() time.Time

	// emitMu orders notifications the same way the session changed.
	emitMu sync.Mutex

	mu        sync.Mutex
	session   *domain.Session
	listeners map[uint64]ports.SessionListener
	nextID    uint64
}

var _ ports.CredentialStore = (*Client)(nil)

func NewClient(backend ports.SessionBackend, log zerolog.Logger) *Client {
	return &Client{
		backend:   backend,
		log:       log.With().Str("component", "credentials").Logger(),
		now:       time.Now,
		listeners: make(map[uint64]ports.SessionListener),
	}
}

// Restore seeds a previously persisted session without notifying listeners.
func (c *Client) Restore(sess *domain.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = copySession(sess)
}

// AccessToken returns the current access token, or "" when signed out.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// CurrentSession returns the held session. An expired session is refreshed
// first; one the backend no longer accepts is dropped.
func (c *Client) CurrentSession(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	sess := copySession(c.session)
	c.mu.Unlock()

	if sess == nil || !sess.Expired(c.now()) {
		return sess, nil
	}

	refreshed, err := c.Refresh(ctx)
	if err != nil {
		if isRejected(err) {
			return nil, nil
		}
		return nil, err
	}
	return refreshed, nil
}

func (c *Client) OnSessionChange(listener ports.SessionListener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	sess, err := c.backend.SignIn(ctx, email, password)
	if err != nil {
		metrics.SignInsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.SignInsTotal.WithLabelValues("success").Inc()

	c.replace(domain.EventSignedIn, sess)
	return copySession(sess), nil
}

// SignOut drops the local session and tells listeners immediately. The
// backend is told afterwards; its error is returned but never restores the
// session.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	c.replace(domain.EventSignedOut, nil)

	if sess == nil {
		return nil
	}
	if err := c.backend.SignOut(ctx, sess.AccessToken); err != nil {
		if isRejected(err) {
			return nil
		}
		return fmt.Errorf("credentials: sign out: %w", err)
	}
	return nil
}

// Refresh exchanges the refresh token for a new token pair and emits
// TOKEN_REFRESHED. A rejected refresh token signs the client out.
func (c *Client) Refresh(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	sess := copySession(c.session)
	c.mu.Unlock()
	if sess == nil {
		return nil, domain.ErrInvalidToken
	}

	next, err := c.backend.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if isRejected(err) {
			c.log.Info().Err(err).Str("user_id", sess.Identity.ID).Msg("refresh rejected; signing out")
			c.replace(domain.EventSignedOut, nil)
		}
		return nil, err
	}

	c.replace(domain.EventTokenRefreshed, next)
	return copySession(next), nil
}

// AutoRefresh refreshes the session leeway before it expires until ctx is
// done. Transient failures are retried.
func (c *Client) AutoRefresh(ctx context.Context, leeway time.Duration) {
	timer := time.NewTimer(c.nextRefreshIn(leeway))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := c.nextRefreshIn(leeway)
		if c.hasSession() && wait <= 0 {
			if _, err := c.Refresh(ctx); err != nil && !isRejected(err) {
				c.log.Warn().Err(err).Msg("background refresh failed")
				wait = minRetryDelay
			} else {
				wait = c.nextRefreshIn(leeway)
			}
		}
		timer.Reset(wait)
	}
}

func (c *Client) hasSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

func (c *Client) nextRefreshIn(leeway time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.ExpiresAt.IsZero() {
		return minRetryDelay
	}
	return c.session.ExpiresAt.Add(-leeway).Sub(c.now())
}

// replace swaps the held session and notifies listeners outside the state
// lock, so a listener may call back into the client.
func (c *Client) replace(event domain.SessionEvent, sess *domain.Session) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	c.session = copySession(sess)
	listeners := make([]ports.SessionListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(event, copySession(sess))
	}
}

func copySession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func isRejected(err error) bool {
	return errors.Is(err, domain.ErrInvalidToken) || errors.Is(err, domain.ErrSessionRevoked)
}
