// Package authstate holds the authorization state machine of one client
// session: who is signed in, and whether that identity is an administrator.
//
//	Unknown ──► Anonymous
//	   │
//	   └──────► AuthenticatedPending ──► AuthenticatedResolved{isAdmin}
//
// Anonymous and AuthenticatedResolved are stable until the credential store
// reports SIGNED_IN or SIGNED_OUT. Every role lookup is tagged with the
// generation and identity it was issued for; results that no longer match
// are discarded, so a slow lookup can never mark a later session as admin.
package authstate

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

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("authstate: already started")
	// ErrClosed is returned by Start and WaitResolved once the Manager is closed.
	ErrClosed = errors.New("authstate: closed")
)

// Manager owns the authorization state of one client session. Construct it
// with NewManager, call Start once, and Close it when the session ends.
type Manager struct {
	store ports.CredentialStore
	roles ports.RoleChecker
	log   zerolog.Logger

	mu          sync.Mutex
	state       domain.AuthState
	session     *domain.Session
	gen         uint64
	subs        map[uint64]chan domain.AuthState
	nextSub     uint64
	started     bool
	closed      bool
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewManager returns a Manager in the Unknown phase. Nothing happens until Start.
func NewManager(store ports.CredentialStore, roles ports.RoleChecker, log zerolog.Logger) *Manager {
	return &Manager{
		store: store,
		roles: roles,
		log:   log.With().Str("component", "authstate").Logger(),
		subs:  make(map[uint64]chan domain.AuthState),
		ctx:   context.Background(),
	}
}

// Start subscribes to session changes and runs the single existing-session
// check in the background. ctx bounds the lifetime of background lookups.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	// Subscribe before the check so no notification can slip between them.
	unsubscribe := m.store.OnSessionChange(m.handleSessionChange)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	m.unsubscribe = unsubscribe
	gen := m.gen
	m.mu.Unlock()

	go m.checkExistingSession(gen)
	return nil
}

// Close releases the session-change subscription, cancels in-flight lookups
// and closes all subscriber channels. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe, cancel := m.unsubscribe, m.cancel
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
}

// State returns a consistent snapshot of the current authorization state.
func (m *Manager) State() domain.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot(m.state)
}

// Session returns a copy of the current session reference, or nil.
func (m *Manager) Session() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// SignIn delegates to the credential store. It does not transition the state
// itself: the SIGNED_IN notification that follows drives role resolution.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if _, err := m.store.SignInWithPassword(ctx, email, password); err != nil {
		m.log.Info().Err(err).Str("email", email).Msg("sign in rejected")
		return fmt.Errorf("%w: %w", domain.ErrAuthFailure, err)
	}
	return nil
}

// SignOut delegates to the credential store and then forces the anonymous
// state, whether or not the store succeeded or has notified yet.
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.store.SignOut(ctx)

	m.mu.Lock()
	if !m.closed {
		m.signOutLocked()
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Warn().Err(err).Msg("credential store sign out failed; local state cleared")
		return fmt.Errorf("authstate: sign out: %w", err)
	}
	return nil
}

// Reresolve issues a fresh role lookup for the current identity, for example
// after its role assignments changed. It is a no-op when nobody is signed in.
func (m *Manager) Reresolve() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.started || m.session == nil || m.state.Identity == nil {
		return
	}
	m.beginResolutionLocked(m.session)
}

// Subscribe returns a channel carrying the latest state. The current state is
// delivered immediately; intermediate states may be skipped when the reader
// falls behind. The channel is closed by cancel or Close.
func (m *Manager) Subscribe() (<-chan domain.AuthState, func()) {
	ch := make(chan domain.AuthState, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- snapshot(m.state)
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// WaitResolved blocks until the state is resolved or ctx is done.
func (m *Manager) WaitResolved(ctx context.Context) (domain.AuthState, error) {
	ch, cancel := m.Subscribe()
	defer cancel()

	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return m.State(), ErrClosed
			}
			if st.Resolved {
				return st, nil
			}
		case <-ctx.Done():
			return m.State(), ctx.Err()
		}
	}
}

func (m *Manager) checkExistingSession(gen uint64) {
	sess, err := m.store.CurrentSession(m.ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("existing session check failed; treating visitor as anonymous")
		sess = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.gen != gen {
		// A session notification arrived first and already decided the state.
		return
	}
	if sess == nil {
		m.log.Debug().Msg("no existing session")
		m.transitionLocked(domain.AuthState{Resolved: true, Phase: domain.PhaseAnonymous})
		return
	}
	m.log.Debug().Str("user_id", sess.Identity.ID).Msg("existing session found")
	m.beginResolutionLocked(sess)
}

func (m *Manager) handleSessionChange(event domain.SessionEvent, sess *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.started {
		return
	}

	m.log.Debug().Str("event", string(event)).Msg("session change")

	switch event {
	case domain.EventSignedIn:
		if sess == nil {
			m.log.Warn().Msg("SIGNED_IN without a session ignored")
			return
		}
		m.beginResolutionLocked(sess)
	case domain.EventSignedOut:
		m.signOutLocked()
	case domain.EventTokenRefreshed:
		if sess == nil {
			return
		}
		if m.state.Identity != nil && m.state.Identity.ID == sess.Identity.ID {
			cp := *sess
			m.session = &cp
			return
		}
		// A refresh that changes who is signed in cannot keep the old verdict.
		m.log.Warn().Str("user_id", sess.Identity.ID).Msg("token refresh changed identity; re-resolving")
		m.beginResolutionLocked(sess)
	default:
		m.log.Debug().Str("event", string(event)).Msg("session event ignored")
	}
}

// beginResolutionLocked enters AuthenticatedPending for sess and launches a
// role lookup tagged with a new generation.
func (m *Manager) beginResolutionLocked(sess *domain.Session) {
	m.gen++
	gen := m.gen
	cp := *sess
	m.session = &cp
	id := cp.Identity

	m.transitionLocked(domain.AuthState{Identity: &id, Phase: domain.PhaseAuthenticatedPending})
	go m.resolveRole(gen, id)
}

func (m *Manager) resolveRole(gen uint64, id domain.Identity) {
	start := time.Now()
	isAdmin, err := m.lookup(id.ID)
	metrics.RoleLookupDuration.Observe(time.Since(start).Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.gen != gen || m.state.Identity == nil || m.state.Identity.ID != id.ID {
		metrics.RoleLookupsTotal.WithLabelValues("stale").Inc()
		m.log.Debug().Str("user_id", id.ID).Msg("stale role lookup result discarded")
		return
	}

	result := "user"
	if err != nil {
		result = "error"
		isAdmin = false
		m.log.Warn().Err(err).Str("user_id", id.ID).Msg("role lookup failed; resolving as non-admin")
	} else if isAdmin {
		result = "admin"
	}
	metrics.RoleLookupsTotal.WithLabelValues(result).Inc()

	m.transitionLocked(domain.AuthState{
		Identity: &id,
		IsAdmin:  isAdmin,
		Resolved: true,
		Phase:    domain.PhaseAuthenticatedResolved,
	})
}

func (m *Manager) lookup(userID string) (isAdmin bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			isAdmin, err = false, fmt.Errorf("authstate: role lookup panicked: %v", r)
		}
	}()
	return m.roles.HasRole(m.ctx, userID, domain.RoleAdmin)
}

func (m *Manager) signOutLocked() {
	m.gen++
	m.session = nil
	if m.state.Phase == domain.PhaseAnonymous {
		return
	}
	m.transitionLocked(domain.AuthState{Resolved: true, Phase: domain.PhaseAnonymous})
}

func (m *Manager) transitionLocked(next domain.AuthState) {
	next.Version = m.state.Version + 1
	m.state = next
	metrics.AuthStateTransitionsTotal.WithLabelValues(next.Phase.String()).Inc()

	snap := snapshot(next)
	for _, ch := range m.subs {
		// Latest wins: replace an unread state instead of blocking.
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func snapshot(st domain.AuthState) domain.AuthState {
	if st.Identity != nil {
		id := *st.Identity
		st.Identity = &id
	}
	return st
}
