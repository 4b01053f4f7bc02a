// Package guard decides whether a protected page renders, waits or redirects,
// as a pure function of the authorization state.
package guard

import "github.com/pawhaven/adoption-portal/internal/core/domain"

const (
	DefaultLoginPath    = "/login"
	DefaultUserHomePath = "/user/profile"
)

// Action is what the caller should do with the protected subtree.
type Action int

const (
	Render Action = iota
	Loading
	Redirect
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is a guard verdict. Location is set only for Redirect.
type Decision struct {
	Action   Action
	Location string
}

// Guard is a capability check over the authorization state.
type Guard interface {
	Decide(state domain.AuthState) Decision
}

// Authenticated lets any signed-in identity through.
type Authenticated struct {
	LoginPath string
}

func (g Authenticated) Decide(state domain.AuthState) Decision {
	// Never redirect before the state is known.
	if !state.Resolved {
		return Decision{Action: Loading}
	}
	if state.Identity == nil {
		return Decision{Action: Redirect, Location: orDefault(g.LoginPath, DefaultLoginPath)}
	}
	return Decision{Action: Render}
}

// Admin lets only administrators through. Signed-in non-admins are routed to
// their own area rather than rejected.
type Admin struct {
	LoginPath    string
	UserHomePath string
}

func (g Admin) Decide(state domain.AuthState) Decision {
	d := Authenticated{LoginPath: g.LoginPath}.Decide(state)
	if d.Action != Render {
		return d
	}
	if !state.IsAdmin {
		return Decision{Action: Redirect, Location: orDefault(g.UserHomePath, DefaultUserHomePath)}
	}
	return Decision{Action: Render}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
