package domain

// Phase is the lifecycle position of the authorization state machine.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseAnonymous
	PhaseAuthenticatedPending
	PhaseAuthenticatedResolved
)

func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAuthenticatedPending:
		return "authenticated_pending"
	case PhaseAuthenticatedResolved:
		return "authenticated_resolved"
	default:
		return "unknown"
	}
}

// AuthState is the derived authorization view of one client session.
// Values are snapshots: Identity, IsAdmin and Resolved always describe the
// same moment. IsAdmin is never true while Resolved is false.
type AuthState struct {
	Identity *Identity `json:"user,omitempty"`
	IsAdmin  bool      `json:"is_admin"`
	Resolved bool      `json:"resolved"`
	Phase    Phase     `json:"-"`
	// Version increases with every transition.
	Version uint64 `json:"version"`
}

// Authenticated reports whether an identity is present.
func (s AuthState) Authenticated() bool {
	return s.Identity != nil
}

// Role returns "admin", "user" or "" for anonymous or unresolved states.
func (s AuthState) Role() string {
	switch {
	case !s.Resolved || s.Identity == nil:
		return ""
	case s.IsAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}
