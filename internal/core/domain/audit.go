package domain

import "time"

// Audit actions.
const (
	AuditSignIn    = "sign_in"
	AuditSignOut   = "sign_out"
	AuditBootstrap = "bootstrap_admin"
	AuditRegister  = "register"
)

// AuditEvent is a security-relevant fact about an identity.
type AuditEvent struct {
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
