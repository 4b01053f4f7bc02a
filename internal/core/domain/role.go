package domain

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Role is a row of the roles relation.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"role_name"`
}

// RoleAssignment links a user to a role. Rows are never updated.
type RoleAssignment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GrantOutcome is the result of a successful role grant. Failures are
// reported as errors.
type GrantOutcome int

const (
	GrantInserted GrantOutcome = iota + 1
	GrantAlreadyPresent
)

func (o GrantOutcome) String() string {
	switch o {
	case GrantInserted:
		return "inserted"
	case GrantAlreadyPresent:
		return "already_present"
	default:
		return "unknown"
	}
}
