package auth

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleAnalyst  Role = "analyst"
	RoleReadOnly Role = "read_only"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAnalyst, RoleReadOnly:
		return true
	}
	return false
}

// CanTriage reports whether the role may change alert state.
func (r Role) CanTriage() bool {
	return r == RoleAdmin || r == RoleAnalyst
}

// User is an operator of the alert console. Producers never authenticate as users.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
