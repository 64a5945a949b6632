package events

import "time"

// Type classifies a security event. Producers may send any string; the
// constants below are the kinds the producers in this deployment emit.
type Type string

const (
	TypeLoginFailed        Type = "login_failed"
	TypeLoginSuccess       Type = "login_success"
	TypeSignupSuccess      Type = "signup_success"
	TypeSignupConflict     Type = "signup_conflict"
	TypeInvalidToken       Type = "invalid_token"
	TypeInvalidTokenClaims Type = "invalid_token_claims"
	TypeMissingToken       Type = "missing_token"
)

var knownTypes = map[Type]struct{}{
	TypeLoginFailed:        {},
	TypeLoginSuccess:       {},
	TypeSignupSuccess:      {},
	TypeSignupConflict:     {},
	TypeInvalidToken:       {},
	TypeInvalidTokenClaims: {},
	TypeMissingToken:       {},
}

func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// SchemaVersion is the wire schema version producers send in "v".
const SchemaVersion = 1

// Event is immutable once appended.
type Event struct {
	ID         int64                  `json:"id"`
	Version    int                    `json:"v" validate:"gte=1"`
	OccurredAt time.Time              `json:"ts"`
	Service    string                 `json:"service" validate:"required,max=64"`
	Type       Type                   `json:"event" validate:"required,max=64"`
	SourceIP   string                 `json:"ip" validate:"required,max=64"`
	Path       string                 `json:"path" validate:"required,max=256"`
	UserID     *string                `json:"user_id"`
	Metadata   map[string]interface{} `json:"meta"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Filter drives the operator event query.
type Filter struct {
	SourceIP string
	Service  string
	Type     Type
	Since    time.Time
	Until    time.Time
	Limit    int
}

const (
	defaultListLimit = 200
	maxListLimit     = 1000
)

func (f Filter) limit() int {
	if f.Limit <= 0 || f.Limit > maxListLimit {
		return defaultListLimit
	}
	return f.Limit
}
