package alerts

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusClosed       Status = "closed"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Action string

const (
	ActionAck    Action = "ack"
	ActionClose  Action = "close"
	ActionReopen Action = "reopen"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionAck, ActionClose, ActionReopen:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Alert is created open by a rule evaluator and then moved through the
// lifecycle by operators. The *At/*By pairs are set only in their state.
type Alert struct {
	ID             int64                  `json:"id"`
	Rule           string                 `json:"rule"`
	Severity       Severity               `json:"severity"`
	SourceIP       string                 `json:"ip"`
	WindowSeconds  int                    `json:"window_seconds"`
	Threshold      int                    `json:"threshold"`
	Count          int                    `json:"count"`
	FirstSeen      time.Time              `json:"first_seen"`
	LastSeen       time.Time              `json:"last_seen"`
	Status         Status                 `json:"status"`
	AcknowledgedAt *time.Time             `json:"acknowledged_at"`
	AcknowledgedBy *string                `json:"acknowledged_by"`
	ClosedAt       *time.Time             `json:"closed_at"`
	ClosedBy       *string                `json:"closed_by"`
	Metadata       map[string]interface{} `json:"meta"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func (a Alert) clone() Alert {
	if a.Metadata != nil {
		meta := make(map[string]interface{}, len(a.Metadata))
		for k, v := range a.Metadata {
			meta[k] = v
		}
		a.Metadata = meta
	}
	a.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	a.ClosedAt = cloneTime(a.ClosedAt)
	a.AcknowledgedBy = cloneString(a.AcknowledgedBy)
	a.ClosedBy = cloneString(a.ClosedBy)
	return a
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
