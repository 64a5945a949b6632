package alerts

import (
	"context"
	"strings"
	"time"
)

// DefaultActor is recorded when a caller does not identify itself.
const DefaultActor = "web-ui"

// Manager applies operator actions to stored alerts.
type Manager struct {
	store Store
	now   func() time.Time
}

func NewManager(store Store, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, now: now}
}

// ApplyAction runs action against alert id. Transitions do not depend on the
// current status; every call re-stamps the fields it owns and updated_at.
func (m *Manager) ApplyAction(ctx context.Context, id int64, action, actor string) (*Alert, error) {
	act, err := ParseAction(strings.TrimSpace(action))
	if err != nil {
		return nil, err
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = DefaultActor
	}

	return m.store.Update(ctx, id, func(a *Alert) error {
		ts := m.now().UTC()
		// updated_at must advance on every action, even with a coarse clock.
		if !ts.After(a.UpdatedAt) {
			ts = a.UpdatedAt.Add(time.Microsecond)
		}
		switch act {
		case ActionAck:
			a.Status = StatusAcknowledged
			a.AcknowledgedAt = &ts
			a.AcknowledgedBy = &actor
		case ActionClose:
			a.Status = StatusClosed
			a.ClosedAt = &ts
			a.ClosedBy = &actor
		case ActionReopen:
			a.Status = StatusOpen
			a.AcknowledgedAt, a.AcknowledgedBy = nil, nil
			a.ClosedAt, a.ClosedBy = nil, nil
		}
		a.UpdatedAt = ts
		return nil
	})
}
