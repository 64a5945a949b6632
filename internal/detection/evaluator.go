package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sentinelmesh/internal/alerts"
	"sentinelmesh/internal/events"
)

type Decision string

const (
	DecisionSkipped        Decision = "skipped"
	DecisionBelowThreshold Decision = "below_threshold"
	DecisionSuppressed     Decision = "suppressed"
	DecisionRaceSuppressed Decision = "race_suppressed"
	DecisionAlerted        Decision = "alerted"
	DecisionError          Decision = "error"
)

// Outcome is the result of one rule against one event.
type Outcome struct {
	Rule     string
	Decision Decision
	Count    int
	Alert    *alerts.Alert
	Err      error
}

// Evaluator runs a single Rule against the event and alert stores.
type Evaluator struct {
	rule   Rule
	events events.Store
	alerts alerts.Store
	locker Locker
	now    func() time.Time
}

func NewEvaluator(rule Rule, eventStore events.Store, alertStore alerts.Store, locker Locker, now func() time.Time) *Evaluator {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if now == nil {
		now = time.Now
	}
	return &Evaluator{
		rule:   rule.clone(),
		events: eventStore,
		alerts: alertStore,
		locker: locker,
		now:    now,
	}
}

func (ev *Evaluator) Rule() Rule {
	return ev.rule.clone()
}

// Evaluate must run after e has been appended so that e itself is counted.
func (ev *Evaluator) Evaluate(ctx context.Context, e *events.Event) Outcome {
	out := Outcome{Rule: ev.rule.ID, Decision: DecisionSkipped}
	if !ev.rule.Matches(e.Type) {
		return out
	}

	windowEnd := e.OccurredAt
	windowStart := windowEnd.Add(-ev.rule.Window)

	unlock, err := ev.locker.Lock(ctx, ev.rule.ID+"|"+e.SourceIP)
	if err != nil {
		return ev.fail(out, "lock", err)
	}
	defer unlock()

	count, err := ev.events.CountInWindow(ctx, ev.rule.EventTypes, e.SourceIP, windowStart, windowEnd)
	if err != nil {
		return ev.fail(out, "count", err)
	}
	out.Count = count
	if count < ev.rule.Threshold {
		out.Decision = DecisionBelowThreshold
		return out
	}

	// Suppression keys off alert creation time, not the alert's own window,
	// so a sustained attack yields about one alert per window.
	_, err = ev.alerts.FindRecent(ctx, ev.rule.ID, e.SourceIP, windowStart)
	switch {
	case err == nil:
		out.Decision = DecisionSuppressed
		return out
	case !errors.Is(err, alerts.ErrNotFound):
		return ev.fail(out, "find recent alert", err)
	}

	first, last, err := ev.events.BoundsInWindow(ctx, ev.rule.EventTypes, e.SourceIP, windowStart, windowEnd)
	if err != nil {
		return ev.fail(out, "bounds", err)
	}

	now := ev.now().UTC()
	a := &alerts.Alert{
		Rule:          ev.rule.ID,
		Severity:      ev.rule.Severity,
		SourceIP:      e.SourceIP,
		WindowSeconds: int(ev.rule.Window / time.Second),
		Threshold:     ev.rule.Threshold,
		Count:         count,
		FirstSeen:     first,
		LastSeen:      last,
		Status:        alerts.StatusOpen,
		Metadata:      map[string]interface{}{"note": ev.rule.Note},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := ev.alerts.CreateIfNoRecent(ctx, a, windowStart); err != nil {
		if errors.Is(err, alerts.ErrRaceSuppressed) {
			out.Decision = DecisionRaceSuppressed
			return out
		}
		return ev.fail(out, "create alert", err)
	}
	out.Decision = DecisionAlerted
	out.Alert = a
	return out
}

func (ev *Evaluator) fail(out Outcome, step string, err error) Outcome {
	out.Decision = DecisionError
	out.Err = fmt.Errorf("rule %s: %s: %w", ev.rule.ID, step, err)
	return out
}
