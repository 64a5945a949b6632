package detection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sentinelmesh/internal/alerts"
	"sentinelmesh/internal/events"
	"sentinelmesh/internal/logging"
)

type Options struct {
	// Locker serializes evaluation per rule and source ip. Defaults to an
	// in-process KeyedMutex.
	Locker Locker
	Now    func() time.Time
	Logger *slog.Logger
}

// Pipeline fans each event out to the rules interested in its type.
type Pipeline struct {
	evaluators []*Evaluator
	byType     map[events.Type][]*Evaluator
	logger     *slog.Logger
}

func NewPipeline(rules []Rule, eventStore events.Store, alertStore alerts.Store, opts Options) (*Pipeline, error) {
	if opts.Locker == nil {
		opts.Locker = NewKeyedMutex()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	p := &Pipeline{
		byType: make(map[events.Type][]*Evaluator),
		logger: opts.Logger,
	}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule %q: duplicate id", r.ID)
		}
		seen[r.ID] = true

		ev := NewEvaluator(r, eventStore, alertStore, opts.Locker, opts.Now)
		p.evaluators = append(p.evaluators, ev)
		for _, t := range r.EventTypes {
			if containsEvaluator(p.byType[t], ev) {
				continue
			}
			p.byType[t] = append(p.byType[t], ev)
		}
	}
	return p, nil
}

// Rules returns the registered rules in evaluation order.
func (p *Pipeline) Rules() []Rule {
	out := make([]Rule, len(p.evaluators))
	for i, ev := range p.evaluators {
		out[i] = ev.Rule()
	}
	return out
}

// OnEvent evaluates every interested rule in registration order. A failing
// rule does not stop the others; the first error is returned once all ran.
func (p *Pipeline) OnEvent(ctx context.Context, e *events.Event) ([]Outcome, error) {
	interested := p.byType[e.Type]
	outcomes := make([]Outcome, 0, len(interested))
	var firstErr error
	for _, ev := range interested {
		out := ev.Evaluate(ctx, e)
		switch out.Decision {
		case DecisionError:
			p.logger.Error("rule evaluation failed", "err", out.Err, "rule", out.Rule, "ip", e.SourceIP, "event_id", e.ID)
			if firstErr == nil {
				firstErr = out.Err
			}
		case DecisionAlerted:
			p.logger.Info("alert created", "id", out.Alert.ID, "rule", out.Rule, "ip", e.SourceIP, "count", out.Count)
		case DecisionSuppressed, DecisionRaceSuppressed:
			p.logger.Debug("alert suppressed", "rule", out.Rule, "ip", e.SourceIP, "reason", string(out.Decision))
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, firstErr
}

func containsEvaluator(list []*Evaluator, ev *Evaluator) bool {
	for _, x := range list {
		if x == ev {
			return true
		}
	}
	return false
}
