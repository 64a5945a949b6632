// Package engine ties the event log, the detection pipeline and the alert
// lifecycle together behind the operations exposed to producers and operators.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sentinelmesh/internal/alerts"
	"sentinelmesh/internal/detection"
	"sentinelmesh/internal/events"
	"sentinelmesh/internal/logging"
	"sentinelmesh/internal/metrics"
)

// Notifier is told about alert changes after they are committed. It must not
// block the caller for long and cannot fail the operation.
type Notifier interface {
	AlertCreated(ctx context.Context, a *alerts.Alert)
	AlertUpdated(ctx context.Context, a *alerts.Alert, action alerts.Action)
}

type nopNotifier struct{}

func (nopNotifier) AlertCreated(context.Context, *alerts.Alert)                {}
func (nopNotifier) AlertUpdated(context.Context, *alerts.Alert, alerts.Action) {}

type Options struct {
	// ListLimit caps ListAlerts; values outside 1..50 mean 50.
	ListLimit int
	Now       func() time.Time
	Notifier  Notifier
	Logger    *slog.Logger
}

type Service struct {
	events    events.Store
	alerts    alerts.Store
	pipeline  *detection.Pipeline
	lifecycle *alerts.Manager
	notifier  Notifier
	logger    *slog.Logger
	listLimit int
}

func NewService(eventStore events.Store, alertStore alerts.Store, pipeline *detection.Pipeline, opts Options) *Service {
	if opts.ListLimit <= 0 || opts.ListLimit > alerts.DefaultListLimit {
		opts.ListLimit = alerts.DefaultListLimit
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Service{
		events:    eventStore,
		alerts:    alertStore,
		pipeline:  pipeline,
		lifecycle: alerts.NewManager(alertStore, opts.Now),
		notifier:  opts.Notifier,
		logger:    opts.Logger,
		listLimit: opts.ListLimit,
	}
}

// Ingest stores e and runs detection on it. Once the event is stored the
// result reports Stored even if a rule fails; that failure is returned
// alongside so callers can log it.
func (s *Service) Ingest(ctx context.Context, e *events.Event) (events.IngestResult, error) {
	start := time.Now()
	defer func() { metrics.IngestDuration.Observe(time.Since(start).Seconds()) }()

	if _, err := s.events.Append(ctx, e); err != nil {
		result := "error"
		if events.IsValidation(err) {
			result = "invalid"
		}
		metrics.EventsIngested.WithLabelValues(typeLabel(e), result).Inc()
		return events.IngestResult{Stored: false}, fmt.Errorf("append event: %w", err)
	}
	metrics.EventsIngested.WithLabelValues(typeLabel(e), "stored").Inc()

	outcomes, err := s.pipeline.OnEvent(ctx, e)
	for _, out := range outcomes {
		switch out.Decision {
		case detection.DecisionAlerted:
			metrics.AlertsCreated.WithLabelValues(out.Rule).Inc()
			s.notifier.AlertCreated(ctx, out.Alert)
		case detection.DecisionSuppressed:
			metrics.AlertsSuppressed.WithLabelValues(out.Rule, "recent_alert").Inc()
		case detection.DecisionRaceSuppressed:
			metrics.AlertsSuppressed.WithLabelValues(out.Rule, "concurrent_alert").Inc()
		case detection.DecisionError:
			metrics.RuleErrors.WithLabelValues(out.Rule).Inc()
		}
	}
	if err != nil {
		return events.IngestResult{Stored: true}, fmt.Errorf("detect: %w", err)
	}
	return events.IngestResult{Stored: true}, nil
}

// ListAlerts returns the most recently created alerts first.
func (s *Service) ListAlerts(ctx context.Context) ([]alerts.Alert, error) {
	return s.alerts.List(ctx, s.listLimit)
}

func (s *Service) GetAlert(ctx context.Context, id int64) (*alerts.Alert, error) {
	return s.alerts.Get(ctx, id)
}

func (s *Service) UpdateAlert(ctx context.Context, id int64, action, actor string) (*alerts.Alert, error) {
	action = strings.TrimSpace(action)
	a, err := s.lifecycle.ApplyAction(ctx, id, action, actor)
	if err != nil {
		return nil, err
	}
	metrics.AlertActions.WithLabelValues(action).Inc()
	s.notifier.AlertUpdated(ctx, a, alerts.Action(action))
	logging.WithContext(ctx, s.logger).Info("alert updated", "id", a.ID, "action", action, "status", a.Status)
	return a, nil
}

func typeLabel(e *events.Event) string {
	if e != nil && e.Type.Known() {
		return string(e.Type)
	}
	return "other"
}
