package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"sentinelmesh/internal/alerts"
	"sentinelmesh/internal/metrics"
)

const (
	SubjectAlertsCreated = "created"
	SubjectAlertsUpdated = "updated"
)

// AlertMessage is the body published for alert changes.
type AlertMessage struct {
	Type      string        `json:"type"`
	Action    string        `json:"action,omitempty"`
	Alert     *alerts.Alert `json:"alert"`
	Timestamp time.Time     `json:"timestamp"`
}

// AlertNotifier publishes alert changes on <prefix>.created and <prefix>.updated.
// Failures are logged and counted, never returned.
type AlertNotifier struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func NewAlertNotifier(pub Publisher, prefix string, logger *slog.Logger) *AlertNotifier {
	if prefix == "" {
		prefix = "alerts"
	}
	return &AlertNotifier{pub: pub, prefix: prefix, logger: logger, now: time.Now}
}

func (n *AlertNotifier) AlertCreated(ctx context.Context, a *alerts.Alert) {
	n.publish(ctx, SubjectAlertsCreated, AlertMessage{Type: "alert.created", Alert: a})
}

func (n *AlertNotifier) AlertUpdated(ctx context.Context, a *alerts.Alert, action alerts.Action) {
	n.publish(ctx, SubjectAlertsUpdated, AlertMessage{Type: "alert.updated", Action: string(action), Alert: a})
}

func (n *AlertNotifier) publish(ctx context.Context, suffix string, msg AlertMessage) {
	subject := n.prefix + "." + suffix
	msg.Timestamp = n.now().UTC()
	data, err := json.Marshal(msg)
	if err == nil {
		err = n.pub.Publish(ctx, subject, data)
	}
	if err != nil {
		metrics.PublishErrors.WithLabelValues(subject).Inc()
		n.logger.Warn("publish alert notification", "err", err, "subject", subject, "alert_id", msg.Alert.ID)
	}
}
