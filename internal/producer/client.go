// Package producer is the client services use to report security events to
// the ingest endpoint.
package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sentinelmesh/internal/events"
)

const unknown = "unknown"

// Event is what a producer knows about an occurrence; the client fills in
// the schema version, timestamp and service name.
type Event struct {
	Type   events.Type
	IP     string
	Path   string
	UserID *string
	Meta   map[string]interface{}
}

type Client struct {
	baseURL string
	service string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

func New(baseURL, service, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		service: service,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: time.Second},
		logger:  logger,
		now:     time.Now,
	}
}

// Send posts ev to /ingest and reports whether it was stored.
func (c *Client) Send(ctx context.Context, ev Event) error {
	payload := events.Event{
		Version:    events.SchemaVersion,
		OccurredAt: c.now().UTC(),
		Service:    c.service,
		Type:       ev.Type,
		SourceIP:   orUnknown(ev.IP),
		Path:       orUnknown(ev.Path),
		UserID:     ev.UserID,
		Metadata:   ev.Meta,
	}
	if payload.Metadata == nil {
		payload.Metadata = map[string]interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	var res events.IngestResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&res); err != nil && resp.StatusCode == http.StatusOK {
		return fmt.Errorf("decode ingest response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !res.Stored {
		return fmt.Errorf("ingest rejected event: status %d", resp.StatusCode)
	}
	return nil
}

// Emit is Send for callers that must not fail because reporting did.
func (c *Client) Emit(ctx context.Context, ev Event) {
	if err := c.Send(ctx, ev); err != nil {
		c.logger.Warn("emit security event", "err", err, "event", string(ev.Type))
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}
