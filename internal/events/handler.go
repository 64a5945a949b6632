package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"sentinelmesh/internal/auth"
	"sentinelmesh/internal/httputil"
	"sentinelmesh/internal/logging"
)

// IngestResult is what producers learn about their submission.
type IngestResult struct {
	Stored bool `json:"stored"`
}

// Ingester stores an event and runs detection on it.
type Ingester interface {
	Ingest(ctx context.Context, e *Event) (IngestResult, error)
}

const maxIngestBody = 64 << 10

type IngestHandler struct {
	Ingester    Ingester
	Logger      *slog.Logger
	IngestToken string
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.IngestToken != "" {
		if r.Header.Get("X-Api-Key") != h.IngestToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}
	logger := logging.WithContext(r.Context(), h.Logger)

	var e Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody)).Decode(&e); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
			"stored": false,
			"error":  "malformed event payload",
		})
		return
	}

	res, err := h.Ingester.Ingest(r.Context(), &e)
	switch {
	case err == nil:
	case IsValidation(err):
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
			"stored": false,
			"error":  err.Error(),
		})
		return
	case res.Stored:
		// Detection failures never un-store the event.
		logger.Warn("detection failed for stored event", "err", err, "event_id", e.ID)
	default:
		logger.Error("ingest event", "err", err)
		httputil.WriteJSON(w, http.StatusInternalServerError, IngestResult{Stored: false})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type QueryHandler struct {
	Store  Store
	Logger *slog.Logger
}

func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := auth.UserFromContext(r.Context()); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	filter := Filter{
		SourceIP: q.Get("ip"),
		Service:  q.Get("service"),
		Type:     Type(q.Get("event")),
	}
	if sinceStr := q.Get("since"); sinceStr != "" {
		t, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = t
	}
	if untilStr := q.Get("until"); untilStr != "" {
		t, err := time.Parse(time.RFC3339, untilStr)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "until must be RFC 3339")
			return
		}
		filter.Until = t
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = l
		}
	}

	evts, err := h.Store.List(r.Context(), filter)
	if err != nil {
		logging.WithContext(r.Context(), h.Logger).Error("list events", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, evts)
}
