package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"sentinelmesh/internal/auth"
	"sentinelmesh/internal/httputil"
	"sentinelmesh/internal/logging"
)

// Service is the alert side of the detection engine as seen by HTTP callers.
type Service interface {
	ListAlerts(ctx context.Context) ([]Alert, error)
	GetAlert(ctx context.Context, id int64) (*Alert, error)
	UpdateAlert(ctx context.Context, id int64, action, actor string) (*Alert, error)
}

type ListHandler struct {
	Service Service
	Logger  *slog.Logger
}

func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := auth.UserFromContext(r.Context()); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	list, err := h.Service.ListAlerts(r.Context())
	if err != nil {
		logging.WithContext(r.Context(), h.Logger).Error("list alerts", "err", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

type DetailHandler struct {
	Service Service
	Logger  *slog.Logger
}

func (h *DetailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	logger := logging.WithContext(r.Context(), h.Logger)

	// Path is /alerts/{id} or /api/v1/alerts/{id}
	id, err := strconv.ParseInt(path.Base(r.URL.Path), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	if r.Method == http.MethodGet {
		a, err := h.Service.GetAlert(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, logger, "get alert", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, a)
		return
	}

	if !user.Role.CanTriage() {
		httputil.WriteError(w, http.StatusForbidden, "role cannot update alerts")
		return
	}
	var payload struct {
		Action string `json:"action"`
		Actor  string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "malformed update payload")
		return
	}
	if payload.Actor == "" {
		payload.Actor = user.Username
	}
	a, err := h.Service.UpdateAlert(r.Context(), id, payload.Action, payload.Actor)
	if err != nil {
		h.writeServiceError(w, logger, "update alert", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *DetailHandler) writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "alert not found")
	case errors.Is(err, ErrInvalidAction):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error(op, "err", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
