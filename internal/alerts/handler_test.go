package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinelmesh/internal/auth"
	"sentinelmesh/internal/logging"
	"sentinelmesh/internal/storage"
)

type mockService struct {
	listFunc   func(ctx context.Context) ([]Alert, error)
	getFunc    func(ctx context.Context, id int64) (*Alert, error)
	updateFunc func(ctx context.Context, id int64, action, actor string) (*Alert, error)
}

func (m *mockService) ListAlerts(ctx context.Context) ([]Alert, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return []Alert{}, nil
}

func (m *mockService) GetAlert(ctx context.Context, id int64) (*Alert, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return nil, ErrNotFound
}

func (m *mockService) UpdateAlert(ctx context.Context, id int64, action, actor string) (*Alert, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, id, action, actor)
	}
	return nil, ErrNotFound
}

func asUser(r *http.Request, role auth.Role) *http.Request {
	return r.WithContext(auth.WithUser(r.Context(), &auth.User{Username: "alice", Role: role}))
}

func TestListHandler(t *testing.T) {
	svc := &mockService{listFunc: func(ctx context.Context) ([]Alert, error) {
		return []Alert{*newOpenAlert("brute_force_login", "1.2.3.4", t0)}, nil
	}}
	h := &ListHandler{Service: svc, Logger: logging.Discard()}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/alerts", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, asUser(httptest.NewRequest(http.MethodGet, "/alerts", nil), auth.RoleReadOnly))
	require.Equal(t, http.StatusOK, w.Code)
	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "brute_force_login", got[0]["rule"])
	assert.Equal(t, "open", got[0]["status"])
	assert.Nil(t, got[0]["acknowledged_at"])

	svc.listFunc = func(ctx context.Context) ([]Alert, error) {
		return nil, storage.Wrap("list", "alerts", errors.New("conn reset"))
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, asUser(httptest.NewRequest(http.MethodGet, "/alerts", nil), auth.RoleAdmin))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDetailHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		role       auth.Role
		update     func(ctx context.Context, id int64, action, actor string) (*Alert, error)
		wantStatus int
		wantActor  string
	}{
		{name: "get", method: http.MethodGet, target: "/api/v1/alerts/7", role: auth.RoleReadOnly, wantStatus: http.StatusOK},
		{name: "get unknown", method: http.MethodGet, target: "/api/v1/alerts/8", role: auth.RoleReadOnly, wantStatus: http.StatusNotFound},
		{name: "bad id", method: http.MethodGet, target: "/api/v1/alerts/abc", role: auth.RoleAdmin, wantStatus: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodDelete, target: "/alerts/7", role: auth.RoleAdmin, wantStatus: http.StatusMethodNotAllowed},
		{name: "read only cannot patch", method: http.MethodPatch, target: "/alerts/7", body: `{"action":"ack"}`, role: auth.RoleReadOnly, wantStatus: http.StatusForbidden},
		{name: "malformed body", method: http.MethodPatch, target: "/alerts/7", body: `{`, role: auth.RoleAnalyst, wantStatus: http.StatusBadRequest},
		{name: "patch with actor", method: http.MethodPatch, target: "/alerts/7", body: `{"action":"ack","actor":"web-ui"}`, role: auth.RoleAnalyst, wantStatus: http.StatusOK, wantActor: "web-ui"},
		{name: "patch defaults actor to user", method: http.MethodPatch, target: "/api/v1/alerts/7", body: `{"action":"close"}`, role: auth.RoleAdmin, wantStatus: http.StatusOK, wantActor: "alice"},
		{
			name: "invalid action", method: http.MethodPatch, target: "/alerts/7", body: `{"action":"escalate"}`, role: auth.RoleAnalyst,
			update: func(ctx context.Context, id int64, action, actor string) (*Alert, error) {
				_, err := ParseAction(action)
				return nil, err
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown alert", method: http.MethodPatch, target: "/alerts/99", body: `{"action":"ack"}`, role: auth.RoleAnalyst,
			update: func(ctx context.Context, id int64, action, actor string) (*Alert, error) {
				return nil, ErrNotFound
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "storage failure", method: http.MethodPatch, target: "/alerts/7", body: `{"action":"ack"}`, role: auth.RoleAnalyst,
			update: func(ctx context.Context, id int64, action, actor string) (*Alert, error) {
				return nil, storage.Wrap("update", "alerts", errors.New("deadlock"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotActor string
			svc := &mockService{
				getFunc: func(ctx context.Context, id int64) (*Alert, error) {
					if id != 7 {
						return nil, ErrNotFound
					}
					a := newOpenAlert("brute_force_login", "1.2.3.4", t0)
					a.ID = id
					return a, nil
				},
				updateFunc: func(ctx context.Context, id int64, action, actor string) (*Alert, error) {
					gotActor = actor
					if tt.update != nil {
						return tt.update(ctx, id, action, actor)
					}
					a := newOpenAlert("brute_force_login", "1.2.3.4", t0)
					a.ID = id
					return a, nil
				},
			}
			h := &DetailHandler{Service: svc, Logger: logging.Discard()}

			req := asUser(httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body)), tt.role)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantActor != "" {
				assert.Equal(t, tt.wantActor, gotActor)
			}
		})
	}
}
