package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sentinelmesh/internal/alerts"
	"sentinelmesh/internal/auth"
	"sentinelmesh/internal/events"
	"sentinelmesh/internal/httputil"
)

// Engine is the detection engine as exposed over HTTP.
type Engine interface {
	events.Ingester
	alerts.Service
}

type Deps struct {
	Logger      *slog.Logger
	Auth        *auth.Service
	Engine      Engine
	Events      events.Store
	IngestToken string
	CORSOrigins []string
}

func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Auth
	mux.Handle("/api/v1/auth/login", auth.LoginHandler(d.Auth, d.Logger))

	// Events
	ingestHandler := &events.IngestHandler{
		Ingester:    d.Engine,
		Logger:      d.Logger,
		IngestToken: d.IngestToken,
	}
	mux.Handle("/ingest", ingestHandler)
	mux.Handle("/api/v1/ingest/events", ingestHandler)

	queryHandler := &events.QueryHandler{
		Store:  d.Events,
		Logger: d.Logger,
	}

	secured := auth.JWTMiddleware(d.Auth)
	mux.Handle("/api/v1/events", secured(queryHandler))

	// Alerts
	listHandler := secured(&alerts.ListHandler{
		Service: d.Engine,
		Logger:  d.Logger,
	})
	detailHandler := secured(&alerts.DetailHandler{
		Service: d.Engine,
		Logger:  d.Logger,
	})
	mux.Handle("/alerts", listHandler)
	mux.Handle("/api/v1/alerts", listHandler)
	mux.Handle("/alerts/", detailHandler)
	mux.Handle("/api/v1/alerts/", detailHandler)

	return withRequestID(withCORS(d.CORSOrigins, mux))
}
