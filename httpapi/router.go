// Package httpapi serves the task API over HTTP.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jonwraymond/todos/health"
	"github.com/jonwraymond/todos/observe"
)

// Config holds the router's collaborators.
type Config struct {
	Gate  Authorizer
	Tasks TaskService

	// Health, when set, is mounted at /healthz, /readyz and /health.
	Health *health.Aggregator

	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler

	Logger             observe.Logger
	CORSAllowedOrigins []string

	// ExposeAuthorizer mounts POST /authorize.
	ExposeAuthorizer bool
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	log := cfg.Logger.With(observe.Field{Key: "component", Value: "http"})

	r := chi.NewRouter()
	r.Use(withRequestID, withRecover(log), withCORS(cfg.CORSAllowedOrigins))

	if cfg.Health != nil {
		health.Mount(r, cfg.Health)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.ExposeAuthorizer {
		r.Post("/authorize", authorizeHandler(cfg.Gate))
	}

	h := &taskHandlers{svc: cfg.Tasks, log: log}
	r.Route("/todos", func(r chi.Router) {
		r.Use(requireAuth(cfg.Gate, log))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Patch("/{todoId}", h.update)
		r.Delete("/{todoId}", h.delete)
		r.Post("/{todoId}/attachment", h.uploadURL)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		WriteError(req.Context(), w, log, &AppError{Code: "ROUTE_NOT_FOUND", Message: "No such route.", Status: http.StatusNotFound})
	})
	return r
}
