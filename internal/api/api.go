// Package api exposes the grade pipeline over a JSON REST interface.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/codex-k8s/grades-mcp-server/internal/audit"
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/limits"
	"github.com/codex-k8s/grades-mcp-server/internal/pipeline"
	"github.com/codex-k8s/grades-mcp-server/internal/templates"
)

// Handler runs requests through the grade pipeline.
type Handler interface {
	Handle(ctx context.Context, req pipeline.Request) pipeline.Outcome
	HandleText(ctx context.Context, callerID int64, text, correlationID string) pipeline.Outcome
}

// Resolver loads a caller identity for GET /me.
type Resolver interface {
	Resolve(ctx context.Context, callerID int64) (domain.Identity, error)
}

// Options configures the API.
type Options struct {
	// BasePath is the mount prefix, e.g. "/api".
	BasePath string
	// Pipeline handles every grade request.
	Pipeline Handler
	// Resolver backs GET /me.
	Resolver Resolver
	// Limits admits callers; nil admits everything.
	Limits *limits.Store
	// Messages localizes responses produced outside the pipeline.
	Messages templates.Renderer
	// JWTSecret switches caller identification to HS256 bearer tokens.
	JWTSecret string
	// Audit records delete probes and admission refusals.
	Audit audit.Logger
	// Logger is used for request logs.
	Logger *slog.Logger
}

// Server serves the REST API.
type Server struct {
	opts   Options
	router chi.Router
}

// New validates opts and builds the router.
func New(opts Options) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("api: pipeline is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("api: resolver is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	opts.BasePath = strings.TrimRight(strings.TrimSpace(opts.BasePath), "/")
	s := &Server{opts: opts}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	mount := func(api chi.Router) {
		// Deletion is refused before identification or admission.
		api.Delete("/grades", s.deleteGrade)
		api.Delete("/grades/{id}", s.deleteGrade)

		api.Group(func(authed chi.Router) {
			authed.Use(s.identify)
			authed.Use(s.admit)

			authed.Post("/agent/chat", s.chat)
			authed.Get("/me", s.me)

			authed.Post("/grades", s.addGrade)
			authed.Get("/grades", s.queryGrades)
			authed.Patch("/grades/{id}", s.updateGrade)

			authed.Get("/summary", s.ownSummary)
			authed.Get("/students/{id}/summary", s.studentSummary)

			authed.Get("/classes/{id}/report", s.classReport)
			authed.Get("/classes/{id}/report.xlsx", s.classReportXLSX)
		})
	}
	if s.opts.BasePath == "" {
		r.Group(mount)
	} else {
		r.Route(s.opts.BasePath, mount)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Status: "error", Category: string(domain.CategoryNotFound), Message: "route not found"})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.opts.Logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"correlation_id", ww.Header().Get(headerCorrelationID),
		)
	})
}
