// Package api exposes decisions and job execution over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/errors"
	"github.com/harunnryd/autosend/internal/jobs"
	"github.com/harunnryd/autosend/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type Executor interface {
	Decide(ctx context.Context, sc autosend.SendContext) autosend.Outcome
	ValidateAndExecute(ctx context.Context, jobID string) autosend.Outcome
}

type JobReader interface {
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, f jobs.Filter) ([]jobs.Job, error)
}

type ContextLoader interface {
	LoadSendContext(ctx context.Context, draftID string) (*autosend.SendContext, error)
}

// HealthFunc reports component health by name; a nil error is healthy.
type HealthFunc func(ctx context.Context) map[string]error

type Deps struct {
	Executor Executor
	Jobs     JobReader
	Loader   ContextLoader
	Health   HealthFunc
	// Uptime is reported on /health when set.
	Uptime func() time.Duration
	// ValidateImmediateSend applies to drafts decided by id.
	ValidateImmediateSend bool
}

type Server struct {
	deps   Deps
	mapper *errors.DefaultErrorMapper
}

func NewServer(deps Deps) *Server {
	return &Server{deps: deps, mapper: errors.NewDefaultErrorMapper()}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/decisions", s.handleDecide)
		r.Post("/drafts/{draftID}/decide", s.handleDecideDraft)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Get("/{jobID}", s.handleGetJob)
			r.Post("/{jobID}/execute", s.handleExecuteJob)
		})
	})
	return r
}

// requestID reuses the caller's X-Request-ID or mints a UUID, and carries it
// as the trace id.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		ctx := logger.WithTraceID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
		slog.DebugContext(ctx, "HTTP request", "method", r.Method, "path", r.URL.Path, "trace_id", id, "duration", time.Since(start))
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := s.mapper.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "trace_id", logger.GetTraceID(r.Context()), "error", err)
	}
	respondJSON(w, status, map[string]string{
		"error":    err.Error(),
		"category": s.mapper.Category(err),
	})
}
