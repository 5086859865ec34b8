// Package api exposes the suggestion engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/studio-suggest/internal/lifecycle"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

// Engine is the part of the lifecycle engine the API serves.
type Engine interface {
	Generate(ctx context.Context, sig model.Signal) (*lifecycle.GenerateResult, error)
	ProcessSignals(ctx context.Context, sigs []model.Signal) *lifecycle.Tally
	List(ctx context.Context, filter store.SuggestionFilter) ([]model.Suggestion, error)
	Get(ctx context.Context, id string) (*model.Suggestion, error)
	Preview(ctx context.Context, id string) (*model.Preview, error)
	Changes(ctx context.Context, id string) ([]model.ChangeRecord, error)
	Decide(ctx context.Context, id string, d model.Decision) (*model.Suggestion, error)
	BulkDecide(ctx context.Context, ids []string, d model.Decision) (*lifecycle.Tally, error)
	Apply(ctx context.Context, id string) (*lifecycle.ApplyResult, error)
	Rollback(ctx context.Context, id string) (*model.Suggestion, error)
	Stats(ctx context.Context) (*model.Stats, error)
	Patterns(ctx context.Context, filter store.PatternFilter) ([]model.Pattern, error)
	GenerateRules(ctx context.Context, minEvidence int) ([]model.Pattern, error)
}

// Options configures the router.
type Options struct {
	CORSOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Timeout bounds each request. Zero uses 30s.
	Timeout time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	engine Engine
}

// NewRouter builds the chi router for the engine.
func NewRouter(engine Engine, opts Options) http.Handler {
	s := &Server{engine: engine}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/signals", s.handleSignals)

		r.Route("/suggestions", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/bulk-decision", s.handleBulkDecision)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGet)
				r.Get("/preview", s.handlePreview)
				r.Get("/changes", s.handleChanges)
				r.Post("/decision", s.handleDecision)
				r.Post("/apply", s.handleApply)
				r.Post("/rollback", s.handleRollback)
			})
		})

		r.Get("/stats", s.handleStats)
		r.Get("/patterns", s.handlePatterns)
		r.Post("/rules/generate", s.handleGenerateRules)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
