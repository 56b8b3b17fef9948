// ABOUTME: HTTP gateway wiring the chi router, middleware, and request handlers
// ABOUTME: Owns the http.Server lifecycle for the serve command

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/lexgate/lex-gateway/internal/auth"
	"github.com/lexgate/lex-gateway/internal/backend"
	"github.com/lexgate/lex-gateway/internal/config"
	"github.com/lexgate/lex-gateway/internal/orchestrator"
	"github.com/lexgate/lex-gateway/internal/query"
	"github.com/lexgate/lex-gateway/internal/store"
)

// Gateway is the HTTP surface over the ask orchestrator and the
// feedback/saved-answer store.
type Gateway struct {
	gate         *auth.Gate
	orchestrator *orchestrator.Service
	store        store.Store
	searcher     backend.Searcher
	collections  map[query.Source]string
	limiter      *clientLimiter
	logger       *slog.Logger
	server       *http.Server
}

// New assembles the gateway. collections maps each configured corpus to its
// Qdrant collection, used by the health endpoint for document counts.
func New(cfg *config.Config, gate *auth.Gate, orch *orchestrator.Service, st store.Store, searcher backend.Searcher, collections map[query.Source]string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		gate:         gate,
		orchestrator: orch,
		store:        st,
		searcher:     searcher,
		collections:  collections,
		logger:       logger.With("component", "gateway"),
	}
	if cfg.RateLimit.Enabled {
		g.limiter = newClientLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	g.server = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Router builds the chi route tree. Exposed separately so tests can drive
// handlers through httptest without a listening server.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(g.requestID)
	r.Use(g.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", g.handleHealth)

		r.Group(func(r chi.Router) {
			if g.limiter != nil {
				r.Use(g.limiter.middleware)
			}
			r.Post("/ask", g.handleAsk)
		})

		r.Post("/feedback", g.handleFeedback)
		r.Get("/feedback", g.handleListFeedback)
		r.Post("/saved", g.handleSaveAnswer)
		r.Get("/saved", g.handleListSaved)
		r.Delete("/saved/{id}", g.handleDeleteSaved)
	})

	return r
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (g *Gateway) Start() error {
	g.logger.Info("http server listening", "addr", g.server.Addr)
	if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.limiter != nil {
		g.limiter.close()
	}
	return g.server.Shutdown(ctx)
}

// requestID tags each request with a fresh ID for log correlation.
func (g *Gateway) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(auth.WithRequestID(r.Context(), id)))
	})
}

func (g *Gateway) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		g.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", auth.RequestIDFromContext(r.Context()))
	})
}
