// Package server exposes compile, lint, diff and history sessions over HTTP
// for the graph editor.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/querygraph/internal/config"
	"github.com/roach88/querygraph/internal/embedding"
	"github.com/roach88/querygraph/internal/history"
	"github.com/roach88/querygraph/internal/metrics"
	"github.com/roach88/querygraph/internal/store"
)

// Server serves the HTTP API. Loaded session histories are cached for the
// lifetime of the server.
type Server struct {
	store    *store.Store
	cfg      config.Config
	embedder embedding.Embedder
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	histories map[string]*history.History
}

// New creates a server. embedder may be nil; a nil logger uses slog.Default().
func New(st *store.Store, cfg config.Config, embedder embedding.Embedder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     st,
		cfg:       cfg,
		embedder:  embedder,
		logger:    logger,
		now:       time.Now,
		histories: make(map[string]*history.History),
	}
}

// SetClock replaces the clock handed to session histories.
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(s.instrument)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/compile", s.compile)
		r.Post("/lint", s.lint)
		r.Post("/diff", s.diff)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Get("/", s.listSessions)
			r.Get("/{sessionID}", s.getSession)
			r.Delete("/{sessionID}", s.deleteSession)
			r.Post("/{sessionID}/entries", s.addEntry)
			r.Get("/{sessionID}/entries", s.listEntries)
			r.Get("/{sessionID}/entries/{seq}", s.getEntry)
			r.Get("/{sessionID}/entries/{seq}/similar", s.similarEntries)
			r.Get("/{sessionID}/search", s.search)
		})
	})
	return router
}

// ListenAndServe serves until ctx is cancelled, then waits for pending
// embedding calls.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.wait()
	return err
}

// wait blocks until background work of all loaded histories is done.
func (s *Server) wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.histories {
		h.Wait()
	}
}

// sessionHistory returns the cached history for a session, loading it from
// the store on first use.
func (s *Server) sessionHistory(ctx context.Context, id string) (*history.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histories[id]; ok {
		return h, nil
	}
	h, err := s.store.LoadHistory(ctx, id, history.Options{
		Embedder: s.embedder,
		Viewport: history.Vec2{X: s.cfg.Viewport.Width, Y: s.cfg.Viewport.Height},
		Now:      s.now,
		Logger:   s.logger,
	})
	if err != nil {
		return nil, err
	}
	s.histories[id] = h
	return h, nil
}

func (s *Server) forgetSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, id)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		s.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
