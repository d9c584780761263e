package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-crawler/internal/crawler"
	"github.com/JakeFAU/product-crawler/internal/metrics"
)

// Progress reports which traversals are in flight and which have finished.
type Progress interface {
	Running() []string
	Completed() []crawler.Stats
}

// ProductCounter reports how many product pages a record store holds for a domain.
type ProductCounter interface {
	CountProducts(ctx context.Context, domain string) (int64, error)
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Running   []string       `json:"running"`
	Completed []DomainStatus `json:"completed"`
}

// DomainStatus is one finished traversal. StoredProducts is set when a record
// store is mirrored and could be queried.
type DomainStatus struct {
	crawler.Stats
	StoredProducts *int64 `json:"stored_products,omitempty"`
}

// Server wires HTTP handlers to crawl progress and the metrics registry.
type Server struct {
	router   chi.Router
	progress Progress
	counter  ProductCounter
	logger   *zap.Logger
	srv      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithProductCounter adds stored product counts to /v1/status.
func WithProductCounter(counter ProductCounter) Option {
	return func(s *Server) { s.counter = counter }
}

// NewServer constructs a Server with middleware and routes.
func NewServer(progress Progress, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		progress: progress,
		logger:   logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/v1/status", s.status)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background. It returns once the
// listener is bound so callers see address errors immediately.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
	s.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

// Shutdown stops a server started with Start. It is a no-op otherwise.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Running: []string{}, Completed: []DomainStatus{}}
	if s.progress != nil {
		if running := s.progress.Running(); running != nil {
			resp.Running = running
		}
		for _, stats := range s.progress.Completed() {
			resp.Completed = append(resp.Completed, DomainStatus{
				Stats:          stats,
				StoredProducts: s.storedProducts(r.Context(), stats.Domain),
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) storedProducts(ctx context.Context, domain string) *int64 {
	if s.counter == nil {
		return nil
	}
	n, err := s.counter.CountProducts(ctx, domain)
	if err != nil {
		s.logger.Warn("count stored products", zap.String("domain", domain), zap.Error(err))
		return nil
	}
	return &n
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
