package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/devrev/edgecdn/internal/metrics"
	"github.com/devrev/edgecdn/internal/middleware"
	"github.com/devrev/edgecdn/internal/util/workerpool"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HTTPServerConfig holds settings shared by the proxy and balancer servers
type HTTPServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// HTTPServer is a mux router behind the common middleware chain
type HTTPServer struct {
	router     *mux.Router
	httpServer *http.Server
	logger     *zap.Logger
}

func newHTTPServer(cfg *HTTPServerConfig, pool *workerpool.Pool, logger *zap.Logger, m *metrics.Metrics) *HTTPServer {
	router := mux.NewRouter()

	chain := []func(http.Handler) http.Handler{
		middleware.Recovery(logger),
		middleware.RequestID,
		middleware.Logging(logger, m),
	}
	if cfg.RateLimitRPS > 0 {
		chain = append(chain, middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger).Limit)
	}
	if pool != nil {
		chain = append(chain, middleware.Bounded(pool, logger))
	}
	router.Use(middleware.Chain(chain...))

	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = 60 * time.Second
	}
	read := cfg.ReadTimeout
	if read <= 0 {
		read = 15 * time.Second
	}

	return &HTTPServer{
		router: router,
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  read,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  idle,
		},
		logger: logger,
	}
}

// Handler returns the routed handler, for tests and embedding
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on lis until Shutdown
func (s *HTTPServer) Serve(lis net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", lis.Addr().String()))
	if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Start listens on the configured address and serves
func (s *HTTPServer) Start() error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(lis)
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// heartbeat answers liveness probes
func heartbeat(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
