package prometheus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/peppidesu/landmower/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 10 * time.Second
	defaultPort       = 9090
)

// Server exposes /metrics for Prometheus scraping on its own listener, kept
// apart from the public API port.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the scrape endpoint from application config.
func NewServer(cfg config.PrometheusConfig, logger *zap.Logger) *Server {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
			WriteTimeout:      writeTimeout,
		},
		logger: logger,
	}
}

// Start serves the endpoint in the background. Listen failures are logged
// rather than fatal.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Prometheus metrics server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Prometheus metrics server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the endpoint, waiting for in-flight scrapes up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
