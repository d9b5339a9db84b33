package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/codescan/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// detector defines the methods needed by the server from a pipeline.
type detector interface {
	Detect(ctx context.Context, img image.Image) (*pipeline.Response, error)
	DetectPDF(ctx context.Context, filename string, pageRange string) (*pipeline.PDFResult, error)
	Info() map[string]any
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	detector       detector
	corsOrigin     string
	maxUploadMB    int64
	timeout        time.Duration
	overlayEnabled bool
	rateLimiter    *RateLimiter
	version        string
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	ShutdownTimeout int
	OverlayEnabled  bool
	Version         string
	PipelineConfig  pipeline.Config
	RateLimit       RateLimitConfig
}

// RateLimitConfig holds per-client limits. MaxDataPerDay is in bytes.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewServer builds the detection pipeline from config and wraps it.
func NewServer(config Config) (*Server, error) {
	pl, err := pipeline.NewBuilder().
		WithConfig(config.PipelineConfig).
		WithPassObserver(observePass).
		Build()
	if err != nil {
		return nil, err
	}
	return NewServerWithDetector(config, pl), nil
}

// NewServerWithDetector creates a server around an existing pipeline.
func NewServerWithDetector(config Config, det detector) *Server {
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 50
	}
	if config.TimeoutSec <= 0 {
		config.TimeoutSec = 30
	}
	s := &Server{
		detector:       det,
		corsOrigin:     config.CORSOrigin,
		maxUploadMB:    config.MaxUploadMB,
		timeout:        time.Duration(config.TimeoutSec) * time.Second,
		overlayEnabled: config.OverlayEnabled,
		version:        config.Version,
	}
	if rl := config.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.detector != nil {
		return s.detector.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	detect := s.corsMiddleware(s.rateLimitMiddleware(s.detectHandler))
	mux.HandleFunc("/detect", detect)
	mux.HandleFunc("/detect/", detect)
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/info", s.corsMiddleware(s.infoHandler))
	mux.HandleFunc("/ws/detect", s.rateLimitMiddleware(s.detectWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.timeout,
		WriteTimeout:      s.timeout + 5*time.Second,
	}

	if s.rateLimiter != nil {
		go s.pruneClients(ctx, 10*time.Minute, 24*time.Hour)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting detection server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("HTTP server shutdown completed")
	return nil
}

// pruneClients drops idle rate limiter entries until ctx is done.
func (s *Server) pruneClients(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.rateLimiter.Prune(idle); n > 0 {
				slog.Debug("Pruned idle rate limit entries", "count", n)
			}
		}
	}
}
