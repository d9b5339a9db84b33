package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/codescan/internal/config"
	"github.com/MeKo-Tech/codescan/internal/server"
	"github.com/MeKo-Tech/codescan/internal/version"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP detection server",
	Long: `Start an HTTP server that detects objects and barcodes in uploaded images.

The server provides the following endpoints:
  POST /detect/   - Detect objects and barcodes in an uploaded image or PDF
  GET  /ws/detect - Stream frames over a websocket and receive detections
  GET  /health    - Health check endpoint
  GET  /info      - Pipeline and model information
  GET  /metrics   - Prometheus metrics

Examples:
  codescan serve
  codescan serve --port 8080
  codescan serve --host 0.0.0.0 --port 3000 --objects-backend none`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	applyServeFlags(cmd, cfg)
	applyDetectionFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	serverConfig := toServerConfig(cfg)
	srv, err := server.NewServer(serverConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer func() {
		slog.Info("Cleaning up server resources")
		if err := srv.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("Received shutdown signal")
	}()

	shutdown := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	return srv.ListenAndServe(ctx, serverConfig.Addr(), shutdown)
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	overrideString(cmd, "host", &cfg.Server.Host)
	overrideInt(cmd, "port", &cfg.Server.Port)
	overrideString(cmd, "cors-origin", &cfg.Server.CORSOrigin)
	overrideInt(cmd, "max-upload-size", &cfg.Server.MaxUploadMB)
	overrideInt(cmd, "timeout", &cfg.Server.TimeoutSec)
	overrideInt(cmd, "shutdown-timeout", &cfg.Server.ShutdownTimeout)
	overrideBool(cmd, "overlay-enable", &cfg.Server.OverlayEnabled)

	overrideBool(cmd, "rate-limit-enabled", &cfg.Server.RateLimit.Enabled)
	overrideInt(cmd, "requests-per-minute", &cfg.Server.RateLimit.RequestsPerMinute)
	overrideInt(cmd, "requests-per-hour", &cfg.Server.RateLimit.RequestsPerHour)
	overrideInt(cmd, "max-requests-per-day", &cfg.Server.RateLimit.MaxRequestsPerDay)
	overrideInt(cmd, "max-data-per-day", &cfg.Server.RateLimit.MaxDataPerDayMB)
}

func toServerConfig(cfg *config.Config) server.Config {
	s := cfg.Server
	return server.Config{
		Host:            s.Host,
		Port:            s.Port,
		CORSOrigin:      s.CORSOrigin,
		MaxUploadMB:     int64(s.MaxUploadMB),
		TimeoutSec:      s.TimeoutSec,
		ShutdownTimeout: s.ShutdownTimeout,
		OverlayEnabled:  s.OverlayEnabled,
		Version:         version.Version,
		PipelineConfig:  cfg.ToPipelineConfig(),
		RateLimit: server.RateLimitConfig{
			Enabled:           s.RateLimit.Enabled,
			RequestsPerMinute: s.RateLimit.RequestsPerMinute,
			RequestsPerHour:   s.RateLimit.RequestsPerHour,
			MaxRequestsPerDay: s.RateLimit.MaxRequestsPerDay,
			MaxDataPerDay:     int64(s.RateLimit.MaxDataPerDayMB) * 1024 * 1024,
		},
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origin")
	serveCmd.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("overlay-enable", true, "enable overlay image responses")
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 60, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 1000, "maximum requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 10000, "maximum requests per day per client")
	serveCmd.Flags().Int("max-data-per-day", 1024, "maximum data uploaded per day per client (MB)")
	addDetectionFlags(serveCmd)
}

