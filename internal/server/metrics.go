package server

import (
	"time"

	"github.com/MeKo-Tech/codescan/internal/barcode"
	"github.com/MeKo-Tech/codescan/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codescan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codescan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Detection metrics
	detectRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codescan_detect_requests_total",
			Help: "Total number of detection requests",
		},
		[]string{"source", "status"}, // source: http, pdf, websocket
	)

	detectDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codescan_detect_duration_seconds",
			Help:    "Detection duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	detectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codescan_detections_total",
			Help: "Total number of returned detections",
		},
		[]string{"type"}, // type: object, barcode
	)

	barcodePassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codescan_barcode_pass_duration_seconds",
			Help:    "Duration of a single barcode decoding pass",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"pass"},
	)

	barcodePassSymbols = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codescan_barcode_pass_symbols_total",
			Help: "Number of symbols found per decoding pass",
		},
		[]string{"pass"},
	)

	barcodePassFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codescan_barcode_pass_failures_total",
			Help: "Number of decoding passes that failed",
		},
		[]string{"pass"},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codescan_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // type: minute, hour, requests, data
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codescan_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codescan_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codescan_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

// observePass feeds decoder pass statistics into the pass metrics.
func observePass(pass barcode.Pass, symbols int, elapsed time.Duration, err error) {
	name := pass.String()
	barcodePassDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		barcodePassFailures.WithLabelValues(name).Inc()
		return
	}
	barcodePassSymbols.WithLabelValues(name).Add(float64(symbols))
}

func recordDetections(source string, elapsed time.Duration, detections []pipeline.Detection) {
	detectRequestsTotal.WithLabelValues(source, "success").Inc()
	detectDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	for _, d := range detections {
		detectionsTotal.WithLabelValues(d.Type).Inc()
	}
}
