// Package support holds the step definitions for the HTTP API feature suite.
// Every scenario runs against an in-process httptest server wrapping a real
// detection pipeline.
package support

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/MeKo-Tech/codescan/internal/objects"
	"github.com/MeKo-Tech/codescan/internal/pipeline"
	"github.com/MeKo-Tech/codescan/internal/server"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	serverConfig server.Config
	predictor    *stubPredictor
	app          *server.Server
	httpServer   *httptest.Server

	// Upload under test
	upload     []byte
	uploadName string

	// Last HTTP exchange
	lastStatus  int
	lastHeaders http.Header
	lastBody    []byte

	// Last websocket reply
	lastWS *server.WebSocketResponse
}

// NewTestContext returns a context with the default server configuration.
func NewTestContext() *TestContext {
	return &TestContext{
		serverConfig: server.Config{
			CORSOrigin:     "*",
			MaxUploadMB:    5,
			TimeoutSec:     10,
			OverlayEnabled: true,
			Version:        "integration",
		},
		predictor: &stubPredictor{},
	}
}

// Cleanup stops the server and releases the pipeline.
func (tc *TestContext) Cleanup() {
	if tc.httpServer != nil {
		tc.httpServer.Close()
		tc.httpServer = nil
	}
	if tc.app != nil {
		_ = tc.app.Close()
		tc.app = nil
	}
}

// startServer builds the pipeline and serves it with httptest.
func (tc *TestContext) startServer() error {
	pl, err := pipeline.NewBuilder().
		WithPredictor(tc.predictor).
		WithDedup(true).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	tc.app = server.NewServerWithDetector(tc.serverConfig, pl)
	tc.httpServer = httptest.NewServer(tc.app.Handler())
	return nil
}

func (tc *TestContext) url(path string) (string, error) {
	if tc.httpServer == nil {
		return "", fmt.Errorf("server is not running")
	}
	return tc.httpServer.URL + path, nil
}

// stubPredictor reports a fixed set of objects for every image.
type stubPredictor struct {
	mu      sync.Mutex
	objects []objects.Detection
}

func (p *stubPredictor) add(d objects.Detection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects = append(p.objects, d)
}

func (p *stubPredictor) Predict(context.Context, image.Image) ([]objects.Detection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]objects.Detection(nil), p.objects...), nil
}

func (p *stubPredictor) Close() error { return nil }
