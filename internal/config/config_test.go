package config

import (
	"testing"

	"github.com/MeKo-Tech/codescan/internal/barcode"
	"github.com/MeKo-Tech/codescan/internal/objects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, objects.BackendONNX, cfg.Objects.Backend)
	assert.Equal(t, 640, cfg.Objects.InputSize)
	assert.InDelta(t, 0.25, cfg.Objects.Confidence, 1e-6)
	assert.InDelta(t, 0.45, cfg.Objects.IoU, 1e-6)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Equal(t, DefaultCapturePath, cfg.Live.CapturePath)
	assert.False(t, cfg.Barcode.Dedup)
	assert.False(t, cfg.Server.RateLimit.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"output format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"barcode format", func(c *Config) { c.Barcode.Formats = []string{"qr", "maxicode"} }, "maxicode"},
		{"backend", func(c *Config) { c.Objects.Backend = "yolo" }, "unknown object detection backend"},
		{"confidence", func(c *Config) { c.Objects.Confidence = 1.5 }, "objects.confidence"},
		{"iou", func(c *Config) { c.Objects.IoU = -0.1 }, "objects.iou"},
		{"input size", func(c *Config) { c.Objects.InputSize = 100 }, "objects.input_size"},
		{"live confidence", func(c *Config) { c.Live.Confidence = 2 }, "live.confidence"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }, "invalid max upload size"},
		{"timeout", func(c *Config) { c.Server.TimeoutSec = -1 }, "invalid timeout"},
		{"rate limit", func(c *Config) { c.Server.RateLimit.RequestsPerMinute = -1 }, "invalid rate limit"},
		{"workers", func(c *Config) { c.Batch.Workers = 0 }, "invalid batch workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidate_InputSizeIgnoredForOtherBackends(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Objects.Backend = objects.BackendNone
	cfg.Objects.InputSize = 0
	assert.NoError(t, cfg.Validate())
}

func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Objects.Backend = "ObjectBox"
	cfg.Objects.ObjectboxURL = "http://box:8080"
	cfg.Objects.Confidence = 0.4
	cfg.Barcode.Formats = []string{"qr", "EAN-13"}
	cfg.Barcode.TryHarder = true
	cfg.Barcode.Dedup = true
	cfg.Barcode.ParallelPasses = true
	cfg.Batch.Workers = 3

	pc := cfg.ToPipelineConfig()
	assert.Equal(t, objects.BackendObjectbox, pc.Objects.Backend)
	assert.Equal(t, "http://box:8080", pc.Objects.ObjectboxURL)
	assert.InDelta(t, 0.4, pc.Objects.Confidence, 1e-6)
	assert.Equal(t, []barcode.Format{barcode.FormatQR, barcode.FormatEAN13}, pc.Barcode.Backend.Formats)
	assert.True(t, pc.Barcode.Backend.TryHarder)
	assert.True(t, pc.Barcode.Dedup)
	assert.True(t, pc.Barcode.ParallelPasses)
	assert.False(t, pc.DisableBarcodes)
	assert.Equal(t, 3, pc.Parallel.MaxWorkers)
}

func TestToBatchConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Batch.Recursive = true
	cfg.Batch.Include = []string{"*.png"}
	cfg.Batch.Exclude = []string{"tmp_*"}
	cfg.Batch.Pages = "1-3"
	cfg.Batch.ContinueOnError = true
	cfg.Output.OverlayDir = "out"

	bc := cfg.ToBatchConfig()
	assert.True(t, bc.Recursive)
	assert.Equal(t, []string{"*.png"}, bc.IncludePatterns)
	assert.Equal(t, []string{"tmp_*"}, bc.ExcludePatterns)
	assert.Equal(t, "1-3", bc.PageRange)
	assert.True(t, bc.ContinueOnError)
	assert.Equal(t, "out", bc.OverlayDir)
	assert.Equal(t, 4, bc.Workers)
	assert.Equal(t, objects.BackendONNX, bc.Pipeline.Objects.Backend)
}
