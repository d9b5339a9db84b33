package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/codescan/internal/barcode"
	"github.com/MeKo-Tech/codescan/internal/batch"
	"github.com/MeKo-Tech/codescan/internal/objects"
	"github.com/MeKo-Tech/codescan/internal/pipeline"
)

// DefaultCapturePath is where the live viewer stores snapshots.
const DefaultCapturePath = "captured_image.jpg"

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{batch.FormatText, batch.FormatJSON, batch.FormatCSV}
	validBackends  = []string{objects.BackendONNX, objects.BackendObjectbox, objects.BackendNone}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	obj := objects.DefaultConfig()
	return Config{
		LogLevel: "info",
		Barcode: BarcodeConfig{
			Formats: []string{},
		},
		Objects: ObjectsConfig{
			Backend:      obj.Backend,
			ModelPath:    obj.ModelPath,
			InputSize:    obj.InputSize,
			Confidence:   float64(obj.Confidence),
			IoU:          float64(obj.IoU),
			ObjectboxURL: obj.ObjectboxURL,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			OverlayEnabled:  true,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
				MaxRequestsPerDay: 10000,
				MaxDataPerDayMB:   1024,
			},
		},
		Batch: BatchConfig{
			Workers: 4,
			Include: []string{},
			Exclude: []string{},
		},
		Output: OutputConfig{
			Format: batch.FormatText,
		},
		Live: LiveConfig{
			Confidence:  0.5,
			CapturePath: DefaultCapturePath,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if _, unknown := barcode.ParseFormats(c.Barcode.Formats); len(unknown) > 0 {
		return fmt.Errorf("unknown barcode formats: %s", strings.Join(unknown, ", "))
	}

	backend := strings.ToLower(c.Objects.Backend)
	if backend != "" && !slices.Contains(validBackends, backend) {
		return fmt.Errorf("%w: %q (must be one of: %s)", objects.ErrUnknownBackend, c.Objects.Backend, strings.Join(validBackends, ", "))
	}
	if err := validateThreshold(c.Objects.Confidence, "objects.confidence"); err != nil {
		return err
	}
	if err := validateThreshold(c.Objects.IoU, "objects.iou"); err != nil {
		return err
	}
	if backend == objects.BackendONNX && (c.Objects.InputSize <= 0 || c.Objects.InputSize%32 != 0) {
		return fmt.Errorf("invalid objects.input_size: %d (must be a positive multiple of 32)", c.Objects.InputSize)
	}
	if err := validateThreshold(c.Live.Confidence, "live.confidence"); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must not be negative)", c.Server.ShutdownTimeout)
	}
	rl := c.Server.RateLimit
	if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 || rl.MaxDataPerDayMB < 0 {
		return fmt.Errorf("invalid rate limit: limits must not be negative")
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	return nil
}

// ToPipelineConfig converts the config to the detection pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Objects = c.toObjectsConfig()

	formats, _ := barcode.ParseFormats(c.Barcode.Formats)
	cfg.Barcode = barcode.DecoderOptions{
		Backend: barcode.Options{
			Formats:   formats,
			TryHarder: c.Barcode.TryHarder,
		},
		Dedup:          c.Barcode.Dedup,
		ParallelPasses: c.Barcode.ParallelPasses,
	}
	cfg.DisableBarcodes = c.Barcode.Disabled
	if c.Batch.Workers > 0 {
		cfg.Parallel.MaxWorkers = c.Batch.Workers
	}
	return cfg
}

// ToBatchConfig converts the config to the scan command configuration.
func (c *Config) ToBatchConfig() *batch.Config {
	return &batch.Config{
		Pipeline:        c.ToPipelineConfig(),
		Recursive:       c.Batch.Recursive,
		IncludePatterns: c.Batch.Include,
		ExcludePatterns: c.Batch.Exclude,
		PageRange:       c.Batch.Pages,
		Workers:         c.Batch.Workers,
		ContinueOnError: c.Batch.ContinueOnError,
		OverlayDir:      c.Output.OverlayDir,
	}
}

func (c *Config) toObjectsConfig() objects.Config {
	return objects.Config{
		Backend:      strings.ToLower(c.Objects.Backend),
		ModelPath:    c.Objects.ModelPath,
		LabelsPath:   c.Objects.LabelsPath,
		LibraryPath:  c.Objects.LibraryPath,
		InputSize:    c.Objects.InputSize,
		Confidence:   float32(c.Objects.Confidence),
		IoU:          float32(c.Objects.IoU),
		NumThreads:   c.Objects.NumThreads,
		ObjectboxURL: c.Objects.ObjectboxURL,
	}
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
