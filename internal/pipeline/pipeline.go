package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/codescan/internal/barcode"
	"github.com/MeKo-Tech/codescan/internal/objects"
)

// Config holds configuration for the detection pipeline and its components.
type Config struct {
	Objects objects.Config
	Barcode barcode.DecoderOptions

	// DisableBarcodes skips the barcode stage entirely.
	DisableBarcodes bool

	Parallel ParallelConfig
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		Objects:  objects.DefaultConfig(),
		Parallel: DefaultParallelConfig(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg       Config
	predictor objects.Predictor
	backend   barcode.Backend
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithObjectBackend selects the object detection backend ("onnx",
// "objectbox" or "none").
func (b *Builder) WithObjectBackend(name string) *Builder {
	if name != "" {
		b.cfg.Objects.Backend = name
	}
	return b
}

// WithModelPath overrides the object detection model path.
func (b *Builder) WithModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Objects.ModelPath = path
	}
	return b
}

// WithLabelsPath sets a class names file for the model.
func (b *Builder) WithLabelsPath(path string) *Builder {
	b.cfg.Objects.LabelsPath = path
	return b
}

// WithLibraryPath sets the ONNX Runtime shared library location.
func (b *Builder) WithLibraryPath(path string) *Builder {
	b.cfg.Objects.LibraryPath = path
	return b
}

// WithObjectThresholds sets the confidence and NMS IoU thresholds.
func (b *Builder) WithObjectThresholds(confidence, iou float32) *Builder {
	if confidence > 0 {
		b.cfg.Objects.Confidence = confidence
	}
	if iou > 0 {
		b.cfg.Objects.IoU = iou
	}
	return b
}

// WithInputSize sets the square model input size.
func (b *Builder) WithInputSize(size int) *Builder {
	if size > 0 {
		b.cfg.Objects.InputSize = size
	}
	return b
}

// WithThreads sets the intra-op thread count of the model session.
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.Objects.NumThreads = n
	}
	return b
}

// WithObjectboxURL sets the objectbox service address.
func (b *Builder) WithObjectboxURL(url string) *Builder {
	if url != "" {
		b.cfg.Objects.ObjectboxURL = url
	}
	return b
}

// WithPredictor uses p instead of creating one from the configuration.
func (b *Builder) WithPredictor(p objects.Predictor) *Builder {
	b.predictor = p
	return b
}

// WithBarcodeBackend uses backend for every decoder pass.
func (b *Builder) WithBarcodeBackend(backend barcode.Backend) *Builder {
	b.backend = backend
	return b
}

// WithBarcodeFormats restricts decoding to the given symbologies.
func (b *Builder) WithBarcodeFormats(formats []barcode.Format) *Builder {
	b.cfg.Barcode.Backend.Formats = formats
	return b
}

// WithTryHarder enables the slower exhaustive barcode search.
func (b *Builder) WithTryHarder(enabled bool) *Builder {
	b.cfg.Barcode.Backend.TryHarder = enabled
	return b
}

// WithDedup removes repeated barcodes across decoder passes.
func (b *Builder) WithDedup(enabled bool) *Builder {
	b.cfg.Barcode.Dedup = enabled
	return b
}

// WithParallelPasses runs the decoder passes concurrently.
func (b *Builder) WithParallelPasses(enabled bool) *Builder {
	b.cfg.Barcode.ParallelPasses = enabled
	return b
}

// WithPassObserver registers a callback invoked after every decoder pass.
func (b *Builder) WithPassObserver(obs barcode.PassObserver) *Builder {
	b.cfg.Barcode.Observer = obs
	return b
}

// WithBarcodes enables or disables the barcode stage.
func (b *Builder) WithBarcodes(enabled bool) *Builder {
	b.cfg.DisableBarcodes = !enabled
	return b
}

// WithParallelWorkers sets the number of workers for multi-image runs.
func (b *Builder) WithParallelWorkers(workers int) *Builder {
	if workers > 0 {
		b.cfg.Parallel.MaxWorkers = workers
	}
	return b
}

// WithProgressCallback sets the progress callback for multi-image runs.
func (b *Builder) WithProgressCallback(callback ProgressCallback) *Builder {
	b.cfg.Parallel.ProgressCallback = callback
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration. An injected predictor skips the
// object backend checks.
func (b *Builder) Validate() error {
	if b.predictor == nil {
		if err := b.cfg.Objects.Validate(); err != nil {
			return fmt.Errorf("objects: %w", err)
		}
	}
	if b.cfg.Parallel.MaxWorkers < 0 {
		return errors.New("parallel workers must be >= 0")
	}
	return nil
}

// Pipeline runs object detection followed by the multi-pass barcode decoder.
// It is safe for concurrent use.
type Pipeline struct {
	cfg       Config
	Predictor objects.Predictor
	Decoder   *barcode.Decoder
}

// Build initializes the pipeline components.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	pred := b.predictor
	if pred == nil {
		var err error
		pred, err = objects.New(b.cfg.Objects)
		if err != nil {
			return nil, fmt.Errorf("init object predictor: %w", err)
		}
	}

	dec, err := barcode.NewDecoder(b.backend, b.cfg.Barcode)
	if err != nil {
		_ = pred.Close()
		return nil, fmt.Errorf("init barcode decoder: %w", err)
	}

	slog.Debug("Pipeline built",
		"object_backend", b.cfg.Objects.Backend,
		"barcodes", !b.cfg.DisableBarcodes,
		"dedup", b.cfg.Barcode.Dedup,
		"parallel_passes", b.cfg.Barcode.ParallelPasses)

	return &Pipeline{cfg: b.cfg, Predictor: pred, Decoder: dec}, nil
}

// Close releases all resources.
func (p *Pipeline) Close() error {
	if p == nil || p.Predictor == nil {
		return nil
	}
	err := p.Predictor.Close()
	p.Predictor = nil
	return err
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Info returns a map with key pipeline properties.
func (p *Pipeline) Info() map[string]any {
	formats := make([]string, 0, len(p.cfg.Barcode.Backend.Formats))
	for _, f := range p.cfg.Barcode.Backend.Formats {
		formats = append(formats, f.String())
	}
	passes := make([]string, 0, len(barcode.Passes))
	for _, ps := range barcode.Passes {
		passes = append(passes, ps.String())
	}
	return map[string]any{
		"objects": map[string]any{
			"backend":    p.cfg.Objects.Backend,
			"model_path": p.cfg.Objects.ModelPath,
			"confidence": p.cfg.Objects.Confidence,
			"iou":        p.cfg.Objects.IoU,
			"input_size": p.cfg.Objects.InputSize,
		},
		"barcode": map[string]any{
			"enabled":         !p.cfg.DisableBarcodes,
			"formats":         formats,
			"passes":          passes,
			"dedup":           p.cfg.Barcode.Dedup,
			"parallel_passes": p.cfg.Barcode.ParallelPasses,
			"try_harder":      p.cfg.Barcode.Backend.TryHarder,
		},
	}
}
