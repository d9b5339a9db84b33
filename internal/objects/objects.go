// Package objects runs general object detection on images.
//
// A Predictor is created once at start-up from a Config and shared by all
// requests. Three backends exist: a local YOLOv8 ONNX model, a remote Machine
// Box objectbox service, and "none" which disables detection.
package objects

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/MeKo-Tech/codescan/internal/models"
)

// Backend names accepted in Config.Backend.
const (
	BackendONNX      = "onnx"
	BackendObjectbox = "objectbox"
	BackendNone      = "none"
)

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown object detection backend")

// Detection is a single detected object in image pixel coordinates.
type Detection struct {
	ClassID    int
	Label      string
	Confidence float32
	Box        image.Rectangle
}

// Predictor detects objects in an image. Implementations are safe for
// concurrent use.
type Predictor interface {
	Predict(ctx context.Context, img image.Image) ([]Detection, error)
	Close() error
}

// Config selects and tunes a Predictor.
type Config struct {
	Backend      string
	ModelPath    string
	LabelsPath   string
	LibraryPath  string // ONNX Runtime shared library, empty = auto-detect
	InputSize    int
	Confidence   float32
	IoU          float32
	NumThreads   int
	ObjectboxURL string
}

// DefaultConfig returns the configuration used by the HTTP service.
func DefaultConfig() Config {
	return Config{
		Backend:      BackendONNX,
		ModelPath:    models.DefaultModelPath,
		InputSize:    640,
		Confidence:   0.25,
		IoU:          0.45,
		ObjectboxURL: "http://localhost:8083",
	}
}

// Validate checks the configuration for the selected backend.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendNone, "":
		return nil
	case BackendONNX:
		if c.ModelPath == "" {
			return errors.New("model path is required for the onnx backend")
		}
		if c.InputSize <= 0 || c.InputSize%32 != 0 {
			return fmt.Errorf("input size must be a positive multiple of 32, got %d", c.InputSize)
		}
	case BackendObjectbox:
		if c.ObjectboxURL == "" {
			return errors.New("objectbox url is required for the objectbox backend")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1, got %.2f", c.Confidence)
	}
	if c.IoU < 0 || c.IoU > 1 {
		return fmt.Errorf("iou must be between 0 and 1, got %.2f", c.IoU)
	}
	return nil
}

// New creates the Predictor selected by cfg.Backend.
func New(cfg Config) (Predictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Backend) {
	case BackendONNX:
		return NewONNXPredictor(cfg)
	case BackendObjectbox:
		return NewObjectboxPredictor(cfg)
	default:
		return NopPredictor{}, nil
	}
}

// NopPredictor never detects anything.
type NopPredictor struct{}

func (NopPredictor) Predict(context.Context, image.Image) ([]Detection, error) {
	return []Detection{}, nil
}

func (NopPredictor) Close() error { return nil }
