package objects

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/codescan/internal/mempool"
	"github.com/MeKo-Tech/codescan/internal/models"
	"github.com/MeKo-Tech/codescan/internal/onnx"
	"github.com/MeKo-Tech/codescan/internal/utils"
	"github.com/yalue/onnxruntime_go"
)

// ONNXPredictor runs a YOLOv8 detection model with ONNX Runtime on the CPU.
type ONNXPredictor struct {
	cfg        Config
	labels     []string
	session    *onnxruntime_go.DynamicAdvancedSession
	inputInfo  onnxruntime_go.InputOutputInfo
	outputInfo onnxruntime_go.InputOutputInfo
	mu         sync.RWMutex
}

// NewONNXPredictor loads the model at cfg.ModelPath. Relative model and
// labels paths are also looked up in the models directory.
func NewONNXPredictor(cfg Config) (*ONNXPredictor, error) {
	cfg.ModelPath = models.ResolvePath("", cfg.ModelPath)
	if err := models.ValidateModelExists(cfg.ModelPath); err != nil {
		return nil, err
	}
	cfg.LabelsPath = models.ResolvePath("", cfg.LabelsPath)
	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	slog.Debug("Initializing object predictor",
		"model_path", cfg.ModelPath,
		"input_size", cfg.InputSize,
		"confidence", cfg.Confidence,
		"iou", cfg.IoU)

	if err := onnx.Initialize(cfg.LibraryPath); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := modelInfo(cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	session, err := createSession(cfg, inputInfo, outputInfo)
	if err != nil {
		return nil, err
	}

	slog.Debug("Object predictor initialized", "labels", len(labels))
	return &ONNXPredictor{
		cfg:        cfg,
		labels:     labels,
		session:    session,
		inputInfo:  inputInfo,
		outputInfo: outputInfo,
	}, nil
}

// modelInfo gets and validates model input/output information.
func modelInfo(modelPath string) (onnxruntime_go.InputOutputInfo, onnxruntime_go.InputOutputInfo, error) {
	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{},
			fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{},
			fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) < 1 {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{},
			errors.New("model has no outputs")
	}
	if len(inputs[0].Dimensions) != 4 {
		return onnxruntime_go.InputOutputInfo{}, onnxruntime_go.InputOutputInfo{},
			fmt.Errorf("expected 4D input tensor, got %dD", len(inputs[0].Dimensions))
	}
	return inputs[0], outputs[0], nil
}

// createSession creates the ONNX session with the given configuration.
func createSession(cfg Config, inputInfo, outputInfo onnxruntime_go.InputOutputInfo,
) (*onnxruntime_go.DynamicAdvancedSession, error) {
	sessionOptions, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", "error", err)
		}
	}()

	if cfg.NumThreads > 0 {
		if err = sessionOptions.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputInfo.Name}, []string{outputInfo.Name}, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return session, nil
}

// Labels returns the class names used for detections.
func (p *ONNXPredictor) Labels() []string { return p.labels }

// Predict resizes img to the model input, runs inference and returns the
// detections above the configured confidence after NMS.
func (p *ONNXPredictor) Predict(ctx context.Context, img image.Image) ([]Detection, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := p.cfg.InputSize
	resized, err := utils.ResizeImage(img, size, size)
	if err != nil {
		return nil, err
	}
	buf := mempool.Float32.Get(3 * size * size)
	defer mempool.Float32.Put(buf)
	data, w, h, err := utils.NormalizeImageIntoBuffer(resized, buf)
	if err != nil {
		return nil, err
	}
	inShape, err := imageInputShape(data, w, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor: %w", err)
	}

	raw, shape, err := p.run(data, inShape)
	if err != nil {
		return nil, err
	}
	out, err := newYOLOOutput(raw, shape, len(p.labels))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	dets := decodeYOLOv8(out, p.labels, p.cfg.Confidence, size, b.Dx(), b.Dy())
	dets = NonMaxSuppression(dets, p.cfg.IoU)
	if dets == nil {
		dets = []Detection{}
	}
	return dets, nil
}

// imageInputShape returns the [1, 3, h, w] shape of a normalized RGB image
// in NCHW order and checks that data fills it exactly.
func imageInputShape(data []float32, w, h int) (onnxruntime_go.Shape, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid input size %dx%d", w, h)
	}
	if want := 3 * w * h; len(data) != want {
		return nil, fmt.Errorf("unexpected data length: got %d, want %d", len(data), want)
	}
	return onnxruntime_go.NewShape(1, 3, int64(h), int64(w)), nil
}

// run performs the inference and returns a copy of the output data.
func (p *ONNXPredictor) run(data []float32, shape onnxruntime_go.Shape) ([]float32, []int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return nil, nil, errors.New("predictor session is closed")
	}

	inputTensor, err := onnxruntime_go.NewTensor(shape, data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := inputTensor.Destroy(); err != nil {
			slog.Warn("Error destroying input tensor", "error", err)
		}
	}()

	// ONNX Runtime allocates the output tensor.
	outputs := []onnxruntime_go.Value{nil}
	if err := p.session.Run([]onnxruntime_go.Value{inputTensor}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		if err := outputs[0].Destroy(); err != nil {
			slog.Warn("Error destroying output tensor", "error", err)
		}
	}()

	floatTensor, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("expected float32 tensor, got %T", outputs[0])
	}
	out := append([]float32(nil), floatTensor.GetData()...)
	outShape := append([]int64(nil), floatTensor.GetShape()...)
	return out, outShape, nil
}

// Close releases the ONNX session. The runtime environment stays
// initialized for the rest of the process.
func (p *ONNXPredictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		if err := p.session.Destroy(); err != nil {
			slog.Warn("Failed to destroy predictor session", "error", err)
		}
		p.session = nil
	}
	return nil
}
