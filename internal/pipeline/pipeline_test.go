package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/codescan/internal/barcode"
	"github.com/MeKo-Tech/codescan/internal/objects"
	"github.com/MeKo-Tech/codescan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePredictor struct {
	dets   []objects.Detection
	err    error
	calls  atomic.Int32
	closed atomic.Bool
}

func (f *fakePredictor) Predict(ctx context.Context, _ image.Image) ([]objects.Detection, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]objects.Detection{}, f.dets...), nil
}

func (f *fakePredictor) Close() error {
	f.closed.Store(true)
	return nil
}

func buildTestPipeline(t *testing.T, pred objects.Predictor, opts ...func(*Builder)) *Pipeline {
	t.Helper()
	b := NewBuilder().WithPredictor(pred)
	for _, o := range opts {
		o(b)
	}
	p, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// qrScene places a QR code at (40, 30) on a white 320x240 canvas.
func qrScene(t *testing.T, text string) *image.RGBA {
	t.Helper()
	return testutil.Compose(testutil.SmallSize, color.White,
		testutil.Placement{Img: testutil.QRImage(t, text, 120), At: image.Pt(40, 30)})
}

func TestBuilder_Defaults(t *testing.T) {
	b := NewBuilder()
	cfg := b.Config()
	assert.Equal(t, objects.BackendONNX, cfg.Objects.Backend)
	assert.False(t, cfg.Barcode.Dedup)
	assert.False(t, cfg.Barcode.ParallelPasses)
	assert.False(t, cfg.DisableBarcodes)
	assert.Positive(t, cfg.Parallel.MaxWorkers)
}

func TestBuilder_Options(t *testing.T) {
	cfg := NewBuilder().
		WithObjectBackend(objects.BackendObjectbox).
		WithObjectboxURL("http://box:8080").
		WithModelPath("m.onnx").
		WithLabelsPath("labels.txt").
		WithObjectThresholds(0.5, 0.6).
		WithInputSize(320).
		WithThreads(2).
		WithBarcodeFormats([]barcode.Format{barcode.FormatQR}).
		WithTryHarder(true).
		WithDedup(true).
		WithParallelPasses(true).
		WithParallelWorkers(3).
		WithBarcodes(false).
		Config()

	assert.Equal(t, objects.BackendObjectbox, cfg.Objects.Backend)
	assert.Equal(t, "http://box:8080", cfg.Objects.ObjectboxURL)
	assert.Equal(t, "m.onnx", cfg.Objects.ModelPath)
	assert.Equal(t, "labels.txt", cfg.Objects.LabelsPath)
	assert.InDelta(t, 0.5, cfg.Objects.Confidence, 1e-6)
	assert.InDelta(t, 0.6, cfg.Objects.IoU, 1e-6)
	assert.Equal(t, 320, cfg.Objects.InputSize)
	assert.Equal(t, 2, cfg.Objects.NumThreads)
	assert.Equal(t, []barcode.Format{barcode.FormatQR}, cfg.Barcode.Backend.Formats)
	assert.True(t, cfg.Barcode.Backend.TryHarder)
	assert.True(t, cfg.Barcode.Dedup)
	assert.True(t, cfg.Barcode.ParallelPasses)
	assert.Equal(t, 3, cfg.Parallel.MaxWorkers)
	assert.True(t, cfg.DisableBarcodes)
}

func TestBuilder_IgnoresZeroValues(t *testing.T) {
	def := DefaultConfig()
	cfg := NewBuilder().
		WithObjectBackend("").
		WithModelPath("").
		WithObjectThresholds(0, 0).
		WithInputSize(0).
		WithParallelWorkers(0).
		Config()
	assert.Equal(t, def.Objects, cfg.Objects)
	assert.Equal(t, def.Parallel.MaxWorkers, cfg.Parallel.MaxWorkers)
}

func TestBuild_ValidationErrors(t *testing.T) {
	_, err := NewBuilder().WithObjectBackend("yolo-nas").Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, objects.ErrUnknownBackend)

	_, err = NewBuilder().WithModelPath(t.TempDir() + "/absent.onnx").Build()
	assert.ErrorContains(t, err, "model file not found")
}

func TestBuild_NoneBackend(t *testing.T) {
	p, err := NewBuilder().WithObjectBackend(objects.BackendNone).Build()
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	res, err := p.Detect(context.Background(), testutil.CreateTestImage(16, 16, color.White))
	require.NoError(t, err)
	assert.NotNil(t, res.Detections)
	assert.Empty(t, res.Detections)
}

func TestDetect_ObjectsThenBarcodes(t *testing.T) {
	pred := &fakePredictor{dets: []objects.Detection{
		{ClassID: 0, Label: "person", Confidence: 0.87, Box: image.Rect(200, 20, 300, 220)},
	}}
	p := buildTestPipeline(t, pred, func(b *Builder) { b.WithDedup(true) })

	res, err := p.Detect(context.Background(), qrScene(t, "hello codescan"))
	require.NoError(t, err)
	require.Len(t, res.Detections, 2)

	obj := res.Detections[0]
	assert.Equal(t, TypeObject, obj.Type)
	assert.Equal(t, "person", obj.Label)
	assert.InDelta(t, 0.87, obj.Confidence, 1e-6)
	assert.Equal(t, BBox{200, 20, 300, 220}, obj.BBox)

	bc := res.Detections[1]
	assert.Equal(t, TypeBarcode, bc.Type)
	assert.Equal(t, "QR", bc.Label)
	assert.Equal(t, "hello codescan", bc.Data)
	assert.Equal(t, "original", bc.Pass)
	assert.True(t, bc.BBox.Rect().In(image.Rect(40, 30, 160, 150)), "box %v", bc.BBox)

	assert.Equal(t, 320, res.Width)
	assert.Equal(t, 240, res.Height)
	assert.Positive(t, res.Processing.TotalNs)
	assert.GreaterOrEqual(t, res.Processing.TotalNs, res.Processing.BarcodesNs)
	require.NoError(t, ValidateResponse(res))

	assert.Len(t, res.Objects(), 1)
	assert.Len(t, res.Barcodes(), 1)
}

func TestDetect_KeepsDuplicatesByDefault(t *testing.T) {
	p := buildTestPipeline(t, &fakePredictor{})

	res, err := p.Detect(context.Background(), qrScene(t, "dup"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Detections)
	for _, d := range res.Detections {
		assert.Equal(t, "dup", d.Data)
	}
	assert.Equal(t, "original", res.Detections[0].Pass)
}

func TestDetect_PredictorFailure(t *testing.T) {
	pred := &fakePredictor{err: errors.New("session lost")}
	p := buildTestPipeline(t, pred)

	_, err := p.Detect(context.Background(), qrScene(t, "x"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "session lost")
}

func TestDetect_BarcodesDisabled(t *testing.T) {
	p := buildTestPipeline(t, &fakePredictor{}, func(b *Builder) { b.WithBarcodes(false) })
	res, err := p.Detect(context.Background(), qrScene(t, "skip me"))
	require.NoError(t, err)
	assert.Empty(t, res.Detections)
	assert.Zero(t, res.Processing.BarcodesNs)
}

func TestDetect_Errors(t *testing.T) {
	p := buildTestPipeline(t, &fakePredictor{})
	_, err := p.Detect(context.Background(), nil)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Detect(ctx, qrScene(t, "x"))
	require.ErrorIs(t, err, context.Canceled)

	var nilPipeline *Pipeline
	_, err = nilPipeline.Detect(context.Background(), qrScene(t, "x"))
	assert.Error(t, err)
}

func TestDetect_EmptyResultMarshalsAsArray(t *testing.T) {
	p := buildTestPipeline(t, &fakePredictor{})
	res, err := p.Detect(context.Background(), testutil.CreateTestImage(64, 64, color.White))
	require.NoError(t, err)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"detections":[]}`, string(b))
}

func TestDetectImages(t *testing.T) {
	pred := &fakePredictor{}
	p := buildTestPipeline(t, pred)

	out, err := p.DetectImages(context.Background(), []image.Image{qrScene(t, "a"), qrScene(t, "b")})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Detections[0].Data)
	assert.Equal(t, "b", out[1].Detections[0].Data)
	assert.EqualValues(t, 2, pred.calls.Load())

	_, err = p.DetectImages(context.Background(), nil)
	assert.Error(t, err)
}

func TestPipeline_CloseAndInfo(t *testing.T) {
	pred := &fakePredictor{}
	p, err := NewBuilder().WithPredictor(pred).WithDedup(true).Build()
	require.NoError(t, err)

	info := p.Info()
	bc, ok := info["barcode"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, bc["dedup"])
	assert.Equal(t, []string{"original", "grayscale", "threshold", "adaptive"}, bc["passes"])

	require.NoError(t, p.Close())
	assert.True(t, pred.closed.Load())
	assert.NoError(t, p.Close())
}

func TestPassObserverWired(t *testing.T) {
	var passes []string
	p := buildTestPipeline(t, &fakePredictor{}, func(b *Builder) {
		b.WithPassObserver(func(pass barcode.Pass, _ int, _ time.Duration, _ error) {
			passes = append(passes, pass.String())
		})
	})
	_, err := p.Detect(context.Background(), testutil.CreateTestImage(32, 32, color.White))
	require.NoError(t, err)
	assert.Equal(t, []string{"original", "grayscale", "threshold", "adaptive"}, passes)
}
