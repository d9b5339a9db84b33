package barcode

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/codescan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passMarkerValue is the luma of the marker image. Each pass sees a different
// rendition of it: RGBA (original), 50 (grayscale), 0 (fixed threshold)
// and 255 (adaptive threshold, uniform input).
const passMarkerValue = 50

func markerImage(r image.Rectangle) *image.RGBA {
	img := image.NewRGBA(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, color.RGBA{passMarkerValue, passMarkerValue, passMarkerValue, 255})
		}
	}
	return img
}

func classifyPass(img image.Image) Pass {
	g, ok := img.(*image.Gray)
	if !ok {
		return PassOriginal
	}
	switch g.Pix[0] {
	case passMarkerValue:
		return PassGrayscale
	case 0:
		return PassThreshold
	default:
		return PassAdaptive
	}
}

type passBehavior struct {
	results []Result
	err     error
	panic   bool
}

type fakeBackend struct {
	mu       sync.Mutex
	behavior map[Pass]passBehavior
	calls    []Pass
	opts     []Options
}

func (f *fakeBackend) Decode(_ context.Context, img image.Image, opts Options) ([]Result, error) {
	p := classifyPass(img)
	f.mu.Lock()
	f.calls = append(f.calls, p)
	f.opts = append(f.opts, opts)
	b := f.behavior[p]
	f.mu.Unlock()

	if b.panic {
		panic("decoder exploded")
	}
	return b.results, b.err
}

func qrResult(payload string, r image.Rectangle) Result {
	return Result{Type: FormatQR, Value: payload, BBox: r}
}

func TestDecoder_PassOrder(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			box := image.Rect(2, 2, 10, 10)
			fb := &fakeBackend{behavior: map[Pass]passBehavior{
				PassOriginal:  {results: []Result{qrResult("a1", box), qrResult("a2", box)}},
				PassGrayscale: {results: []Result{qrResult("b", box)}},
				PassThreshold: {results: []Result{qrResult("c", box)}},
				PassAdaptive:  {results: []Result{qrResult("d", box)}},
			}}
			dec, err := NewDecoder(fb, DecoderOptions{ParallelPasses: parallel})
			require.NoError(t, err)

			syms, err := dec.Decode(context.Background(), markerImage(image.Rect(0, 0, 32, 32)))
			require.NoError(t, err)

			var payloads []string
			var passes []Pass
			for _, s := range syms {
				payloads = append(payloads, s.Payload)
				passes = append(passes, s.Pass)
			}
			assert.Equal(t, []string{"a1", "a2", "b", "c", "d"}, payloads)
			assert.Equal(t, []Pass{PassOriginal, PassOriginal, PassGrayscale, PassThreshold, PassAdaptive}, passes)
			assert.Len(t, fb.calls, 4)
			assert.ElementsMatch(t, Passes, fb.calls)
			for _, o := range fb.opts {
				assert.True(t, o.Multi)
			}
		})
	}
}

func TestDecoder_SequentialCallOrder(t *testing.T) {
	fb := &fakeBackend{}
	dec, err := NewDecoder(fb, DecoderOptions{})
	require.NoError(t, err)

	_, err = dec.Decode(context.Background(), markerImage(image.Rect(0, 0, 16, 16)))
	require.NoError(t, err)
	assert.Equal(t, Passes, fb.calls)
}

func TestDecoder_PassFaultsAreIsolated(t *testing.T) {
	box := image.Rect(0, 0, 8, 8)
	fb := &fakeBackend{behavior: map[Pass]passBehavior{
		PassOriginal:  {results: []Result{qrResult("kept-a", box)}},
		PassGrayscale: {panic: true},
		PassThreshold: {err: errors.New("decoder failure")},
		PassAdaptive:  {results: []Result{qrResult("kept-d", box)}},
	}}

	type observed struct {
		n   int
		err error
	}
	var mu sync.Mutex
	seen := map[Pass]observed{}
	dec, err := NewDecoder(fb, DecoderOptions{
		Observer: func(p Pass, n int, _ time.Duration, err error) {
			mu.Lock()
			defer mu.Unlock()
			seen[p] = observed{n: n, err: err}
		},
	})
	require.NoError(t, err)

	syms, err := dec.Decode(context.Background(), markerImage(image.Rect(0, 0, 16, 16)))
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "kept-a", syms[0].Payload)
	assert.Equal(t, "kept-d", syms[1].Payload)

	require.Len(t, seen, 4)
	assert.NoError(t, seen[PassOriginal].err)
	assert.Equal(t, 1, seen[PassOriginal].n)
	assert.ErrorContains(t, seen[PassGrayscale].err, "panic")
	assert.ErrorContains(t, seen[PassThreshold].err, "decoder failure")
	assert.Equal(t, 0, seen[PassThreshold].n)
}

func TestDecoder_BoxesClampedToImage(t *testing.T) {
	fb := &fakeBackend{behavior: map[Pass]passBehavior{
		PassOriginal: {results: []Result{
			qrResult("inside", image.Rect(14, 12, 20, 18)),
			qrResult("overhang", image.Rect(40, 40, 90, 90)),
			qrResult("outside", image.Rect(200, 200, 210, 210)),
			{Type: FormatQR, Value: "points", Points: []Point{{12, 11}, {15, 19}}},
		}},
	}}
	dec, err := NewDecoder(fb, DecoderOptions{})
	require.NoError(t, err)

	// Non zero origin: boxes are reported relative to the top-left pixel.
	img := markerImage(image.Rect(10, 10, 74, 74))
	syms, err := dec.Decode(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, syms, 3)

	assert.Equal(t, image.Rect(4, 2, 10, 8), syms[0].Box)
	assert.Equal(t, image.Rect(30, 30, 64, 64), syms[1].Box)
	assert.Equal(t, image.Rect(2, 1, 6, 10), syms[2].Box)
	for _, s := range syms {
		assertBoxInvariant(t, s.Box, 64, 64)
	}
}

func TestDecoder_DuplicatesKeptByDefault(t *testing.T) {
	same := []Result{qrResult("dup", image.Rect(1, 1, 9, 9))}
	fb := &fakeBackend{behavior: map[Pass]passBehavior{
		PassOriginal:  {results: same},
		PassGrayscale: {results: same},
		PassThreshold: {results: same},
		PassAdaptive:  {results: same},
	}}

	dec, err := NewDecoder(fb, DecoderOptions{})
	require.NoError(t, err)
	syms, err := dec.Decode(context.Background(), markerImage(image.Rect(0, 0, 16, 16)))
	require.NoError(t, err)
	assert.Len(t, syms, 4)

	dec, err = NewDecoder(fb, DecoderOptions{Dedup: true})
	require.NoError(t, err)
	syms, err = dec.Decode(context.Background(), markerImage(image.Rect(0, 0, 16, 16)))
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, PassOriginal, syms[0].Pass)
}

func TestDecoder_Errors(t *testing.T) {
	dec, err := NewDecoder(&fakeBackend{}, DecoderOptions{})
	require.NoError(t, err)

	_, err = dec.Decode(context.Background(), nil)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = dec.Decode(ctx, markerImage(image.Rect(0, 0, 8, 8)))
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecoder_EmptyResultIsNotNil(t *testing.T) {
	dec, err := NewDecoder(&fakeBackend{}, DecoderOptions{})
	require.NoError(t, err)

	syms, err := dec.Decode(context.Background(), markerImage(image.Rect(0, 0, 8, 8)))
	require.NoError(t, err)
	assert.NotNil(t, syms)
	assert.Empty(t, syms)
}

func TestPassString(t *testing.T) {
	assert.Equal(t, "original", PassOriginal.String())
	assert.Equal(t, "grayscale", PassGrayscale.String())
	assert.Equal(t, "threshold", PassThreshold.String())
	assert.Equal(t, "adaptive", PassAdaptive.String())
	assert.Equal(t, "unknown", Pass(9).String())
}

func assertBoxInvariant(t *testing.T, r image.Rectangle, w, h int) {
	t.Helper()
	assert.GreaterOrEqual(t, r.Min.X, 0)
	assert.GreaterOrEqual(t, r.Min.Y, 0)
	assert.Less(t, r.Min.X, r.Max.X)
	assert.Less(t, r.Min.Y, r.Max.Y)
	assert.LessOrEqual(t, r.Max.X, w)
	assert.LessOrEqual(t, r.Max.Y, h)
}

// assertBoxNear checks that every edge of got is within tol pixels of want.
func assertBoxNear(t *testing.T, want, got image.Rectangle, tol float64) {
	t.Helper()
	assert.InDelta(t, want.Min.X, got.Min.X, tol, "left edge of %v, want %v", got, want)
	assert.InDelta(t, want.Min.Y, got.Min.Y, tol, "top edge of %v, want %v", got, want)
	assert.InDelta(t, want.Max.X, got.Max.X, tol, "right edge of %v, want %v", got, want)
	assert.InDelta(t, want.Max.Y, got.Max.Y, tol, "bottom edge of %v, want %v", got, want)
}

// inkBounds returns the bounding box of the dark pixels of img.
func inkBounds(img image.Image) image.Rectangle {
	var r image.Rectangle
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y < 128 {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return r
}

func newDefaultDecoder(t *testing.T, opts DecoderOptions) *Decoder {
	t.Helper()
	dec, err := NewDecoder(nil, opts)
	require.NoError(t, err)
	return dec
}

func TestDecoder_QRCode(t *testing.T) {
	qr := testutil.QRImage(t, "hello", 200)
	img := testutil.Compose(testutil.ImageSize{Width: 400, Height: 400}, color.White,
		testutil.Placement{Img: qr, At: image.Pt(100, 100)})

	syms, err := newDefaultDecoder(t, DecoderOptions{}).Decode(context.Background(), img)
	require.NoError(t, err)
	require.NotEmpty(t, syms)
	assert.LessOrEqual(t, len(syms), 4)

	// The box covers the symbol's modules, not just its finder centres.
	ink := inkBounds(img)
	for _, s := range syms {
		assert.Equal(t, FormatQR, s.Symbology)
		assert.Equal(t, "hello", s.Payload)
		assertBoxInvariant(t, s.Box, 400, 400)
		assertBoxNear(t, ink, s.Box, 4)
	}
	assert.Equal(t, PassOriginal, syms[0].Pass)
}

func TestDecoder_SolidImage(t *testing.T) {
	img := testutil.CreateTestImage(100, 100, color.White)

	syms, err := newDefaultDecoder(t, DecoderOptions{}).Decode(context.Background(), img)
	require.NoError(t, err)
	assert.NotNil(t, syms)
	assert.Empty(t, syms)
}

func TestDecoder_EAN13(t *testing.T) {
	ean := testutil.EAN13Image(t, testutil.SampleEAN13, 300, 100)
	img := testutil.Compose(testutil.ImageSize{Width: 400, Height: 200}, color.White,
		testutil.Placement{Img: ean, At: image.Pt(50, 50)})

	t.Run("all passes", func(t *testing.T) {
		syms, err := newDefaultDecoder(t, DecoderOptions{}).Decode(context.Background(), img)
		require.NoError(t, err)
		require.NotEmpty(t, syms)
		assert.LessOrEqual(t, len(syms), 4)
		for _, s := range syms {
			assert.Equal(t, FormatEAN13, s.Symbology)
			assert.Equal(t, testutil.SampleEAN13, s.Payload)
			assertBoxInvariant(t, s.Box, 400, 200)
			assert.Greater(t, s.Box.Dy(), 50, "linear box should cover the bars")
		}
	})

	t.Run("dedup", func(t *testing.T) {
		syms, err := newDefaultDecoder(t, DecoderOptions{Dedup: true}).Decode(context.Background(), img)
		require.NoError(t, err)
		require.Len(t, syms, 1)
		assert.Equal(t, "EAN-13", syms[0].Symbology.String())
		assert.Equal(t, testutil.SampleEAN13, syms[0].Payload)
	})
}

func TestDecoder_EAN13Scenario(t *testing.T) {
	// One EAN-13 placed at (50,90)-(150,110) on a 200x200 white image.
	ean := testutil.EAN13Image(t, testutil.SampleEAN13, 100, 20)
	img := testutil.Compose(testutil.ImageSize{Width: 200, Height: 200}, color.White,
		testutil.Placement{Img: ean, At: image.Pt(50, 90)})

	syms, err := newDefaultDecoder(t, DecoderOptions{Dedup: true}).Decode(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "EAN-13", syms[0].Symbology.String())
	assert.Equal(t, testutil.SampleEAN13, syms[0].Payload)

	// The writer centres the bars in the fixture, so the ink is a few
	// pixels inside the placed rectangle.
	assertBoxNear(t, inkBounds(img), syms[0].Box, 1)
	assertBoxNear(t, image.Rect(50, 90, 150, 110), syms[0].Box, 5)
}

func TestDecoder_Idempotent(t *testing.T) {
	qr := testutil.QRImage(t, "repeat me", 160)
	img := testutil.Compose(testutil.ImageSize{Width: 300, Height: 240}, color.White,
		testutil.Placement{Img: qr, At: image.Pt(40, 30)})
	before := append([]uint8(nil), img.Pix...)

	dec := newDefaultDecoder(t, DecoderOptions{})
	first, err := dec.Decode(context.Background(), img)
	require.NoError(t, err)
	second, err := dec.Decode(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, img.Pix, "input image must not be modified")

	par := newDefaultDecoder(t, DecoderOptions{ParallelPasses: true})
	third, err := par.Decode(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}
