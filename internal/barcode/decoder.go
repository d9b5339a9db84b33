package barcode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/codescan/internal/utils"
)

// Pre-processing parameters of the derived passes.
const (
	FixedThreshold    = 100
	AdaptiveBlockSize = 11
	AdaptiveC         = 2
)

// Pass identifies one of the decoding passes.
type Pass int

const (
	PassOriginal Pass = iota
	PassGrayscale
	PassThreshold
	PassAdaptive
)

// Passes lists every pass in execution order.
var Passes = []Pass{PassOriginal, PassGrayscale, PassThreshold, PassAdaptive}

func (p Pass) String() string {
	switch p {
	case PassOriginal:
		return "original"
	case PassGrayscale:
		return "grayscale"
	case PassThreshold:
		return "threshold"
	case PassAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// Symbol is a decoded symbol in the zero-based pixel coordinates of the
// input image. Box always satisfies 0 <= Min < Max <= image size.
type Symbol struct {
	Symbology Format
	Payload   string
	Box       image.Rectangle
	Pass      Pass
}

// PassObserver receives the outcome of every pass. err is non-nil when the
// pass failed and contributed no symbols.
type PassObserver func(pass Pass, symbols int, elapsed time.Duration, err error)

// DecoderOptions configures a Decoder.
type DecoderOptions struct {
	// Backend options forwarded to every pass. Multi is always enabled.
	Backend Options

	// Dedup removes repeated (symbology, payload) pairs across passes.
	Dedup bool

	// ParallelPasses runs the passes concurrently. Output order is the same
	// as in sequential mode.
	ParallelPasses bool

	Observer PassObserver
}

// Decoder runs a Backend over the original image and three derived
// versions of it and concatenates the results in pass order.
type Decoder struct {
	backend Backend
	opts    DecoderOptions
}

// NewDecoder creates a Decoder. A nil backend selects the default one.
func NewDecoder(backend Backend, opts DecoderOptions) (*Decoder, error) {
	if backend == nil {
		b, err := NewBackend()
		if err != nil {
			return nil, fmt.Errorf("create barcode backend: %w", err)
		}
		backend = b
	}
	opts.Backend.Multi = true
	return &Decoder{backend: backend, opts: opts}, nil
}

// Options returns the decoder configuration.
func (d *Decoder) Options() DecoderOptions { return d.opts }

// Decode returns every symbol found in img. Failures of individual passes
// are logged and skipped; the only errors are a nil image and a cancelled
// context. The returned slice is never nil.
func (d *Decoder) Decode(ctx context.Context, img image.Image) ([]Symbol, error) {
	if img == nil {
		return nil, errors.New("barcode: nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := newPassSource(img)
	perPass := make([][]Symbol, len(Passes))

	if d.opts.ParallelPasses {
		var wg sync.WaitGroup
		for i, p := range Passes {
			wg.Add(1)
			go func() {
				defer wg.Done()
				perPass[i] = d.runPass(ctx, p, src)
			}()
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	} else {
		for i, p := range Passes {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			perPass[i] = d.runPass(ctx, p, src)
		}
	}

	n := 0
	for _, s := range perPass {
		n += len(s)
	}
	out := make([]Symbol, 0, n)
	for _, s := range perPass {
		out = append(out, s...)
	}
	if d.opts.Dedup {
		out = Dedup(out)
	}
	return out, nil
}

func (d *Decoder) runPass(ctx context.Context, p Pass, src *passSource) (symbols []Symbol) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			symbols = nil
		}
		if err != nil {
			slog.Warn("Barcode pass failed", "pass", p.String(), "error", err)
		}
		if d.opts.Observer != nil {
			d.opts.Observer(p, len(symbols), time.Since(start), err)
		}
	}()

	img, err := src.image(p)
	if err != nil {
		return nil
	}
	results, err := d.backend.Decode(ctx, img, d.opts.Backend)
	if err != nil {
		return nil
	}

	for _, r := range results {
		box := r.BBox
		if box.Empty() {
			box = rectFromPoints(r.Points)
		}
		if r.Type.IsLinear() {
			box = refineLinearBox(img, extendLinearEnds(img, box))
		}
		box = normalizeBox(img, box)
		if r.Type == FormatQR && len(r.Points) >= 3 {
			if gray, gerr := src.gray(); gerr == nil {
				box = expandFinderBox(gray, offsetPoints(r.Points, img.Bounds().Min), box)
			}
		}
		if box.Empty() {
			slog.Debug("Dropping symbol outside image", "pass", p.String(), "symbology", r.Type.String())
			continue
		}
		symbols = append(symbols, Symbol{
			Symbology: r.Type,
			Payload:   r.Value,
			Box:       box,
			Pass:      p,
		})
	}
	slog.Debug("Barcode pass completed", "pass", p.String(), "symbols", len(symbols),
		"duration_ms", time.Since(start).Milliseconds())
	return symbols
}

// passSource derives the pass images lazily. The grayscale image is shared
// by the grayscale and both threshold passes and is never modified.
type passSource struct {
	original image.Image
	gray     func() (*image.Gray, error)
}

func newPassSource(img image.Image) *passSource {
	return &passSource{
		original: img,
		gray: sync.OnceValues(func() (*image.Gray, error) {
			return utils.Grayscale(img)
		}),
	}
}

func (s *passSource) image(p Pass) (image.Image, error) {
	if p == PassOriginal {
		return s.original, nil
	}
	gray, err := s.gray()
	if err != nil {
		return nil, err
	}
	switch p {
	case PassGrayscale:
		return gray, nil
	case PassThreshold:
		return utils.Threshold(gray, FixedThreshold, 255), nil
	case PassAdaptive:
		return utils.AdaptiveThresholdMean(gray, 255, AdaptiveBlockSize, AdaptiveC)
	default:
		return nil, fmt.Errorf("unknown pass %d", p)
	}
}
