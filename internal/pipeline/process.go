package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/codescan/internal/common"
)

// Detect runs the object predictor and then the barcode decoder on img.
// Object entries come first, followed by barcode entries in pass order.
// A predictor failure is returned as an error; barcode pass faults are not.
func (p *Pipeline) Detect(ctx context.Context, img image.Image) (*Response, error) {
	if p == nil || p.Predictor == nil || p.Decoder == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if img == nil {
		return nil, errors.New("input image is nil")
	}

	bounds := img.Bounds()
	slog.Debug("Starting detection", "width", bounds.Dx(), "height", bounds.Dy())
	total := common.NewTimer()

	objTimer := common.NewNamedTimer("objects")
	dets, err := p.Predictor.Predict(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("object detection failed: %w", err)
	}
	objNs := objTimer.StopNs()

	res := &Response{
		Detections: make([]Detection, 0, len(dets)),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
	}
	for _, d := range dets {
		res.Detections = append(res.Detections, objectEntry(d))
	}

	var barNs int64
	if !p.cfg.DisableBarcodes {
		barTimer := common.NewNamedTimer("barcodes")
		symbols, err := p.Decoder.Decode(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("barcode decoding failed: %w", err)
		}
		barNs = barTimer.StopNs()
		for _, s := range symbols {
			res.Detections = append(res.Detections, barcodeEntry(s))
		}
		slog.Debug("Barcode stage completed", "symbols", len(symbols), "duration_ms", barNs/1e6)
	}

	res.Processing = Timing{
		ObjectsNs:  objNs,
		BarcodesNs: barNs,
		TotalNs:    total.StopNs(),
	}
	slog.Debug("Detection completed",
		"objects", len(dets),
		"detections", len(res.Detections),
		"total_ms", res.Processing.TotalNs/1e6)
	return res, nil
}

// DetectImages runs Detect on each image sequentially.
func (p *Pipeline) DetectImages(ctx context.Context, images []image.Image) ([]*Response, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	out := make([]*Response, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.Detect(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = res
	}
	return out, nil
}
