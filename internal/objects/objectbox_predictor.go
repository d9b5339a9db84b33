package objects

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"

	"github.com/machinebox/sdk-go/objectbox"
)

// objectboxClient is the subset of the Machine Box client that is used.
type objectboxClient interface {
	Check(image io.Reader) (objectbox.CheckResponse, error)
}

// ObjectboxPredictor delegates detection to a Machine Box objectbox
// service. Objects scoring below minConf are dropped.
type ObjectboxPredictor struct {
	client  objectboxClient
	minConf float32
}

// NewObjectboxPredictor connects to the objectbox service at
// cfg.ObjectboxURL and logs the box information.
func NewObjectboxPredictor(cfg Config) (*ObjectboxPredictor, error) {
	client := objectbox.New(cfg.ObjectboxURL)
	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("could not get objectbox info: %w", err)
	}
	slog.Info("Connected to objectbox",
		"url", cfg.ObjectboxURL, "name", info.Name, "version", info.Version, "status", info.Status)
	return newObjectboxPredictor(client, cfg.Confidence), nil
}

func newObjectboxPredictor(client objectboxClient, minConf float32) *ObjectboxPredictor {
	return &ObjectboxPredictor{client: client, minConf: minConf}
}

// Predict JPEG-encodes img, sends it to objectbox and maps every returned
// object to a Detection labelled with the detector name.
func (p *ObjectboxPredictor) Predict(ctx context.Context, img image.Image) ([]Detection, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode image for objectbox: %w", err)
	}
	resp, err := p.client.Check(&buf)
	if err != nil {
		return nil, fmt.Errorf("objectbox check: %w", err)
	}

	b := img.Bounds()
	bounds := image.Rect(0, 0, b.Dx(), b.Dy())
	dets := []Detection{}
	for i, d := range resp.Detectors {
		for _, o := range d.Objects {
			score := float32(o.Score)
			if score < p.minConf {
				continue
			}
			r := image.Rect(o.Rect.Left, o.Rect.Top, o.Rect.Left+o.Rect.Width, o.Rect.Top+o.Rect.Height).Intersect(bounds)
			if r.Empty() {
				continue
			}
			dets = append(dets, Detection{
				ClassID:    i,
				Label:      d.Name,
				Confidence: score,
				Box:        r,
			})
		}
	}
	return dets, nil
}

// Close is a no-op; the HTTP client holds no resources.
func (p *ObjectboxPredictor) Close() error { return nil }
