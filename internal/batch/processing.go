package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/codescan/internal/pdf"
	"github.com/MeKo-Tech/codescan/internal/pipeline"
	"github.com/MeKo-Tech/codescan/internal/utils"
)

// item is one image to scan: a file, or one embedded image of a PDF.
type item struct {
	path    string
	page    int
	index   int
	img     image.Image
	loadErr error
}

func (it item) name() string {
	if it.page == 0 {
		return it.path
	}
	return fmt.Sprintf("%s#page=%d,image=%d", it.path, it.page, it.index)
}

// expandItems turns the discovered files into scan items. PDF extraction
// failures become failed items rather than aborting the run.
func expandItems(ctx context.Context, files []string, pageRange string) ([]item, error) {
	items := make([]item, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !pdf.IsPDF(f) {
			items = append(items, item{path: f})
			continue
		}
		images, err := pdf.ExtractImages(f, pageRange)
		if err != nil {
			items = append(items, item{path: f, loadErr: err})
			continue
		}
		if len(images) == 0 {
			slog.Info("PDF contains no images", "file", f)
		}
		for _, pi := range images {
			items = append(items, item{path: f, page: pi.Page, index: pi.Index, img: pi.Image})
		}
	}
	return items, nil
}

// loadImage loads a file and checks that it is a supported image.
func loadImage(path string) (image.Image, error) {
	if !utils.IsSupportedImage(path) {
		return nil, fmt.Errorf("unsupported image format: %s", path)
	}
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return img, nil
}

// processItems runs the pipeline over items and converts the outcome into
// FileResults in item order.
func processItems(ctx context.Context, pl *pipeline.Pipeline, items []item, overlayDir string,
) ([]FileResult, []pipeline.JobResult) {
	var keep []image.Image
	if overlayDir != "" {
		keep = make([]image.Image, len(items))
	}

	jobs := make([]pipeline.Job, len(items))
	for i, it := range items {
		jobs[i] = pipeline.Job{
			Index: i,
			Name:  it.name(),
			Load: func() (image.Image, error) {
				if it.loadErr != nil {
					return nil, it.loadErr
				}
				img := it.img
				if img == nil {
					var err error
					if img, err = loadImage(it.path); err != nil {
						return nil, err
					}
				}
				if keep != nil {
					keep[i] = img
				}
				return img, nil
			},
		}
	}

	jobResults := pl.RunParallel(ctx, jobs)

	out := make([]FileResult, len(items))
	for i, jr := range jobResults {
		it := items[i]
		fr := FileResult{File: it.path, Page: it.page, ImageIndex: it.index, Detections: []pipeline.Detection{}}
		if jr.Err != nil {
			fr.Error = jr.Err.Error()
			slog.Warn("Scan failed", "item", it.name(), "error", jr.Err)
			out[i] = fr
			continue
		}
		fr.Width, fr.Height = jr.Response.Width, jr.Response.Height
		fr.Detections = jr.Response.Detections
		if keep != nil && keep[i] != nil {
			path, err := saveOverlay(keep[i], jr.Response, it, overlayDir)
			if err != nil {
				slog.Warn("Failed to write overlay", "item", it.name(), "error", err)
			} else {
				fr.Overlay = path
			}
		}
		out[i] = fr
	}
	return out, jobResults
}

// overlayName derives "<stem>[_p<page>_<index>]_overlay.png".
func overlayName(it item) string {
	base := filepath.Base(it.path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if it.page > 0 {
		stem = fmt.Sprintf("%s_p%d_%d", stem, it.page, it.index)
	}
	return stem + "_overlay.png"
}

func saveOverlay(img image.Image, res *pipeline.Response, it item, dir string) (string, error) {
	ov := pipeline.RenderOverlay(img, res)
	if ov == nil {
		return "", errors.New("nothing to render")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	outPath := filepath.Join(dir, overlayName(it))
	f, err := os.Create(outPath) //nolint:gosec // G304: overlay dir comes from the CLI
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, ov); err != nil {
		_ = f.Close()
		return "", err
	}
	return outPath, f.Close()
}
