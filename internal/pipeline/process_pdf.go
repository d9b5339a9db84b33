package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/codescan/internal/common"
	"github.com/MeKo-Tech/codescan/internal/pdf"
)

// DetectPDF extracts the images of the selected pages of a PDF file and
// runs Detect on each of them.
func (p *Pipeline) DetectPDF(ctx context.Context, filename string, pageRange string) (*PDFResult, error) {
	if filename == "" {
		return nil, errors.New("filename cannot be empty")
	}
	if p == nil || p.Predictor == nil || p.Decoder == nil {
		return nil, errors.New("pipeline not initialized")
	}

	total := common.NewTimer()

	extract := common.NewNamedTimer("extract")
	pageImages, err := pdf.ExtractImages(filename, pageRange)
	if err != nil {
		return nil, err
	}
	extractNs := extract.StopNs()

	result := &PDFResult{
		Filename: filename,
		Images:   make([]PDFPageResult, 0, len(pageImages)),
	}
	pages := map[int]struct{}{}
	for _, pi := range pageImages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.Detect(ctx, pi.Image)
		if err != nil {
			return nil, fmt.Errorf("page %d image %d: %w", pi.Page, pi.Index, err)
		}
		pages[pi.Page] = struct{}{}
		result.Images = append(result.Images, PDFPageResult{
			Page:       pi.Page,
			ImageIndex: pi.Index,
			Width:      res.Width,
			Height:     res.Height,
			Detections: res.Detections,
		})
	}

	result.TotalPages = len(pages)
	result.Processing.ExtractionNs = extractNs
	result.Processing.TotalNs = total.StopNs()
	return result, nil
}
