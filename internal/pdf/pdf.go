// Package pdf pulls the embedded raster images out of PDF documents so they
// can be scanned like ordinary image files.
package pdf

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/codescan/internal/utils"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageImage is one image found on a PDF page. Page is 1-based, Index counts
// the images of a page in extraction order.
type PageImage struct {
	Page  int
	Index int
	Name  string
	Image image.Image
}

// IsPDF reports whether path has a .pdf extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// ExtractImages extracts the images of the selected pages. pageRange uses
// the "1-3,5" syntax; empty selects every page. Results are ordered by page
// and then by name.
func ExtractImages(filename string, pageRange string) ([]PageImage, error) {
	pageNumbers, err := parsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "codescan-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selected []string
	for _, n := range pageNumbers {
		selected = append(selected, strconv.Itoa(n))
	}

	if err := api.ExtractImagesFile(filename, tempDir, selected, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	images, err := collectExtractedImages(tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted images: %w", err)
	}
	slog.Debug("Extracted PDF images", "file", filename, "pages", pageRange, "images", len(images))
	return images, nil
}

// collectExtractedImages loads every decodable image in dir whose name
// carries a page number.
func collectExtractedImages(dir string) ([]PageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []PageImage
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		page, err := parsePageFromFilename(e.Name())
		if err != nil {
			continue
		}
		img, _, err := utils.LoadImage(filepath.Join(dir, e.Name()))
		if err != nil {
			slog.Debug("Skipping unreadable PDF image", "name", e.Name(), "error", err)
			continue
		}
		out = append(out, PageImage{Page: page, Name: e.Name(), Image: img})
	}

	slices.SortFunc(out, func(a, b PageImage) int {
		if c := cmp.Compare(a.Page, b.Page); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	for i := range out {
		if i > 0 && out[i-1].Page == out[i].Page {
			out[i].Index = out[i-1].Index + 1
		}
	}
	return out, nil
}

// parsePageFromFilename returns the page number encoded in an extracted
// image name. pdfcpu writes "<doc>_<page>_<resource>.<ext>"; the older
// "page_<page>_image_<n>.<ext>" form is accepted as well.
func parsePageFromFilename(filename string) (int, error) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return 0, errors.New("not a page image")
	}

	field := parts[len(parts)-2]
	if parts[0] == "page" {
		field = parts[1]
	}
	page, err := strconv.Atoi(field)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("invalid page number in %q", filename)
	}
	return page, nil
}

// parsePageRange parses a page range string like "1-5" or "1,3,5".
func parsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}

	var pages []int
	for part := range strings.SplitSeq(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	return pages, nil
}

// parseRangeToken parses "3" or "1-5".
func parseRangeToken(part string) ([]int, error) {
	lo, hi, isRange := strings.Cut(part, "-")
	start, err := parsePage(lo)
	if err != nil {
		return nil, err
	}
	if !isRange {
		return []int{start}, nil
	}
	if strings.Contains(hi, "-") {
		return nil, fmt.Errorf("invalid range format: %s", part)
	}
	end, err := parsePage(hi)
	if err != nil {
		return nil, err
	}
	if start > end {
		return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
	}
	out := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, i)
	}
	return out, nil
}

func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid page number: %s", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("page numbers start at 1, got %d", n)
	}
	return n, nil
}
