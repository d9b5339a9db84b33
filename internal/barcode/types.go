package barcode

import (
	"context"
	"image"
	"strings"
)

// Format represents a barcode symbology.
type Format int

const (
	FormatUnknown Format = iota
	FormatQR
	FormatDataMatrix
	FormatAztec
	FormatCode128
	FormatCode39
	FormatEAN8
	FormatEAN13
	FormatUPCA
	FormatUPCE
	FormatITF
	FormatCodabar
)

var formatNames = map[Format]string{
	FormatQR:         "QR",
	FormatDataMatrix: "DataMatrix",
	FormatAztec:      "Aztec",
	FormatCode128:    "Code128",
	FormatCode39:     "Code39",
	FormatEAN8:       "EAN-8",
	FormatEAN13:      "EAN-13",
	FormatUPCA:       "UPC-A",
	FormatUPCE:       "UPC-E",
	FormatITF:        "ITF",
	FormatCodabar:    "Codabar",
}

// String returns the symbology name used in API responses, e.g. "QR" or "EAN-13".
func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}

// IsLinear reports whether f is a one-dimensional symbology.
func (f Format) IsLinear() bool {
	switch f {
	case FormatCode128, FormatCode39, FormatEAN8, FormatEAN13, FormatUPCA, FormatUPCE, FormatITF, FormatCodabar:
		return true
	default:
		return false
	}
}

// ParseFormat maps a user supplied symbology name to a Format.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "qr", "qrcode", "qr-code":
		return FormatQR, true
	case "datamatrix", "data-matrix":
		return FormatDataMatrix, true
	case "aztec":
		return FormatAztec, true
	case "code128", "code-128":
		return FormatCode128, true
	case "code39", "code-39":
		return FormatCode39, true
	case "ean8", "ean-8":
		return FormatEAN8, true
	case "ean13", "ean-13":
		return FormatEAN13, true
	case "upca", "upc-a":
		return FormatUPCA, true
	case "upce", "upc-e":
		return FormatUPCE, true
	case "itf", "interleaved2of5", "i2/5":
		return FormatITF, true
	case "codabar":
		return FormatCodabar, true
	default:
		return FormatUnknown, false
	}
}

// ParseFormats parses a list of names, skipping unknown entries.
// It also returns the names it could not parse.
func ParseFormats(names []string) ([]Format, []string) {
	var (
		out     []Format
		unknown []string
	)
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		f, ok := ParseFormat(n)
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, f)
	}
	return out, unknown
}

// Options controls backend decoding behavior.
type Options struct {
	// Formats constrains the set of symbologies to search. Empty means all.
	Formats []Format

	// TryHarder enables more exhaustive search (slower but more robust).
	TryHarder bool

	// Multi enables multi-symbol detection in a single image.
	Multi bool

	// ROI optionally restricts decoding to a sub-rectangle of the image.
	// If zero-sized or out of bounds, backends should ignore it.
	ROI image.Rectangle
}

// Point is an integer point in image coordinates.
type Point struct {
	X int
	Y int
}

// Result is a single raw read returned by a Backend, in the coordinates of
// the image that was passed to it.
type Result struct {
	Type   Format
	Value  string
	Points []Point          // Corner or key points if available
	BBox   image.Rectangle // Bounding box derived from points
}

// Backend is a pluggable barcode decoder implementation.
// Implementations must be safe for concurrent use.
type Backend interface {
	Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error)
}

// NewBackend returns the default backend implementation.
func NewBackend() (Backend, error) { return newDefaultBackend() }
