package pipeline

import (
	"image"

	"github.com/MeKo-Tech/codescan/internal/barcode"
	"github.com/MeKo-Tech/codescan/internal/objects"
)

// Entry types used in the "type" field of a detection.
const (
	TypeObject  = "object"
	TypeBarcode = "barcode"
)

// BBox is a box as [x1, y1, x2, y2] in image pixels.
type BBox [4]int

// NewBBox converts a rectangle to a BBox.
func NewBBox(r image.Rectangle) BBox { return BBox{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y} }

// Rect converts the box back to a rectangle.
func (b BBox) Rect() image.Rectangle { return image.Rect(b[0], b[1], b[2], b[3]) }

// Detection is one entry of the response. Objects carry Confidence,
// barcodes carry Data and Pass.
type Detection struct {
	Type       string  `json:"type"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence,omitempty"`
	Data       string  `json:"data,omitempty"`
	BBox       BBox    `json:"bbox"`
	Pass       string  `json:"pass,omitempty"`
}

// Response is the per-image detection output.
type Response struct {
	Detections []Detection `json:"detections"`

	Width      int    `json:"-"`
	Height     int    `json:"-"`
	Processing Timing `json:"-"`
}

// Timing holds per-stage durations.
type Timing struct {
	ObjectsNs  int64 `json:"objects_ns"`
	BarcodesNs int64 `json:"barcodes_ns"`
	TotalNs    int64 `json:"total_ns"`
}

// Objects returns the object entries.
func (r *Response) Objects() []Detection { return r.filter(TypeObject) }

// Barcodes returns the barcode entries.
func (r *Response) Barcodes() []Detection { return r.filter(TypeBarcode) }

func (r *Response) filter(typ string) []Detection {
	out := []Detection{}
	if r == nil {
		return out
	}
	for _, d := range r.Detections {
		if d.Type == typ {
			out = append(out, d)
		}
	}
	return out
}

func objectEntry(d objects.Detection) Detection {
	return Detection{
		Type:       TypeObject,
		Label:      d.Label,
		Confidence: float64(d.Confidence),
		BBox:       NewBBox(d.Box),
	}
}

func barcodeEntry(s barcode.Symbol) Detection {
	return Detection{
		Type:  TypeBarcode,
		Label: s.Symbology.String(),
		Data:  s.Payload,
		BBox:  NewBBox(s.Box),
		Pass:  s.Pass.String(),
	}
}

// PDFResult holds the detections for every image of a PDF document.
type PDFResult struct {
	Filename   string          `json:"filename"`
	TotalPages int             `json:"total_pages"`
	Images     []PDFPageResult `json:"images"`
	Processing struct {
		ExtractionNs int64 `json:"extraction_ns"`
		TotalNs      int64 `json:"total_ns"`
	} `json:"processing"`
}

// PDFPageResult is the response for a single image of a PDF page.
type PDFPageResult struct {
	Page       int         `json:"page"`
	ImageIndex int         `json:"image_index"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Detections []Detection `json:"detections"`
}
