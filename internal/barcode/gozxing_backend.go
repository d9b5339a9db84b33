package barcode

import (
	"context"
	"errors"
	"image"
	"image/draw"

	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	mqrcode "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Sub-region search limits of decodeMultiple.
const (
	maxMultiDepth     = 4
	minRegionToSearch = 100
)

func newDefaultBackend() (Backend, error) { return &gozxingBackend{}, nil }

// gozxingBackend is stateless; readers are created per call so a single
// instance can be shared between goroutines.
type gozxingBackend struct{}

func (b *gozxingBackend) Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !opts.ROI.Empty() {
		if roiImg, ok := subImage(img, opts.ROI); ok {
			img = roiImg
		}
	}

	hints := make(map[gozxing.DecodeHintType]interface{})
	if len(opts.Formats) > 0 {
		var formats []gozxing.BarcodeFormat
		for _, f := range opts.Formats {
			if bf, ok := mapFormatToZXing(f); ok {
				formats = append(formats, bf)
			}
		}
		if len(formats) > 0 {
			hints[gozxing.DecodeHintType_POSSIBLE_FORMATS] = formats
		}
	}
	if opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	source := gozxing.NewLuminanceSourceFromImage(img)
	bitmap, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(source))
	if err != nil {
		return nil, err
	}

	var results []*gozxing.Result
	if opts.Multi {
		results, err = decodeAll(bitmap, hints, opts.Formats)
	} else {
		var r *gozxing.Result
		r, err = newMultiFormatReader(opts.Formats, true).Decode(bitmap, hints)
		if err == nil && r != nil {
			results = []*gozxing.Result{r}
		}
	}
	if err != nil {
		var nf gozxing.NotFoundException
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}

	bounds := img.Bounds()
	out := make([]Result, 0, len(results))
	for _, r := range results {
		pts := r.GetResultPoints()
		var points []Point
		if len(pts) > 0 {
			points = make([]Point, 0, len(pts))
			for _, p := range pts {
				// gozxing works in zero-based coordinates of the luminance source
				points = append(points, Point{
					X: int(p.GetX()) + bounds.Min.X,
					Y: int(p.GetY()) + bounds.Min.Y,
				})
			}
		}
		out = append(out, Result{
			Type:   mapFormatFromZXing(r.GetBarcodeFormat()),
			Value:  r.GetText(),
			Points: points,
			BBox:   rectFromPoints(points),
		})
	}
	return out, nil
}

// decodeAll returns every symbol in bitmap. QR codes come from the QR multi
// reader, the other symbologies from a sub-region search with the single
// readers. QR joins the single readers when the multi reader finds nothing.
func decodeAll(bitmap *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{},
	formats []Format,
) ([]*gozxing.Result, error) {
	var results []*gozxing.Result
	seen := make(map[string]bool)

	withQR := false
	if wantFormat(formats, FormatQR) {
		// Any failure here (not found, checksum, format) leaves QR to the
		// single reader below.
		qr, _ := mqrcode.NewQRCodeMultiReader().DecodeMultiple(bitmap, hints)
		for _, r := range qr {
			seen[resultKey(r)] = true
			results = append(results, r)
		}
		withQR = len(qr) == 0
	}

	reader := newMultiFormatReader(formats, withQR)
	if len(reader.readers) > 0 {
		reader.decodeMultiple(bitmap, hints, 0, 0, 0, seen, &results)
	}
	if len(results) == 0 {
		return nil, gozxing.NewNotFoundException()
	}
	return results, nil
}

func resultKey(r *gozxing.Result) string {
	return r.GetBarcodeFormat().String() + "\x00" + r.GetText()
}

// multiFormatReader tries each configured reader in turn and returns the
// first successful read. Reader specific failures (checksum, format) are
// reported as not found.
type multiFormatReader struct {
	readers []gozxing.Reader
}

// wantFormat reports whether any of fs is selected. No selection means all.
func wantFormat(formats []Format, fs ...Format) bool {
	if len(formats) == 0 {
		return true
	}
	for _, f := range formats {
		for _, w := range fs {
			if f == w {
				return true
			}
		}
	}
	return false
}

// newMultiFormatReader builds the single-symbol readers for formats. The QR
// reader is only included when withQR is set.
func newMultiFormatReader(formats []Format, withQR bool) *multiFormatReader {
	want := func(fs ...Format) bool { return wantFormat(formats, fs...) }

	var readers []gozxing.Reader
	if withQR && want(FormatQR) {
		readers = append(readers, qrcode.NewQRCodeReader())
	}
	if want(FormatDataMatrix) {
		readers = append(readers, datamatrix.NewDataMatrixReader())
	}
	if want(FormatAztec) {
		readers = append(readers, aztec.NewAztecReader())
	}
	// EAN-13 also reads UPC-A symbols (with a leading zero).
	if want(FormatEAN13, FormatUPCA) {
		readers = append(readers, oned.NewEAN13Reader())
	}
	if want(FormatEAN8) {
		readers = append(readers, oned.NewEAN8Reader())
	}
	if want(FormatUPCE) {
		readers = append(readers, oned.NewUPCEReader())
	}
	if want(FormatCode128) {
		readers = append(readers, oned.NewCode128Reader())
	}
	if want(FormatCode39) {
		readers = append(readers, oned.NewCode39Reader())
	}
	if want(FormatITF) {
		readers = append(readers, oned.NewITFReader())
	}
	if want(FormatCodabar) {
		readers = append(readers, oned.NewCodaBarReader())
	}
	return &multiFormatReader{readers: readers}
}

func (m *multiFormatReader) DecodeWithoutHints(image *gozxing.BinaryBitmap) (*gozxing.Result, error) {
	return m.Decode(image, nil)
}

func (m *multiFormatReader) Decode(image *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) (*gozxing.Result, error) {
	for _, r := range m.readers {
		res, err := r.Decode(image, hints)
		if err == nil && res != nil {
			return res, nil
		}
	}
	return nil, gozxing.NewNotFoundException()
}

func (m *multiFormatReader) Reset() {
	for _, r := range m.readers {
		r.Reset()
	}
}

// decodeMultiple decodes img and then searches the regions left of, above,
// right of and below every hit. xOff and yOff place img in the full bitmap.
// Repeated (format, text) pairs are reported once.
func (m *multiFormatReader) decodeMultiple(img *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{},
	xOff, yOff, depth int, seen map[string]bool, out *[]*gozxing.Result,
) {
	if depth > maxMultiDepth {
		return
	}
	res, err := m.Decode(img, hints)
	if err != nil || res == nil {
		return
	}
	if key := resultKey(res); !seen[key] {
		seen[key] = true
		*out = append(*out, translateResult(res, xOff, yOff))
	}

	pts := res.GetResultPoints()
	if len(pts) == 0 {
		return
	}
	w, h := img.GetWidth(), img.GetHeight()
	minX, minY := float64(w), float64(h)
	maxX, maxY := 0.0, 0.0
	for _, p := range pts {
		minX, maxX = min(minX, p.GetX()), max(maxX, p.GetX())
		minY, maxY = min(minY, p.GetY()), max(maxY, p.GetY())
	}
	x0, y0, x1, y1 := int(minX), int(minY), int(maxX), int(maxY)

	search := func(left, top, width, height int) {
		sub, err := img.Crop(left, top, width, height)
		if err != nil {
			return
		}
		m.decodeMultiple(sub, hints, xOff+left, yOff+top, depth+1, seen, out)
	}
	if x0 > minRegionToSearch {
		search(0, 0, x0, h)
	}
	if y0 > minRegionToSearch {
		search(0, 0, w, y0)
	}
	if x1 < w-minRegionToSearch {
		search(x1, 0, w-x1, h)
	}
	if y1 < h-minRegionToSearch {
		search(0, y1, w, h-y1)
	}
}

// translateResult moves the result points of r by (dx, dy).
func translateResult(r *gozxing.Result, dx, dy int) *gozxing.Result {
	if dx == 0 && dy == 0 {
		return r
	}
	pts := r.GetResultPoints()
	moved := make([]gozxing.ResultPoint, len(pts))
	for i, p := range pts {
		moved[i] = gozxing.NewResultPoint(p.GetX()+float64(dx), p.GetY()+float64(dy))
	}
	t := gozxing.NewResult(r.GetText(), r.GetRawBytes(), moved, r.GetBarcodeFormat())
	t.PutAllMetadata(r.GetResultMetadata())
	return t
}

func mapFormatToZXing(f Format) (gozxing.BarcodeFormat, bool) {
	switch f {
	case FormatQR:
		return gozxing.BarcodeFormat_QR_CODE, true
	case FormatDataMatrix:
		return gozxing.BarcodeFormat_DATA_MATRIX, true
	case FormatAztec:
		return gozxing.BarcodeFormat_AZTEC, true
	case FormatCode128:
		return gozxing.BarcodeFormat_CODE_128, true
	case FormatCode39:
		return gozxing.BarcodeFormat_CODE_39, true
	case FormatEAN8:
		return gozxing.BarcodeFormat_EAN_8, true
	case FormatEAN13:
		return gozxing.BarcodeFormat_EAN_13, true
	case FormatUPCA:
		return gozxing.BarcodeFormat_UPC_A, true
	case FormatUPCE:
		return gozxing.BarcodeFormat_UPC_E, true
	case FormatITF:
		return gozxing.BarcodeFormat_ITF, true
	case FormatCodabar:
		return gozxing.BarcodeFormat_CODABAR, true
	default:
		return 0, false
	}
}

func mapFormatFromZXing(bf gozxing.BarcodeFormat) Format {
	switch bf {
	case gozxing.BarcodeFormat_QR_CODE:
		return FormatQR
	case gozxing.BarcodeFormat_DATA_MATRIX:
		return FormatDataMatrix
	case gozxing.BarcodeFormat_AZTEC:
		return FormatAztec
	case gozxing.BarcodeFormat_CODE_128:
		return FormatCode128
	case gozxing.BarcodeFormat_CODE_39:
		return FormatCode39
	case gozxing.BarcodeFormat_EAN_8:
		return FormatEAN8
	case gozxing.BarcodeFormat_EAN_13:
		return FormatEAN13
	case gozxing.BarcodeFormat_UPC_A:
		return FormatUPCA
	case gozxing.BarcodeFormat_UPC_E:
		return FormatUPCE
	case gozxing.BarcodeFormat_ITF:
		return FormatITF
	case gozxing.BarcodeFormat_CODABAR:
		return FormatCodabar
	default:
		return FormatUnknown
	}
}

// subImage returns a sub-image if supported by the image implementation.
func subImage(img image.Image, r image.Rectangle) (image.Image, bool) {
	rb := r.Intersect(img.Bounds())
	if rb.Empty() {
		return nil, false
	}
	type subImager interface{ SubImage(r image.Rectangle) image.Image }
	if s, ok := img.(subImager); ok {
		return s.SubImage(rb), true
	}
	dst := image.NewRGBA(rb)
	draw.Draw(dst, dst.Bounds(), img, rb.Min, draw.Src)
	return dst, true
}
