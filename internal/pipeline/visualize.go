package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

// Overlay colours.
var (
	BarcodeColor = color.RGBA{255, 0, 0, 255}
	labelText    = color.White
)

var objectPalette = []color.RGBA{
	{56, 56, 255, 255},
	{151, 157, 255, 255},
	{31, 112, 255, 255},
	{29, 178, 255, 255},
	{49, 210, 207, 255},
	{10, 249, 72, 255},
	{23, 204, 146, 255},
	{134, 219, 61, 255},
}

const maxLabelRunes = 32

// RenderOverlay draws every detection box with its label on a copy of img.
// Objects get a colour per label, barcodes are drawn in BarcodeColor.
func RenderOverlay(img image.Image, res *Response) image.Image {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	if res == nil {
		return dc.Image()
	}

	lw := max(2, float64(min(b.Dx(), b.Dy()))/300)
	for _, d := range res.Detections {
		c := BarcodeColor
		text := d.Label + ": " + truncate(d.Data, maxLabelRunes)
		if d.Type == TypeObject {
			c = paletteColor(d.Label)
			text = fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
		}

		x1, y1 := float64(d.BBox[0]), float64(d.BBox[1])
		w, h := float64(d.BBox[2]-d.BBox[0]), float64(d.BBox[3]-d.BBox[1])
		dc.SetColor(c)
		dc.SetLineWidth(lw)
		dc.DrawRectangle(x1, y1, w, h)
		dc.Stroke()

		tw, th := dc.MeasureString(text)
		ty := y1 - th - 4
		if ty < 0 {
			ty = y1
		}
		dc.DrawRectangle(x1, ty, tw+4, th+4)
		dc.Fill()
		dc.SetColor(labelText)
		dc.DrawStringAnchored(text, x1+2, ty+2, 0, 1)
	}
	return dc.Image()
}

func paletteColor(label string) color.RGBA {
	var h uint32
	for _, r := range label {
		h = h*31 + uint32(r)
	}
	return objectPalette[h%uint32(len(objectPalette))]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
