package pipeline

import (
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/codescan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderOverlay(t *testing.T) {
	src := testutil.CreateTestImage(200, 150, color.White)
	res := &Response{Detections: []Detection{
		{Type: TypeBarcode, Label: "QR", Data: "hello", BBox: BBox{50, 60, 150, 140}, Pass: "original"},
		{Type: TypeObject, Label: "person", Confidence: 0.9, BBox: BBox{5, 40, 40, 100}},
	}}

	out := RenderOverlay(src, res)
	require.NotNil(t, out)
	assert.Equal(t, image.Rect(0, 0, 200, 150), out.Bounds())

	// box edge drawn in the barcode colour, interior untouched
	r, g, b, _ := out.At(100, 140).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, g>>8, uint32(80))
	assert.Less(t, b>>8, uint32(80))
	assert.Equal(t, color.RGBAModel.Convert(color.White), color.RGBAModel.Convert(out.At(100, 100)))

	// source not modified
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, src.RGBAAt(100, 140))
}

func TestRenderOverlay_OffsetBoundsAndNil(t *testing.T) {
	base := testutil.CreateTestImage(100, 100, color.Black)
	sub := base.SubImage(image.Rect(20, 20, 60, 60))
	out := RenderOverlay(sub, nil)
	require.NotNil(t, out)
	assert.Equal(t, image.Rect(0, 0, 40, 40), out.Bounds())
	assert.Equal(t, color.RGBAModel.Convert(color.Black), color.RGBAModel.Convert(out.At(0, 0)))

	assert.Nil(t, RenderOverlay(nil, nil))
}

func TestPaletteColorStable(t *testing.T) {
	assert.Equal(t, paletteColor("dog"), paletteColor("dog"))
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
