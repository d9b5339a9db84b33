package barcode

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/codescan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"qr", FormatQR, true},
		{" QRCode ", FormatQR, true},
		{"ean-13", FormatEAN13, true},
		{"EAN8", FormatEAN8, true},
		{"code128", FormatCode128, true},
		{"i2/5", FormatITF, true},
		{"maxicode", FormatUnknown, false},
		{"pdf417", FormatUnknown, false},
	}
	for _, tt := range tests {
		got, ok := ParseFormat(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseFormats(t *testing.T) {
	formats, unknown := ParseFormats([]string{"qr", "", "bogus", "upc-a"})
	assert.Equal(t, []Format{FormatQR, FormatUPCA}, formats)
	assert.Equal(t, []string{"bogus"}, unknown)
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "QR", FormatQR.String())
	assert.Equal(t, "EAN-13", FormatEAN13.String())
	assert.Equal(t, "unknown", FormatUnknown.String())
	assert.True(t, FormatEAN13.IsLinear())
	assert.False(t, FormatQR.IsLinear())
}

func TestGozxingBackend(t *testing.T) {
	backend, err := NewBackend()
	require.NoError(t, err)

	qr := testutil.QRImage(t, "backend", 150)
	img := testutil.Compose(testutil.ImageSize{Width: 400, Height: 200}, color.White,
		testutil.Placement{Img: qr, At: image.Pt(220, 20)})
	placed := image.Rect(220, 20, 220+qr.Bounds().Dx(), 20+qr.Bounds().Dy())

	t.Run("multi", func(t *testing.T) {
		res, err := backend.Decode(context.Background(), img, Options{Multi: true})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, FormatQR, res[0].Type)
		assert.Equal(t, "backend", res[0].Value)
		assert.True(t, res[0].BBox.In(placed))
	})

	t.Run("single", func(t *testing.T) {
		res, err := backend.Decode(context.Background(), img, Options{TryHarder: true})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "backend", res[0].Value)
	})

	t.Run("roi keeps absolute coordinates", func(t *testing.T) {
		res, err := backend.Decode(context.Background(), img, Options{ROI: image.Rect(200, 0, 400, 200)})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.True(t, res[0].BBox.In(placed), "bbox %v", res[0].BBox)
	})

	t.Run("roi without symbol", func(t *testing.T) {
		res, err := backend.Decode(context.Background(), img, Options{ROI: image.Rect(0, 0, 200, 200)})
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("format filter", func(t *testing.T) {
		res, err := backend.Decode(context.Background(), img, Options{Formats: []Format{FormatCode128}})
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := backend.Decode(ctx, img, Options{})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestGozxingBackend_MultipleSymbols(t *testing.T) {
	backend, err := NewBackend()
	require.NoError(t, err)

	const otherEAN13 = "5901234123457"
	img := testutil.Compose(testutil.ImageSize{Width: 720, Height: 420}, color.White,
		testutil.Placement{Img: testutil.QRImage(t, "left", 150), At: image.Pt(20, 20)},
		testutil.Placement{Img: testutil.QRImage(t, "right", 150), At: image.Pt(250, 20)},
		testutil.Placement{Img: testutil.EAN13Image(t, testutil.SampleEAN13, 200, 80), At: image.Pt(20, 260)},
		testutil.Placement{Img: testutil.EAN13Image(t, otherEAN13, 200, 80), At: image.Pt(460, 260)},
	)

	res, err := backend.Decode(context.Background(), img, Options{Multi: true})
	require.NoError(t, err)

	got := map[string]Format{}
	for _, r := range res {
		got[r.Value] = r.Type
		assert.False(t, r.BBox.Empty(), "%s has no box", r.Value)
	}
	assert.Equal(t, map[string]Format{
		"left":               FormatQR,
		"right":              FormatQR,
		testutil.SampleEAN13: FormatEAN13,
		otherEAN13:           FormatEAN13,
	}, got)

	t.Run("linear only", func(t *testing.T) {
		res, err := backend.Decode(context.Background(), img, Options{Multi: true, Formats: []Format{FormatEAN13}})
		require.NoError(t, err)
		require.Len(t, res, 2)
		for _, r := range res {
			assert.Equal(t, FormatEAN13, r.Type)
			assert.GreaterOrEqual(t, r.BBox.Min.Y, 260, "points are translated back from the sub-region")
		}
	})
}
