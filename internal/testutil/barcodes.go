package testutil

import (
	"image"
	"image/color"
	"testing"

	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/require"
)

// SampleEAN13 is a valid EAN-13 payload (check digit included).
const SampleEAN13 = "4006381333931"

// QRImage renders text as a black on white QR code of roughly size x size
// pixels, quiet zone included.
func QRImage(t testing.TB, text string, size int) *image.RGBA {
	t.Helper()

	img, err := EncodeQR(text, size)
	require.NoError(t, err, "Failed to encode QR code")
	return img
}

// EncodeQR is QRImage for callers without a testing.TB.
func EncodeQR(text string, size int) (*image.RGBA, error) {
	m, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, err
	}
	return bitMatrixImage(m), nil
}

// EAN13Image renders an EAN-13 symbol for the given 13 digit payload.
func EAN13Image(t testing.TB, digits string, width, height int) *image.RGBA {
	t.Helper()

	img, err := EncodeEAN13(digits, width, height)
	require.NoError(t, err, "Failed to encode EAN-13")
	return img
}

// EncodeEAN13 is EAN13Image for callers without a testing.TB.
func EncodeEAN13(digits string, width, height int) (*image.RGBA, error) {
	m, err := oned.NewEAN13Writer().Encode(digits, gozxing.BarcodeFormat_EAN_13, width, height, nil)
	if err != nil {
		return nil, err
	}
	return bitMatrixImage(m), nil
}

func bitMatrixImage(m *gozxing.BitMatrix) *image.RGBA {
	w, h := m.GetWidth(), m.GetHeight()
	img := CreateTestImage(w, h, color.White)
	for y := range h {
		for x := range w {
			if m.Get(x, y) {
				img.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
	}
	return img
}
