package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test image sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
)

// CreateTestImage returns a solid image of the given size and colour.
func CreateTestImage(width, height int, backgroundColor color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColor}, image.Point{}, draw.Src)
	return img
}

// Placement positions a fixture image on a canvas.
type Placement struct {
	Img image.Image
	At  image.Point
}

// Compose draws the placements onto a canvas of the given size and background.
func Compose(size ImageSize, background color.Color, parts ...Placement) *image.RGBA {
	canvas := CreateTestImage(size.Width, size.Height, background)
	for _, p := range parts {
		b := p.Img.Bounds()
		dst := image.Rectangle{Min: p.At, Max: p.At.Add(b.Size())}
		draw.Draw(canvas, dst, p.Img, b.Min, draw.Src)
	}
	return canvas
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img), "Failed to encode PNG image")
	return buf.Bytes()
}

// SaveImage saves an image to the specified path.
func SaveImage(t testing.TB, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, os.MkdirAll(dir, 0o750), "Failed to create directory %s", dir)
	require.NoError(t, os.WriteFile(path, EncodePNG(t, img), 0o600), "Failed to write %s", path)
}

// LoadImage loads an image from the specified path.
func LoadImage(t testing.TB, path string) image.Image {
	t.Helper()

	file, err := os.Open(path) //nolint:gosec // G304: Test file reading with controlled path
	require.NoError(t, err, "Failed to open image file %s", path)
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	require.NoError(t, err, "Failed to decode image")

	return img
}
