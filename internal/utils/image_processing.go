package utils

import (
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/codescan/internal/mempool"
	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// Grayscale converts img to a single channel luma image using the BT.601
// weights in 14-bit fixed point (0.299 R + 0.587 G + 0.114 B, rounded).
// The result is zero-based and has the same size as img.
func Grayscale(img image.Image) (*image.Gray, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "grayscale", Err: errors.New("input image is nil")}
	}
	if g, ok := img.(*image.Gray); ok {
		out := image.NewGray(image.Rect(0, 0, g.Bounds().Dx(), g.Bounds().Dy()))
		for y := range out.Rect.Dy() {
			w := out.Rect.Dx()
			copy(out.Pix[y*out.Stride:y*out.Stride+w], g.Pix[y*g.Stride:y*g.Stride+w])
		}
		return out, nil
	}

	// imaging.Clone yields zero-based, non-premultiplied pixels.
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := range w {
			r := uint32(row[x*4])
			g := uint32(row[x*4+1])
			b := uint32(row[x*4+2])
			dst[x] = uint8((r*4899 + g*9617 + b*1868 + 8192) >> 14)
		}
	}
	return out, nil
}

// Threshold binarises gray with a fixed cutoff: pixels >= thresh become
// maxVal, all others 0.
func Threshold(gray *image.Gray, thresh, maxVal uint8) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		src := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, v := range src {
			if v >= thresh {
				dst[x] = maxVal
			}
		}
	}
	return out
}

// AdaptiveThresholdMean binarises gray against the mean of the
// blockSize x blockSize neighbourhood of every pixel minus c. Pixels greater
// than the local threshold become maxVal, all others 0. Borders are
// extended by replicating the edge pixels. blockSize must be odd and > 1.
func AdaptiveThresholdMean(gray *image.Gray, maxVal uint8, blockSize, c int) (*image.Gray, error) {
	if gray == nil {
		return nil, &ImageProcessingError{Operation: "adaptive_threshold", Err: errors.New("input image is nil")}
	}
	if blockSize < 3 || blockSize%2 == 0 {
		return nil, &ImageProcessingError{
			Operation: "adaptive_threshold",
			Err:       fmt.Errorf("block size must be odd and >= 3, got %d", blockSize),
		}
	}

	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out, nil
	}

	r := blockSize / 2
	pw, ph := w+2*r, h+2*r
	// Integral image of the padded plane, one extra row and column of zeros.
	integral := mempool.Int64.Get((pw + 1) * (ph + 1))
	defer mempool.Int64.Put(integral)
	stride := pw + 1
	clear(integral[:stride])
	for py := 1; py <= ph; py++ {
		integral[py*stride] = 0
	}
	for py := range ph {
		sy := clampInt(py-r, 0, h-1)
		srcRow := gray.Pix[sy*gray.Stride:]
		var rowSum int64
		for px := range pw {
			sx := clampInt(px-r, 0, w-1)
			rowSum += int64(srcRow[sx])
			integral[(py+1)*stride+px+1] = integral[py*stride+px+1] + rowSum
		}
	}

	area := int64(blockSize * blockSize)
	for y := range h {
		src := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, v := range src {
			// Window in padded coordinates is [x, x+blockSize) x [y, y+blockSize).
			x0, y0 := x, y
			x1, y1 := x+blockSize, y+blockSize
			sum := integral[y1*stride+x1] - integral[y0*stride+x1] - integral[y1*stride+x0] + integral[y0*stride+x0]
			mean := (sum + area/2) / area
			if int64(v) > mean-int64(c) {
				dst[x] = maxVal
			}
		}
	}
	return out, nil
}

// ResizeImage scales img to exactly width x height with a linear filter.
func ResizeImage(img image.Image, width, height int) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "resize", Err: errors.New("input image is nil")}
	}
	if width <= 0 || height <= 0 {
		return nil, &ImageProcessingError{
			Operation: "resize",
			Err:       fmt.Errorf("invalid target dimensions: %dx%d", width, height),
		}
	}
	return imaging.Resize(img, width, height, imaging.Linear), nil
}

// NormalizeImageIntoBuffer writes img as a planar RGB tensor with values in
// [0,1] (NCHW layout, batch of one) into buf if it has sufficient capacity.
// If buf is nil or too small, a new buffer is allocated.
// Returns the slice used (length set appropriately) and image width/height.
func NormalizeImageIntoBuffer(img image.Image, buf []float32) ([]float32, int, int, error) {
	if img == nil {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("input image is nil")}
	}

	nrgba := imaging.Clone(img)
	width := nrgba.Rect.Dx()
	height := nrgba.Rect.Dy()
	if width <= 0 || height <= 0 {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("invalid image dimensions")}
	}
	needed := 3 * width * height
	if buf == nil || cap(buf) < needed {
		buf = make([]float32, needed)
	}
	data := buf[:needed]
	plane := width * height
	for y := range height {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := range width {
			idx := y*width + x
			data[idx] = float32(row[x*4]) / 255.0
			data[plane+idx] = float32(row[x*4+1]) / 255.0
			data[2*plane+idx] = float32(row[x*4+2]) / 255.0
		}
	}
	return data, width, height, nil
}
