// Package barcode decodes linear and 2D symbols from images.
//
// A Backend performs a single decode attempt on one image. Decoder wraps a
// Backend and runs it over a fixed sequence of derived images (original,
// grayscale, fixed threshold, adaptive threshold), collecting every symbol
// found in pass order.
//
// The default Backend is built on gozxing and needs no CGO.
package barcode
