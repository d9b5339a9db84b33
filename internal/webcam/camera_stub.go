//go:build !gocv

package webcam

// OpenCamera reports ErrNoCamera in builds without OpenCV.
func OpenCamera(int) (FrameSource, error) {
	return nil, ErrNoCamera
}

// NewWindowDisplay reports ErrNoCamera in builds without OpenCV.
func NewWindowDisplay() (Display, error) {
	return nil, ErrNoCamera
}
