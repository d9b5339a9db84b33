//go:build gocv

package webcam

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

type camera struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
}

// OpenCamera opens the video device with the given index.
func OpenCamera(device int) (FrameSource, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", device, err)
	}
	return &camera{capture: capture, frame: gocv.NewMat()}, nil
}

func (c *camera) Read() (image.Image, error) {
	if ok := c.capture.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, errors.New("no frame from camera")
	}
	return c.frame.ToImage()
}

func (c *camera) Close() error {
	if err := c.frame.Close(); err != nil {
		return err
	}
	return c.capture.Close()
}

type windows struct {
	open map[string]*gocv.Window
	last *gocv.Window
}

// NewWindowDisplay returns a Display backed by OpenCV HighGUI windows.
func NewWindowDisplay() (Display, error) {
	return &windows{open: make(map[string]*gocv.Window)}, nil
}

func (w *windows) Show(title string, img image.Image) error {
	win, ok := w.open[title]
	if !ok {
		win = gocv.NewWindow(title)
		w.open[title] = win
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return err
	}
	defer mat.Close()
	win.IMShow(mat)
	w.last = win
	return nil
}

func (w *windows) WaitKey(delayMS int) int {
	if w.last == nil {
		return -1
	}
	return w.last.WaitKey(delayMS)
}

func (w *windows) Close() error {
	var errs []error
	for title, win := range w.open {
		errs = append(errs, win.Close())
		delete(w.open, title)
	}
	w.last = nil
	return errors.Join(errs...)
}
