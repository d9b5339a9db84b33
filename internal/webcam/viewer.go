// Package webcam runs the live detection viewer: frames from a camera are
// annotated with object and barcode detections and shown in a window until
// the user captures a frame, inspects a still image or quits.
package webcam

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/codescan/internal/pipeline"
	"github.com/MeKo-Tech/codescan/internal/utils"
	"github.com/disintegration/imaging"
)

// Window titles.
const (
	LiveWindowTitle   = "Live Detection"
	UploadWindowTitle = "Detection on Uploaded Image"
)

// ErrNoCamera is returned when the binary was built without camera support.
var ErrNoCamera = errors.New("camera support is not compiled in (rebuild with -tags gocv)")

// Action is what a key press asks the viewer to do.
type Action int

const (
	ActionNone Action = iota
	ActionCapture
	ActionUpload
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionCapture:
		return "capture"
	case ActionUpload:
		return "upload"
	case ActionQuit:
		return "quit"
	default:
		return "none"
	}
}

const keyEscape = 27

// ParseKey maps a key code as returned by the window to an Action.
// Only the low byte is significant.
func ParseKey(key int) Action {
	if key < 0 {
		return ActionNone
	}
	switch key & 0xFF {
	case 's', 'S':
		return ActionCapture
	case 'u', 'U':
		return ActionUpload
	case 'q', 'Q', keyEscape:
		return ActionQuit
	default:
		return ActionNone
	}
}

// Detector annotates a single frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (*pipeline.Response, error)
}

// FrameSource yields camera frames.
type FrameSource interface {
	Read() (image.Image, error)
	Close() error
}

// Display shows images and reports key presses. WaitKey returns -1 when no
// key was pressed within the delay; a delay of 0 blocks.
type Display interface {
	Show(title string, img image.Image) error
	WaitKey(delayMS int) int
	Close() error
}

// PromptFunc asks the user for a value. An empty answer means cancelled.
type PromptFunc func(question string) (string, error)

// Config controls the viewer.
type Config struct {
	CapturePath string
	// FrameDelayMS is the key poll delay between frames.
	FrameDelayMS int
}

// Viewer drives the capture loop.
type Viewer struct {
	detector Detector
	source   FrameSource
	display  Display
	prompt   PromptFunc
	out      io.Writer
	cfg      Config
}

// NewViewer wires a viewer. A nil prompt reads from stdin and a nil out
// discards status messages.
func NewViewer(cfg Config, det Detector, src FrameSource, disp Display, prompt PromptFunc, out io.Writer) *Viewer {
	if cfg.CapturePath == "" {
		cfg.CapturePath = "captured_image.jpg"
	}
	if cfg.FrameDelayMS <= 0 {
		cfg.FrameDelayMS = 1
	}
	if out == nil {
		out = io.Discard
	}
	if prompt == nil {
		prompt = NewLinePrompt(os.Stdin, out)
	}
	return &Viewer{detector: det, source: src, display: disp, prompt: prompt, out: out, cfg: cfg}
}

// Result reports how a Run ended.
type Result struct {
	Frames   int
	Captured string
}

// Run processes frames until quit, capture, context cancellation or a
// camera failure.
func (v *Viewer) Run(ctx context.Context) (Result, error) {
	var res Result
	for {
		if err := ctx.Err(); err != nil {
			return res, nil
		}

		frame, err := v.source.Read()
		if err != nil {
			fmt.Fprintln(v.out, "Failed to grab frame.")
			return res, fmt.Errorf("failed to grab frame: %w", err)
		}
		res.Frames++

		annotated, err := v.annotate(ctx, frame)
		if err != nil {
			return res, err
		}
		if err := v.display.Show(LiveWindowTitle, annotated); err != nil {
			return res, fmt.Errorf("failed to show frame: %w", err)
		}

		switch ParseKey(v.display.WaitKey(v.cfg.FrameDelayMS)) {
		case ActionCapture:
			if err := SaveImage(frame, v.cfg.CapturePath); err != nil {
				return res, err
			}
			fmt.Fprintf(v.out, "Image captured and saved as '%s'.\n", v.cfg.CapturePath)
			res.Captured = v.cfg.CapturePath
			return res, nil
		case ActionUpload:
			if err := v.inspectFile(ctx); err != nil {
				return res, err
			}
		case ActionQuit:
			fmt.Fprintln(v.out, "Exiting.")
			return res, nil
		case ActionNone:
		}
	}
}

func (v *Viewer) annotate(ctx context.Context, img image.Image) (image.Image, error) {
	resp, err := v.detector.Detect(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return img, nil
		}
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	slog.Debug("Frame processed",
		"objects", len(resp.Objects()),
		"barcodes", len(resp.Barcodes()))
	return pipeline.RenderOverlay(img, resp), nil
}

// inspectFile asks for an image path, annotates it and waits for any key.
// Missing or unreadable files only produce a message.
func (v *Viewer) inspectFile(ctx context.Context) error {
	path, err := v.prompt("Enter the path of the image to inspect: ")
	if err != nil {
		return fmt.Errorf("failed to read image path: %w", err)
	}
	path = strings.TrimSpace(path)
	if path == "" {
		fmt.Fprintln(v.out, "No image selected.")
		return nil
	}

	img, _, err := utils.LoadImage(path)
	if err != nil {
		slog.Warn("Failed to load image", "path", path, "error", err)
		fmt.Fprintln(v.out, "Failed to load the selected image.")
		return nil
	}
	annotated, err := v.annotate(ctx, img)
	if err != nil {
		return err
	}
	if err := v.display.Show(UploadWindowTitle, annotated); err != nil {
		return fmt.Errorf("failed to show image: %w", err)
	}
	v.display.WaitKey(0)
	return nil
}

// SaveImage writes img to path, choosing the encoder from the extension.
func SaveImage(img image.Image, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create capture directory: %w", err)
		}
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save capture: %w", err)
	}
	return nil
}

// NewLinePrompt returns a PromptFunc reading one line from r per question.
func NewLinePrompt(r io.Reader, w io.Writer) PromptFunc {
	reader := bufio.NewReader(r)
	return func(question string) (string, error) {
		fmt.Fprint(w, question)
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
