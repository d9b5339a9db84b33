package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/codescan/internal/pipeline"
	"github.com/MeKo-Tech/codescan/internal/webcam"
	"github.com/spf13/cobra"
)

// liveCmd shows annotated camera frames in a window.
var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run live detection on a camera feed",
	Long: `Open a camera and show every frame annotated with detected objects and
barcodes.

Keys:
  s  save the current frame and exit
  u  enter the path of an image to inspect
  q  quit

Camera support needs OpenCV; build with -tags gocv.

Examples:
  codescan live
  codescan live --device 1 --capture-path shots/frame.jpg`,
	SilenceUsage: true,
	RunE:         runLive,
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	overrideInt(cmd, "device", &cfg.Live.Device)
	overrideString(cmd, "capture-path", &cfg.Live.CapturePath)
	cfg.Objects.Confidence = cfg.Live.Confidence
	applyDetectionFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	source, err := webcam.OpenCamera(cfg.Live.Device)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	display, err := webcam.NewWindowDisplay()
	if err != nil {
		return err
	}
	defer func() { _ = display.Close() }()

	pl, err := pipeline.NewBuilder().WithConfig(cfg.ToPipelineConfig()).Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = pl.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	viewer := webcam.NewViewer(webcam.Config{CapturePath: cfg.Live.CapturePath},
		pl, source, display, webcam.NewLinePrompt(cmd.InOrStdin(), out), out)
	res, err := viewer.Run(ctx)
	slog.Info("Live viewer stopped", "frames", res.Frames, "captured", res.Captured)
	return err
}

func init() {
	rootCmd.AddCommand(liveCmd)
	liveCmd.Flags().Int("device", 0, "camera device index")
	liveCmd.Flags().String("capture-path", "", "where the s key saves the frame (default captured_image.jpg)")
	addDetectionFlags(liveCmd)
}
