package cmd

import (
	"github.com/MeKo-Tech/codescan/internal/config"
	"github.com/spf13/cobra"
)

// addDetectionFlags registers the pipeline flags shared by serve, scan and live.
func addDetectionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSlice("formats", nil, "barcode formats to decode, e.g. qr,ean13,code128 (default: all)")
	f.Bool("try-harder", false, "spend more time looking for barcodes in each pass")
	f.Bool("dedup", false, "drop symbols found again by a later decoding pass")
	f.Bool("parallel-passes", false, "run the four decoding passes concurrently")
	f.Bool("no-barcodes", false, "skip barcode decoding")

	f.String("objects-backend", "", "object detection backend: onnx, objectbox or none")
	f.String("model", "", "path to the YOLOv8 ONNX model")
	f.String("labels", "", "path to a class labels file (one name per line)")
	f.String("onnx-lib", "", "path to the ONNX Runtime shared library")
	f.Int("input-size", 0, "model input size in pixels (multiple of 32)")
	f.Float64("confidence", 0, "minimum object confidence (0.0-1.0)")
	f.Float64("iou", 0, "IoU threshold for non-maximum suppression (0.0-1.0)")
	f.Int("threads", 0, "ONNX Runtime intra-op threads (0 = runtime default)")
	f.String("objectbox-url", "", "objectbox service URL")
}

// applyDetectionFlags copies explicitly set detection flags into cfg.
func applyDetectionFlags(cmd *cobra.Command, cfg *config.Config) {
	overrideStringSlice(cmd, "formats", &cfg.Barcode.Formats)
	overrideBool(cmd, "try-harder", &cfg.Barcode.TryHarder)
	overrideBool(cmd, "dedup", &cfg.Barcode.Dedup)
	overrideBool(cmd, "parallel-passes", &cfg.Barcode.ParallelPasses)
	overrideBool(cmd, "no-barcodes", &cfg.Barcode.Disabled)

	overrideString(cmd, "objects-backend", &cfg.Objects.Backend)
	overrideString(cmd, "model", &cfg.Objects.ModelPath)
	overrideString(cmd, "labels", &cfg.Objects.LabelsPath)
	overrideString(cmd, "onnx-lib", &cfg.Objects.LibraryPath)
	overrideInt(cmd, "input-size", &cfg.Objects.InputSize)
	overrideFloat64(cmd, "confidence", &cfg.Objects.Confidence)
	overrideFloat64(cmd, "iou", &cfg.Objects.IoU)
	overrideInt(cmd, "threads", &cfg.Objects.NumThreads)
	overrideString(cmd, "objectbox-url", &cfg.Objects.ObjectboxURL)
}

func overrideString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

func overrideStringSlice(cmd *cobra.Command, name string, dst *[]string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetStringSlice(name)
	}
}

func overrideBool(cmd *cobra.Command, name string, dst *bool) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetBool(name)
	}
}

func overrideInt(cmd *cobra.Command, name string, dst *int) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetInt(name)
	}
}

func overrideFloat64(cmd *cobra.Command, name string, dst *float64) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetFloat64(name)
	}
}
