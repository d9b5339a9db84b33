package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/codescan/internal/batch"
	"github.com/MeKo-Tech/codescan/internal/config"
	"github.com/spf13/cobra"
)

// scanCmd decodes barcodes and detects objects in files, directories and PDFs.
var scanCmd = &cobra.Command{
	Use:   "scan [files or directories...]",
	Short: "Detect barcodes and objects in images and PDFs",
	Long: `Scan image files, directories and PDF documents for barcodes, QR codes and
objects. Files are processed in parallel by a shared detection pipeline.

Supported formats: JPEG, PNG, BMP, GIF, TIFF, WebP and PDF

Examples:
  codescan scan label.png
  codescan scan photos/ --recursive --workers 8
  codescan scan invoice.pdf --pages 1-3 --format json --output results.json
  codescan scan shelf.jpg --objects-backend none --formats qr,ean13 --dedup`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runScan,
}

func applyScanFlags(cmd *cobra.Command, cfg *config.Config) {
	overrideBool(cmd, "recursive", &cfg.Batch.Recursive)
	overrideStringSlice(cmd, "include", &cfg.Batch.Include)
	overrideStringSlice(cmd, "exclude", &cfg.Batch.Exclude)
	overrideInt(cmd, "workers", &cfg.Batch.Workers)
	overrideString(cmd, "pages", &cfg.Batch.Pages)
	overrideBool(cmd, "continue-on-error", &cfg.Batch.ContinueOnError)

	overrideString(cmd, "format", &cfg.Output.Format)
	overrideString(cmd, "output", &cfg.Output.File)
	overrideString(cmd, "overlay-dir", &cfg.Output.OverlayDir)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	applyScanFlags(cmd, cfg)
	applyDetectionFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	batchConfig := cfg.ToBatchConfig()
	batchConfig.Quiet, _ = cmd.Flags().GetBool("quiet")
	batchConfig.ShowProgress, _ = cmd.Flags().GetBool("progress")
	batchConfig.ProgressInterval, _ = cmd.Flags().GetDuration("progress-interval")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := batch.ProcessBatch(ctx, args, batchConfig)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if err := result.SaveResults(cmd.OutOrStdout(), cfg.Output.Format, cfg.Output.File, batchConfig.Quiet); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	if stats, _ := cmd.Flags().GetBool("stats"); stats && !batchConfig.Quiet {
		result.PrintStats(cmd.ErrOrStderr())
	}
	return nil
}

func init() {
	rootCmd.AddCommand(scanCmd)

	// Output flags
	scanCmd.Flags().StringP("format", "f", "text", "output format: text, json, csv")
	scanCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	scanCmd.Flags().String("overlay-dir", "", "directory to save annotated overlay images")

	// File discovery flags
	scanCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	scanCmd.Flags().StringSlice("include", nil, "file patterns to include, e.g. *.png")
	scanCmd.Flags().StringSlice("exclude", nil, "file patterns to exclude")
	scanCmd.Flags().String("pages", "", "PDF page range, e.g. 1-3,5 (default: all pages)")

	// Processing flags
	scanCmd.Flags().IntP("workers", "w", 0, "number of parallel workers (default from config)")
	scanCmd.Flags().Bool("continue-on-error", false, "report failed files instead of aborting")

	// Progress and monitoring flags
	scanCmd.Flags().Bool("progress", false, "show progress bar")
	scanCmd.Flags().Bool("quiet", false, "suppress progress output")
	scanCmd.Flags().Bool("stats", false, "show processing statistics")
	scanCmd.Flags().Duration("progress-interval", 500*time.Millisecond, "progress update interval")

	addDetectionFlags(scanCmd)
}
