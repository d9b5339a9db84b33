package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/codescan/internal/common"
	"github.com/MeKo-Tech/codescan/internal/pipeline"
)

// Output formats accepted by FormatResults.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Config holds all configuration for a scan run.
type Config struct {
	Pipeline pipeline.Config

	// File discovery
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string
	PageRange       string // for PDF inputs

	Workers         int
	ContinueOnError bool
	OverlayDir      string

	ShowProgress     bool
	Quiet            bool
	ProgressInterval time.Duration
}

// FileResult is the outcome for one image, or one image of a PDF page.
type FileResult struct {
	File       string               `json:"file"`
	Page       int                  `json:"page,omitempty"`
	ImageIndex int                  `json:"image_index,omitempty"`
	Width      int                  `json:"width,omitempty"`
	Height     int                  `json:"height,omitempty"`
	Detections []pipeline.Detection `json:"detections"`
	Error      string               `json:"error,omitempty"`
	Overlay    string               `json:"overlay,omitempty"`
}

// Result holds the result of a scan run.
type Result struct {
	Files       []FileResult
	Duration    time.Duration
	WorkerCount int
	Stats       pipeline.ParallelStats
	Memory      common.MemoryStats
}

// Failed returns the number of items that could not be processed.
func (r *Result) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Error != "" {
			n++
		}
	}
	return n
}

// FormatResults formats the results in the given format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatResults(r.Files, format)
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile == "" {
		_, err := fmt.Fprintln(w, output)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(output+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if !quiet {
		_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
	}
	return nil
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer) {
	s := r.Stats
	_, _ = fmt.Fprintf(w, "\nScan statistics:\n")
	_, _ = fmt.Fprintf(w, "  Items: %d\n", s.TotalImages)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", s.ProcessedImages)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", s.FailedImages)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", s.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", s.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per item: %v\n", s.AveragePerImage.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f items/sec\n", s.ThroughputPerSec)
	_, _ = fmt.Fprintf(w, "  Memory: %s\n", r.Memory)
}
