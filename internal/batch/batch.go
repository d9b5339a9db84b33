// Package batch scans many image and PDF files with a shared detection
// pipeline.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/codescan/internal/common"
	"github.com/MeKo-Tech/codescan/internal/pipeline"
)

// ErrNoFiles is returned when discovery finds nothing to scan.
var ErrNoFiles = errors.New("no image or PDF files found")

// ProcessBatch builds a pipeline from config and scans paths with it.
func ProcessBatch(ctx context.Context, paths []string, config *Config) (*Result, error) {
	pcfg := config.Pipeline
	if config.Workers > 0 {
		pcfg.Parallel.MaxWorkers = config.Workers
	}
	if config.ShowProgress && !config.Quiet {
		pcfg.Parallel.ProgressCallback = pipeline.NewConsoleProgressCallback(os.Stderr, "Scanning: ").
			WithUpdateInterval(config.ProgressInterval)
	}

	pl, err := pipeline.NewBuilder().WithConfig(pcfg).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			slog.Warn("Error closing pipeline", "error", err)
		}
	}()

	return Process(ctx, pl, paths, config)
}

// Process discovers the files in paths and scans them with pl. Unless
// ContinueOnError is set, any failed item makes the run fail.
func Process(ctx context.Context, pl *pipeline.Pipeline, paths []string, config *Config) (*Result, error) {
	files, err := discoverFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	slog.Debug("Discovered files", "count", len(files))

	memBefore := common.GetMemoryStats()
	timer := common.NewNamedTimer("scan")
	items, err := expandItems(ctx, files, config.PageRange)
	if err != nil {
		return nil, err
	}

	fileResults, jobResults := processItems(ctx, pl, items, config.OverlayDir)
	duration := timer.Stop()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	workers := pl.Config().Parallel.MaxWorkers
	res := &Result{
		Files:       fileResults,
		Duration:    duration,
		WorkerCount: workers,
		Stats:       pipeline.CalculateParallelStats(jobResults, duration, workers),
		Memory:      common.GetMemoryStats().Since(memBefore),
	}

	if !config.ContinueOnError {
		for _, jr := range jobResults {
			if jr.Err != nil {
				return nil, fmt.Errorf("scan failed for %s: %w", jr.Name, jr.Err)
			}
		}
	}
	return res, nil
}
