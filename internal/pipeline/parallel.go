package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"
)

// ParallelConfig holds configuration for multi-image runs.
type ParallelConfig struct {
	MaxWorkers       int              // 0 = runtime.NumCPU()
	ProgressCallback ProgressCallback // optional
}

// DefaultParallelConfig returns sensible defaults for parallel processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

// Job is a unit of work for RunParallel.
type Job struct {
	Index int
	Name  string
	Load  func() (image.Image, error)
}

// JobResult is the outcome of a Job. Exactly one of Response and Err is set.
type JobResult struct {
	Index    int
	Name     string
	Response *Response
	Err      error
	Duration time.Duration
}

// DetectImagesParallel runs Detect on images with a worker pool. Results
// keep the input order; the first failure is returned alongside the
// partial results.
func (p *Pipeline) DetectImagesParallel(ctx context.Context, images []image.Image) ([]*Response, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	jobs := make([]Job, len(images))
	for i, img := range images {
		jobs[i] = Job{Index: i, Load: func() (image.Image, error) { return img, nil }}
	}

	results := p.RunParallel(ctx, jobs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*Response, len(images))
	var firstErr error
	for i, r := range results {
		if r.Err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("image %d: %w", i, r.Err)
			}
			continue
		}
		out[i] = r.Response
	}
	return out, firstErr
}

// RunParallel loads and detects every job with up to Parallel.MaxWorkers
// goroutines. The returned slice is indexed like jobs. Jobs not started
// before ctx is cancelled carry ctx.Err().
func (p *Pipeline) RunParallel(ctx context.Context, jobs []Job) []JobResult {
	results := make([]JobResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	workers := p.cfg.Parallel.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(jobs))

	progress := p.cfg.Parallel.ProgressCallback
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	progress.OnStart(len(jobs))
	defer progress.OnComplete()

	queue := make(chan int)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				r := p.runJob(ctx, jobs[i])
				results[i] = r

				mu.Lock()
				done++
				current := done
				mu.Unlock()
				if r.Err != nil {
					progress.OnError(current, r.Err)
				}
				progress.OnProgress(current, len(jobs))
			}
		}()
	}

	sent := 0
feed:
	for ; sent < len(jobs); sent++ {
		select {
		case queue <- sent:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	for i := sent; i < len(jobs); i++ {
		results[i] = JobResult{Index: jobs[i].Index, Name: jobs[i].Name, Err: ctx.Err()}
	}
	return results
}

func (p *Pipeline) runJob(ctx context.Context, job Job) JobResult {
	start := time.Now()
	r := JobResult{Index: job.Index, Name: job.Name}
	img, err := job.Load()
	if err != nil {
		r.Err = err
	} else {
		r.Response, r.Err = p.Detect(ctx, img)
	}
	r.Duration = time.Since(start)
	return r
}

// ParallelStats holds statistics about a multi-image run.
type ParallelStats struct {
	TotalImages      int           `json:"total_images"`
	ProcessedImages  int           `json:"processed_images"`
	FailedImages     int           `json:"failed_images"`
	WorkerCount      int           `json:"worker_count"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	AveragePerImage  time.Duration `json:"average_per_image_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// CalculateParallelStats summarises results produced in duration.
func CalculateParallelStats(results []JobResult, duration time.Duration, workerCount int) ParallelStats {
	stats := ParallelStats{
		TotalImages:   len(results),
		WorkerCount:   workerCount,
		TotalDuration: duration,
	}
	for _, r := range results {
		if r.Err == nil {
			stats.ProcessedImages++
		} else {
			stats.FailedImages++
		}
	}
	if stats.ProcessedImages > 0 && duration > 0 {
		stats.AveragePerImage = duration / time.Duration(stats.ProcessedImages)
		stats.ThroughputPerSec = float64(stats.ProcessedImages) / duration.Seconds()
	}
	return stats
}
