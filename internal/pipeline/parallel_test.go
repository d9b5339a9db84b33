package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProgress struct {
	mu       sync.Mutex
	started  int
	progress []int
	errors   int
	complete bool
}

func (r *recordingProgress) OnStart(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = total
}

func (r *recordingProgress) OnProgress(current, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, current)
}

func (r *recordingProgress) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = true
}

func (r *recordingProgress) OnError(int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
}

func TestDetectImagesParallel_PreservesOrder(t *testing.T) {
	p := buildTestPipeline(t, &fakePredictor{}, func(b *Builder) {
		b.WithParallelWorkers(3).WithDedup(true)
	})

	texts := []string{"one", "two", "three", "four", "five"}
	images := make([]image.Image, len(texts))
	for i, s := range texts {
		images[i] = qrScene(t, s)
	}

	out, err := p.DetectImagesParallel(context.Background(), images)
	require.NoError(t, err)
	require.Len(t, out, len(texts))
	for i, s := range texts {
		require.Len(t, out[i].Detections, 1)
		assert.Equal(t, s, out[i].Detections[0].Data)
	}

	_, err = p.DetectImagesParallel(context.Background(), nil)
	assert.Error(t, err)
}

func TestRunParallel_ErrorsAndProgress(t *testing.T) {
	progress := &recordingProgress{}
	p := buildTestPipeline(t, &fakePredictor{}, func(b *Builder) {
		b.WithParallelWorkers(2).WithProgressCallback(progress).WithBarcodes(false)
	})

	loadErr := errors.New("unreadable")
	jobs := []Job{
		{Index: 0, Name: "a.png", Load: func() (image.Image, error) { return image.NewGray(image.Rect(0, 0, 4, 4)), nil }},
		{Index: 1, Name: "b.png", Load: func() (image.Image, error) { return nil, loadErr }},
		{Index: 2, Name: "c.png", Load: func() (image.Image, error) { return image.NewGray(image.Rect(0, 0, 4, 4)), nil }},
	}
	results := p.RunParallel(context.Background(), jobs)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "a.png", results[0].Name)
	require.ErrorIs(t, results[1].Err, loadErr)
	assert.Nil(t, results[1].Response)
	assert.NoError(t, results[2].Err)

	assert.Equal(t, 3, progress.started)
	assert.ElementsMatch(t, []int{1, 2, 3}, progress.progress)
	assert.Equal(t, 1, progress.errors)
	assert.True(t, progress.complete)

	stats := CalculateParallelStats(results, time.Second, 2)
	assert.Equal(t, 3, stats.TotalImages)
	assert.Equal(t, 2, stats.ProcessedImages)
	assert.Equal(t, 1, stats.FailedImages)
	assert.Equal(t, 500*time.Millisecond, stats.AveragePerImage)
	assert.InDelta(t, 2.0, stats.ThroughputPerSec, 1e-9)
}

func TestRunParallel_Cancelled(t *testing.T) {
	p := buildTestPipeline(t, &fakePredictor{}, func(b *Builder) { b.WithParallelWorkers(1) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	jobs := make([]Job, 4)
	for i := range jobs {
		jobs[i] = Job{Index: i, Load: func() (image.Image, error) { return image.NewGray(image.Rect(0, 0, 2, 2)), nil }}
	}
	results := p.RunParallel(ctx, jobs)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}

	assert.Empty(t, p.RunParallel(context.Background(), nil))
}
