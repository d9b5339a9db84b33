package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/codescan/internal/common"
	"github.com/MeKo-Tech/codescan/internal/objects"
	"github.com/MeKo-Tech/codescan/internal/pipeline"
	"github.com/MeKo-Tech/codescan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	pcfg := pipeline.DefaultConfig()
	pcfg.Objects = objects.Config{Backend: objects.BackendNone}
	pcfg.Barcode.Dedup = true
	return &Config{Pipeline: pcfg, Workers: 2}
}

// writeFixtures writes a QR and an EAN-13 image into dir.
func writeFixtures(t *testing.T, dir string) (qrPath, eanPath string) {
	t.Helper()
	qrPath = filepath.Join(dir, "qr.png")
	testutil.SaveImage(t, testutil.Compose(testutil.SmallSize, color.White,
		testutil.Placement{Img: testutil.QRImage(t, "batch-qr", 120), At: image.Pt(20, 20)}), qrPath)

	eanPath = filepath.Join(dir, "ean.png")
	testutil.SaveImage(t, testutil.Compose(testutil.SmallSize, color.White,
		testutil.Placement{Img: testutil.EAN13Image(t, testutil.SampleEAN13, 300, 100), At: image.Pt(10, 60)}), eanPath)
	return qrPath, eanPath
}

func TestProcessBatch_DecodesFiles(t *testing.T) {
	dir := t.TempDir()
	qrPath, eanPath := writeFixtures(t, dir)

	res, err := ProcessBatch(context.Background(), []string{dir}, testConfig())
	require.NoError(t, err)
	require.Len(t, res.Files, 2)

	// lexical order: ean.png, qr.png
	assert.Equal(t, eanPath, res.Files[0].File)
	require.Len(t, res.Files[0].Detections, 1)
	assert.Equal(t, "EAN-13", res.Files[0].Detections[0].Label)
	assert.Equal(t, testutil.SampleEAN13, res.Files[0].Detections[0].Data)

	assert.Equal(t, qrPath, res.Files[1].File)
	require.Len(t, res.Files[1].Detections, 1)
	assert.Equal(t, "batch-qr", res.Files[1].Detections[0].Data)
	assert.Equal(t, 320, res.Files[1].Width)

	assert.Equal(t, 2, res.WorkerCount)
	assert.Equal(t, 2, res.Stats.ProcessedImages)
	assert.Zero(t, res.Failed())
}

func TestProcessBatch_NoFiles(t *testing.T) {
	_, err := ProcessBatch(context.Background(), []string{t.TempDir()}, testConfig())
	require.ErrorIs(t, err, ErrNoFiles)

	_, err = ProcessBatch(context.Background(), []string{"/nonexistent/file.png"}, testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access")
}

func TestProcessBatch_PipelineBuildFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.Objects.Backend = "mystery"
	_, err := ProcessBatch(context.Background(), []string{t.TempDir()}, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, objects.ErrUnknownBackend)
}

func TestProcess_FailuresAndContinueOnError(t *testing.T) {
	dir := t.TempDir()
	writeFixtures(t, dir)
	corrupt := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a png"), 0o600))

	cfg := testConfig()
	pl, err := pipeline.NewBuilder().WithConfig(cfg.Pipeline).Build()
	require.NoError(t, err)
	defer func() { _ = pl.Close() }()

	_, err = Process(context.Background(), pl, []string{dir}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.png")

	cfg.ContinueOnError = true
	res, err := Process(context.Background(), pl, []string{dir}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Files, 3)
	assert.Equal(t, corrupt, res.Files[0].File)
	assert.NotEmpty(t, res.Files[0].Error)
	assert.NotNil(t, res.Files[0].Detections)
	assert.Equal(t, 1, res.Failed())
	assert.Equal(t, 1, res.Stats.FailedImages)
}

func TestProcess_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFixtures(t, dir)
	cfg := testConfig()
	pl, err := pipeline.NewBuilder().WithConfig(cfg.Pipeline).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Process(ctx, pl, []string{dir}, cfg)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestProcessBatch_Overlay(t *testing.T) {
	dir := t.TempDir()
	writeFixtures(t, dir)
	cfg := testConfig()
	cfg.OverlayDir = filepath.Join(t.TempDir(), "overlays")

	res, err := ProcessBatch(context.Background(), []string{dir}, cfg)
	require.NoError(t, err)
	for _, f := range res.Files {
		require.NotEmpty(t, f.Overlay)
		assert.True(t, testutil.FileExists(f.Overlay))
	}
	assert.True(t, testutil.FileExists(filepath.Join(cfg.OverlayDir, "qr_overlay.png")))

	img := testutil.LoadImage(t, filepath.Join(cfg.OverlayDir, "qr_overlay.png"))
	assert.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())
}

func TestOverlayName(t *testing.T) {
	assert.Equal(t, "shelf_overlay.png", overlayName(item{path: "/in/shelf.jpg"}))
	assert.Equal(t, "doc_p2_1_overlay.png", overlayName(item{path: "doc.pdf", page: 2, index: 1}))
}

func TestResult_SaveResults(t *testing.T) {
	res := &Result{Files: []FileResult{{File: "a.png", Detections: []pipeline.Detection{}}}}

	var buf bytes.Buffer
	require.NoError(t, res.SaveResults(&buf, FormatJSON, "", false))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Contains(t, doc, "files")

	out := filepath.Join(t.TempDir(), "out.csv")
	buf.Reset()
	require.NoError(t, res.SaveResults(&buf, FormatCSV, out, false))
	assert.Contains(t, buf.String(), "Results written to")
	data, err := os.ReadFile(out) //nolint:gosec // test path
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "file,page,image_index,type"))

	require.Error(t, res.SaveResults(&buf, "xml", "", false))
	require.Error(t, res.SaveResults(&buf, FormatText, filepath.Join(t.TempDir(), "missing", "x.txt"), true))
}

func TestResult_PrintStats(t *testing.T) {
	res := &Result{
		Stats:  pipeline.ParallelStats{TotalImages: 3, ProcessedImages: 2, FailedImages: 1, WorkerCount: 4},
		Memory: common.MemoryStats{Alloc: 4096, TotalAlloc: 8192, NumGC: 1},
	}
	var buf bytes.Buffer
	res.PrintStats(&buf)
	out := buf.String()
	assert.Contains(t, out, "Items: 3")
	assert.Contains(t, out, "Failed: 1")
	assert.Contains(t, out, "Workers: 4")
	assert.Contains(t, out, "Memory: Alloc: 4 KB, Total: 8 KB")
}
