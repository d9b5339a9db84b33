package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MeKo-Tech/codescan/internal/objects"
	"github.com/MeKo-Tech/codescan/internal/pipeline"
	"github.com/MeKo-Tech/codescan/internal/testutil"
	"github.com/stretchr/testify/require"
)

// fakeDetector returns canned results and records what it was given.
type fakeDetector struct {
	mu       sync.Mutex
	res      *pipeline.Response
	pdfRes   *pipeline.PDFResult
	err      error
	block    bool
	pages    string
	calls    int
	closed   bool
	lastSize image.Point
}

func (f *fakeDetector) Detect(ctx context.Context, img image.Image) (*pipeline.Response, error) {
	f.mu.Lock()
	f.calls++
	f.lastSize = img.Bounds().Size()
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	res.Width, res.Height = img.Bounds().Dx(), img.Bounds().Dy()
	return &res, nil
}

func (f *fakeDetector) DetectPDF(_ context.Context, _ string, pageRange string) (*pipeline.PDFResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = pageRange
	if f.err != nil {
		return nil, f.err
	}
	return f.pdfRes, nil
}

func (f *fakeDetector) Info() map[string]any {
	return map[string]any{"objects": map[string]any{"backend": "fake"}}
}

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

func cannedResponse() *pipeline.Response {
	return &pipeline.Response{Detections: []pipeline.Detection{
		{Type: pipeline.TypeObject, Label: "bottle", Confidence: 0.9, BBox: pipeline.BBox{1, 2, 20, 30}},
		{Type: pipeline.TypeBarcode, Label: "QR", Data: "hello", BBox: pipeline.BBox{5, 5, 15, 15}, Pass: "original"},
	}}
}

func testConfig() Config {
	return Config{CORSOrigin: "*", MaxUploadMB: 5, TimeoutSec: 5, OverlayEnabled: true, Version: "test"}
}

func newFakeServer(t *testing.T, det *fakeDetector, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	return NewServerWithDetector(cfg, det)
}

// newPipelineServer serves a real pipeline with object detection disabled.
func newPipelineServer(t *testing.T) *Server {
	t.Helper()
	pl, err := pipeline.NewBuilder().
		WithPredictor(objects.NopPredictor{}).
		WithDedup(true).
		WithPassObserver(observePass).
		Build()
	require.NoError(t, err)
	s := NewServerWithDetector(testConfig(), pl)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func qrPNG(t *testing.T, text string) []byte {
	t.Helper()
	img := testutil.Compose(testutil.SmallSize, color.White,
		testutil.Placement{Img: testutil.QRImage(t, text, 120), At: image.Pt(40, 30)})
	return testutil.EncodePNG(t, img)
}

func plainPNG(t *testing.T) []byte {
	t.Helper()
	return testutil.EncodePNG(t, testutil.CreateTestImage(40, 30, color.White))
}

// uploadRequest builds a multipart POST with one file field and extra fields.
func uploadRequest(t *testing.T, path, field, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}
