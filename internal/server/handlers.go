package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/codescan/internal/pipeline"
	"github.com/MeKo-Tech/codescan/internal/utils"
)

// Response formats accepted by the detect endpoint.
const (
	formatJSON    = "json"
	formatText    = "text"
	formatCSV     = "csv"
	formatOverlay = "overlay"
)

var pdfMagic = []byte("%PDF-")

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// infoHandler describes the loaded detection pipeline.
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.detector == nil {
		s.writeErrorResponse(w, "detector not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  s.version,
		"pipeline": s.detector.Info(),
	})
}

// detectHandler runs object and barcode detection on an uploaded image.
// PDF uploads are scanned page by page.
func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.detector == nil {
		s.writeErrorResponse(w, "detector not initialized", http.StatusServiceUnavailable)
		return
	}

	data, filename, ok := s.readUpload(w, r)
	if !ok {
		detectRequestsTotal.WithLabelValues("http", "error").Inc()
		return
	}

	format := r.FormValue("format")
	switch format {
	case "", formatJSON, formatText, formatCSV, formatOverlay:
	default:
		s.writeErrorResponse(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if bytes.HasPrefix(data, pdfMagic) {
		s.detectPDF(ctx, w, r, data, filename)
		return
	}

	img, _, err := utils.DecodeImage(data)
	if err != nil {
		detectRequestsTotal.WithLabelValues("http", "error").Inc()
		slog.Debug("Rejected upload", "filename", filename, "error", err)
		s.writeErrorResponse(w, "invalid image", http.StatusBadRequest)
		return
	}

	start := time.Now()
	res, err := s.detector.Detect(ctx, img)
	if err != nil {
		detectRequestsTotal.WithLabelValues("http", "error").Inc()
		s.writeDetectError(ctx, w, err)
		return
	}
	recordDetections("http", time.Since(start), res.Detections)
	slog.Debug("Detection completed",
		"filename", filename,
		"detections", len(res.Detections),
		"duration", time.Since(start))

	s.writeDetectResponse(w, format, img, res)
}

// readUpload reads the multipart field "file", falling back to "image".
// On failure the error response has already been written.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeErrorResponse(w, "file too large", http.StatusRequestEntityTooLarge)
			return nil, "", false
		}
		s.writeErrorResponse(w, "failed to parse form data", http.StatusBadRequest)
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		file, header, err = r.FormFile("image")
	}
	if err != nil {
		s.writeErrorResponse(w, "no file provided", http.StatusBadRequest)
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		s.writeErrorResponse(w, "file too large", http.StatusRequestEntityTooLarge)
		return nil, "", false
	}
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "failed to read upload", http.StatusInternalServerError)
		return nil, "", false
	}
	return data, header.Filename, true
}

func (s *Server) writeDetectError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.writeErrorResponse(w, "detection timed out", http.StatusGatewayTimeout)
		return
	}
	slog.Error("Detection failed", "error", err)
	s.writeErrorResponse(w, fmt.Sprintf("detection failed: %v", err), http.StatusInternalServerError)
}

// writeDetectResponse renders res as JSON (default), plain text, CSV or an
// annotated PNG.
func (s *Server) writeDetectResponse(w http.ResponseWriter, format string, img image.Image, res *pipeline.Response) {
	switch format {
	case "", formatJSON:
		writeJSON(w, http.StatusOK, res)
	case formatText:
		text, _ := pipeline.ToPlainText(res)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, text+"\n")
	case formatCSV:
		out, err := pipeline.ToCSV(res)
		if err != nil {
			s.writeErrorResponse(w, "failed to encode csv", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, out)
	case formatOverlay:
		if !s.overlayEnabled {
			s.writeErrorResponse(w, "overlay output is disabled", http.StatusBadRequest)
			return
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, pipeline.RenderOverlay(img, res)); err != nil {
			s.writeErrorResponse(w, "failed to encode overlay", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	default:
		s.writeErrorResponse(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
	}
}

// detectPDF stores the upload in a temporary file and scans the images of
// the pages selected by the "pages" form value.
func (s *Server) detectPDF(ctx context.Context, w http.ResponseWriter, r *http.Request, data []byte, filename string) {
	tmp, err := os.CreateTemp("", "codescan-upload-*.pdf")
	if err != nil {
		s.writeErrorResponse(w, "failed to store upload", http.StatusInternalServerError)
		return
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		s.writeErrorResponse(w, "failed to store upload", http.StatusInternalServerError)
		return
	}
	if err := tmp.Close(); err != nil {
		s.writeErrorResponse(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	res, err := s.detector.DetectPDF(ctx, tmp.Name(), r.FormValue("pages"))
	if err != nil {
		detectRequestsTotal.WithLabelValues("pdf", "error").Inc()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.writeErrorResponse(w, "detection timed out", http.StatusGatewayTimeout)
			return
		}
		s.writeErrorResponse(w, fmt.Sprintf("pdf processing failed: %v", err), http.StatusUnprocessableEntity)
		return
	}

	var all []pipeline.Detection
	for _, img := range res.Images {
		all = append(all, img.Detections...)
	}
	recordDetections("pdf", time.Since(start), all)

	if filename != "" {
		res.Filename = filepath.Base(filename)
	}
	writeJSON(w, http.StatusOK, res)
}
