package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/codescan/internal/pipeline"
	"github.com/MeKo-Tech/codescan/internal/utils"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocketRequest is a text frame sent by the client. Binary frames are
// treated as raw image bytes.
type WebSocketRequest struct {
	Type  string `json:"type"` // "image" or "ping"
	Image []byte `json:"image,omitempty"`
}

// WebSocketResponse is sent for every processed frame.
type WebSocketResponse struct {
	Type       string               `json:"type"` // "detections", "pong" or "error"
	RequestID  string               `json:"request_id,omitempty"`
	Width      int                  `json:"width,omitempty"`
	Height     int                  `json:"height,omitempty"`
	Detections []pipeline.Detection `json:"detections,omitempty"`
	Error      string               `json:"error,omitempty"`
	ErrorType  string               `json:"error_type,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

var wsRequestSeq atomic.Uint64

// detectWebSocketHandler streams detections for every frame a client sends.
func (s *Server) detectWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn)
}

func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(s.maxUploadMB * 1024 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		websocketMessagesTotal.WithLabelValues("received").Inc()

		s.handleWebSocketMessage(ctx, conn, messageType, data)
	}
}

// handleWebSocketMessage processes one frame and writes exactly one reply.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, messageType int, data []byte) {
	switch messageType {
	case websocket.BinaryMessage:
		s.processWebSocketImage(ctx, conn, data)
	case websocket.TextMessage:
		var req WebSocketRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.sendWebSocketError(conn, "", "invalid_request", "failed to parse request: "+err.Error())
			return
		}
		switch req.Type {
		case "ping":
			s.sendWebSocketResponse(conn, WebSocketResponse{Type: "pong"})
		case "image", "":
			s.processWebSocketImage(ctx, conn, req.Image)
		default:
			s.sendWebSocketError(conn, "", "invalid_request", "unsupported request type: "+req.Type)
		}
	}
}

func (s *Server) processWebSocketImage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	requestID := strconv.FormatUint(wsRequestSeq.Add(1), 10)
	if len(data) == 0 {
		s.sendWebSocketError(conn, requestID, "invalid_request", "no image data provided")
		return
	}
	if s.detector == nil {
		s.sendWebSocketError(conn, requestID, "processing_error", "detector not initialized")
		return
	}

	img, _, err := utils.DecodeImage(data)
	if err != nil {
		detectRequestsTotal.WithLabelValues("websocket", "error").Inc()
		s.sendWebSocketError(conn, requestID, "invalid_image", "invalid image")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.detector.Detect(ctx, img)
	if err != nil {
		detectRequestsTotal.WithLabelValues("websocket", "error").Inc()
		msg := "detection failed: " + err.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = "detection timed out"
		}
		s.sendWebSocketError(conn, requestID, "processing_error", msg)
		return
	}
	recordDetections("websocket", time.Since(start), res.Detections)

	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:       "detections",
		RequestID:  requestID,
		Width:      res.Width,
		Height:     res.Height,
		Detections: res.Detections,
	})
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:      "error",
		RequestID: requestID,
		Error:     message,
		ErrorType: errorType,
	})
}
