package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/codescan/internal/objects"
	"github.com/MeKo-Tech/codescan/internal/pipeline"
	"github.com/MeKo-Tech/codescan/internal/server"
	"github.com/MeKo-Tech/codescan/internal/testutil"
	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
)

// RegisterSteps registers every step definition of the suite.
func (tc *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	// Server setup
	sc.Step(`^the server allows (\d+) requests? per minute$`, tc.theServerAllowsRequestsPerMinute)
	sc.Step(`^overlay responses are disabled$`, tc.overlayResponsesAreDisabled)
	sc.Step(`^the object detector reports a "([^"]*)" with confidence ([0-9.]+) at (\d+),(\d+),(\d+),(\d+)$`,
		tc.theObjectDetectorReports)

	// Uploads
	sc.Step(`^an image containing the QR code "([^"]*)"$`, tc.anImageContainingTheQRCode)
	sc.Step(`^an image containing the EAN-13 barcode "([^"]*)"$`, tc.anImageContainingTheEAN13Barcode)
	sc.Step(`^a blank image$`, tc.aBlankImage)
	sc.Step(`^a file named "([^"]*)" with content "([^"]*)"$`, tc.aFileNamedWithContent)

	// Requests
	sc.Step(`^I upload it to "([^"]*)"$`, func(path string) error { return tc.iUpload(path, "file", "") })
	sc.Step(`^I upload it to "([^"]*)" as field "([^"]*)"$`, func(path, field string) error { return tc.iUpload(path, field, "") })
	sc.Step(`^I upload it to "([^"]*)" with format "([^"]*)"$`, func(path, format string) error { return tc.iUpload(path, "file", format) })
	sc.Step(`^I upload it to "([^"]*)" (\d+) times$`, tc.iUploadTimes)
	sc.Step(`^I send a (GET|POST|OPTIONS) request to "([^"]*)"$`, func(method, path string) error {
		return tc.iSendRequest(method, path, nil)
	})
	sc.Step(`^I send an OPTIONS request to "([^"]*)" from origin "([^"]*)"$`, func(path, origin string) error {
		return tc.iSendRequest(http.MethodOptions, path, map[string]string{
			"Origin":                        origin,
			"Access-Control-Request-Method": http.MethodPost,
		})
	})
	sc.Step(`^I stream it over the websocket$`, tc.iStreamItOverTheWebsocket)

	// Assertions
	sc.Step(`^the response status should be (\d+)$`, tc.theResponseStatusShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, tc.theResponseHeaderShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, tc.theResponseShouldContain)
	sc.Step(`^the response should be a PNG image of (\d+)x(\d+)$`, tc.theResponseShouldBeAPNGImageOf)
	sc.Step(`^the error message should be "([^"]*)"$`, tc.theErrorMessageShouldBe)
	sc.Step(`^the response should contain (\d+) detections?$`, tc.theResponseShouldContainDetections)
	sc.Step(`^detection (\d+) should be an? (object|barcode) labelled "([^"]*)"$`, tc.detectionShouldBeLabelled)
	sc.Step(`^detection (\d+) should carry the data "([^"]*)"$`, tc.detectionShouldCarryTheData)
	sc.Step(`^the websocket reply should contain the data "([^"]*)"$`, tc.theWebsocketReplyShouldContainTheData)
}

func (tc *TestContext) ensureServer() error {
	if tc.httpServer != nil {
		return nil
	}
	return tc.startServer()
}

func (tc *TestContext) theServerAllowsRequestsPerMinute(n int) error {
	tc.serverConfig.RateLimit = server.RateLimitConfig{Enabled: true, RequestsPerMinute: n}
	return nil
}

func (tc *TestContext) overlayResponsesAreDisabled() error {
	tc.serverConfig.OverlayEnabled = false
	return nil
}

func (tc *TestContext) theObjectDetectorReports(label string, conf float64, x1, y1, x2, y2 int) error {
	tc.predictor.add(objects.Detection{
		Label:      label,
		Confidence: float32(conf),
		Box:        image.Rect(x1, y1, x2, y2),
	})
	return nil
}

func (tc *TestContext) setImage(img image.Image, name string) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	tc.upload = buf.Bytes()
	tc.uploadName = name
	return nil
}

func (tc *TestContext) anImageContainingTheQRCode(text string) error {
	qr, err := testutil.EncodeQR(text, 120)
	if err != nil {
		return err
	}
	return tc.setImage(testutil.Compose(testutil.SmallSize, color.White,
		testutil.Placement{Img: qr, At: image.Pt(40, 30)}), "qr.png")
}

func (tc *TestContext) anImageContainingTheEAN13Barcode(digits string) error {
	ean, err := testutil.EncodeEAN13(digits, 300, 100)
	if err != nil {
		return err
	}
	return tc.setImage(testutil.Compose(testutil.SmallSize, color.White,
		testutil.Placement{Img: ean, At: image.Pt(10, 60)}), "ean.png")
}

func (tc *TestContext) aBlankImage() error {
	return tc.setImage(testutil.CreateTestImage(64, 48, color.White), "blank.png")
}

func (tc *TestContext) aFileNamedWithContent(name, content string) error {
	tc.upload = []byte(content)
	tc.uploadName = name
	return nil
}

func (tc *TestContext) iUpload(path, field, format string) error {
	if err := tc.ensureServer(); err != nil {
		return err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, tc.uploadName)
	if err != nil {
		return err
	}
	if _, err := fw.Write(tc.upload); err != nil {
		return err
	}
	if format != "" {
		if err := mw.WriteField("format", format); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	u, err := tc.url(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, u, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return tc.do(req)
}

func (tc *TestContext) iUploadTimes(path string, n int) error {
	for range n {
		if err := tc.iUpload(path, "file", ""); err != nil {
			return err
		}
	}
	return nil
}

func (tc *TestContext) iSendRequest(method, path string, headers map[string]string) error {
	if err := tc.ensureServer(); err != nil {
		return err
	}
	u, err := tc.url(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeaders = resp.Header
	tc.lastBody = body
	return nil
}

func (tc *TestContext) iStreamItOverTheWebsocket() error {
	if err := tc.ensureServer(); err != nil {
		return err
	}
	u := "ws" + strings.TrimPrefix(tc.httpServer.URL, "http") + "/ws/detect"
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()

	if err := conn.WriteMessage(websocket.BinaryMessage, tc.upload); err != nil {
		return err
	}
	if err := conn.SetReadDeadline(time.Now().Add(30 * time.Second)); err != nil {
		return err
	}
	var reply server.WebSocketResponse
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("failed to read websocket reply: %w", err)
	}
	tc.lastWS = &reply
	return nil
}

func (tc *TestContext) theResponseStatusShouldBe(status int) error {
	if tc.lastStatus != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, tc.lastStatus, tc.lastBody)
	}
	return nil
}

func (tc *TestContext) theResponseHeaderShouldBe(name, value string) error {
	if got := tc.lastHeaders.Get(name); got != value {
		return fmt.Errorf("expected header %s to be %q, got %q", name, value, got)
	}
	return nil
}

func (tc *TestContext) theResponseShouldContain(text string) error {
	if !bytes.Contains(tc.lastBody, []byte(text)) {
		return fmt.Errorf("response does not contain %q: %s", text, tc.lastBody)
	}
	return nil
}

func (tc *TestContext) theResponseShouldBeAPNGImageOf(width, height int) error {
	if ct := tc.lastHeaders.Get("Content-Type"); ct != "image/png" {
		return fmt.Errorf("expected image/png, got %q", ct)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(tc.lastBody))
	if err != nil {
		return fmt.Errorf("response is not an image: %w", err)
	}
	if cfg.Width != width || cfg.Height != height {
		return fmt.Errorf("expected %dx%d image, got %dx%d", width, height, cfg.Width, cfg.Height)
	}
	return nil
}

func (tc *TestContext) theErrorMessageShouldBe(message string) error {
	var e server.ErrorResponse
	if err := json.Unmarshal(tc.lastBody, &e); err != nil {
		return fmt.Errorf("response is not a JSON error: %w", err)
	}
	if e.Success || e.Error != message {
		return fmt.Errorf("expected error %q, got %+v", message, e)
	}
	return nil
}

func (tc *TestContext) detections() ([]pipeline.Detection, error) {
	var res struct {
		Detections []pipeline.Detection `json:"detections"`
	}
	if err := json.Unmarshal(tc.lastBody, &res); err != nil {
		return nil, fmt.Errorf("response is not a detection result: %w", err)
	}
	if res.Detections == nil {
		return nil, fmt.Errorf("response has no detections array: %s", tc.lastBody)
	}
	return res.Detections, nil
}

func (tc *TestContext) detection(n int) (pipeline.Detection, error) {
	dets, err := tc.detections()
	if err != nil {
		return pipeline.Detection{}, err
	}
	if n < 1 || n > len(dets) {
		return pipeline.Detection{}, fmt.Errorf("no detection %d, response has %d", n, len(dets))
	}
	return dets[n-1], nil
}

func (tc *TestContext) theResponseShouldContainDetections(n int) error {
	dets, err := tc.detections()
	if err != nil {
		return err
	}
	if len(dets) != n {
		return fmt.Errorf("expected %d detections, got %d: %s", n, len(dets), tc.lastBody)
	}
	return nil
}

func (tc *TestContext) detectionShouldBeLabelled(n int, typ, label string) error {
	d, err := tc.detection(n)
	if err != nil {
		return err
	}
	if d.Type != typ || d.Label != label {
		return fmt.Errorf("expected %s %q, got %s %q", typ, label, d.Type, d.Label)
	}
	return nil
}

func (tc *TestContext) detectionShouldCarryTheData(n int, data string) error {
	d, err := tc.detection(n)
	if err != nil {
		return err
	}
	if d.Data != data {
		return fmt.Errorf("expected data %q, got %q", data, d.Data)
	}
	return nil
}

func (tc *TestContext) theWebsocketReplyShouldContainTheData(data string) error {
	if tc.lastWS == nil {
		return fmt.Errorf("no websocket reply received")
	}
	if tc.lastWS.Type != "detections" {
		return fmt.Errorf("expected a detections reply, got %q (%s)", tc.lastWS.Type, tc.lastWS.Error)
	}
	for _, d := range tc.lastWS.Detections {
		if d.Data == data {
			return nil
		}
	}
	return fmt.Errorf("websocket reply does not contain %q", data)
}
