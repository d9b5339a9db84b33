package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ToJSON serializes a response as pretty JSON.
func ToJSON(res *Response) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToPlainText renders one line per detection:
// "object person 0.87 [x1 y1 x2 y2]" or "barcode QR <data> [..] (pass)".
func ToPlainText(res *Response) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	lines := make([]string, 0, len(res.Detections))
	for _, d := range res.Detections {
		box := fmt.Sprintf("[%d %d %d %d]", d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3])
		switch d.Type {
		case TypeBarcode:
			lines = append(lines, fmt.Sprintf("barcode %s %q %s (%s)", d.Label, d.Data, box, d.Pass))
		default:
			lines = append(lines, fmt.Sprintf("object %s %.2f %s", d.Label, d.Confidence, box))
		}
	}
	return strings.Join(lines, "\n"), nil
}

// CSVHeader is the column layout written by ToCSV.
var CSVHeader = []string{"type", "label", "confidence", "data", "x1", "y1", "x2", "y2", "pass"}

// CSVRecords converts the detections to CSV rows without a header.
func CSVRecords(res *Response) [][]string {
	rows := make([][]string, 0, len(res.Detections))
	for _, d := range res.Detections {
		conf := ""
		if d.Type == TypeObject {
			conf = strconv.FormatFloat(d.Confidence, 'f', 3, 64)
		}
		rows = append(rows, []string{
			d.Type,
			d.Label,
			conf,
			d.Data,
			strconv.Itoa(d.BBox[0]),
			strconv.Itoa(d.BBox[1]),
			strconv.Itoa(d.BBox[2]),
			strconv.Itoa(d.BBox[3]),
			d.Pass,
		})
	}
	return rows
}

// ToCSV exports the detections as CSV with header.
func ToCSV(res *Response) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return "", err
	}
	if err := w.WriteAll(CSVRecords(res)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ValidateResponse checks that every box lies inside the image and that
// object confidences are in [0, 1].
func ValidateResponse(res *Response) error {
	if res == nil {
		return errors.New("nil result")
	}
	if res.Width <= 0 || res.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", res.Width, res.Height)
	}
	for i, d := range res.Detections {
		b := d.BBox
		if b[0] < 0 || b[1] < 0 || b[0] >= b[2] || b[1] >= b[3] {
			return fmt.Errorf("detection %d has an invalid box %v", i, b)
		}
		if b[2] > res.Width || b[3] > res.Height {
			return fmt.Errorf("detection %d exceeds the image", i)
		}
		switch d.Type {
		case TypeObject:
			if d.Confidence < 0 || d.Confidence > 1 {
				return fmt.Errorf("detection %d confidence out of range", i)
			}
		case TypeBarcode:
		default:
			return fmt.Errorf("detection %d has unknown type %q", i, d.Type)
		}
	}
	return nil
}
