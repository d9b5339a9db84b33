package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/codescan/internal/pipeline"
)

// formatResults formats file results in the requested format.
func formatResults(files []FileResult, format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return formatJSON(files)
	case FormatCSV:
		return formatCSV(files)
	case FormatText, "":
		return formatText(files)
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

func formatJSON(files []FileResult) (string, error) {
	doc := struct {
		Files []FileResult `json:"files"`
	}{Files: files}
	if doc.Files == nil {
		doc.Files = []FileResult{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	return string(b), err
}

// formatCSV writes one row per detection, prefixed with the file columns.
// Files without detections get a single row with empty detection columns.
func formatCSV(files []FileResult) (string, error) {
	var out strings.Builder
	w := csv.NewWriter(&out)
	header := append([]string{"file", "page", "image_index"}, pipeline.CSVHeader...)
	header = append(header, "error")
	if err := w.Write(header); err != nil {
		return "", err
	}

	empty := make([]string, len(pipeline.CSVHeader))
	for _, f := range files {
		prefix := []string{f.File, strconv.Itoa(f.Page), strconv.Itoa(f.ImageIndex)}
		rows := pipeline.CSVRecords(&pipeline.Response{Detections: f.Detections})
		if len(rows) == 0 {
			rows = [][]string{empty}
		}
		for _, r := range rows {
			row := append(append(append([]string{}, prefix...), r...), f.Error)
			if err := w.Write(row); err != nil {
				return "", err
			}
		}
	}
	w.Flush()
	return out.String(), w.Error()
}

func formatText(files []FileResult) (string, error) {
	var out strings.Builder
	for i, f := range files {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString("# " + f.File)
		if f.Page > 0 {
			fmt.Fprintf(&out, " (page %d, image %d)", f.Page, f.ImageIndex)
		}
		out.WriteString("\n")
		if f.Error != "" {
			out.WriteString("error: " + f.Error + "\n")
			continue
		}
		if len(f.Detections) == 0 {
			out.WriteString("no detections\n")
			continue
		}
		text, err := pipeline.ToPlainText(&pipeline.Response{Detections: f.Detections})
		if err != nil {
			return "", err
		}
		out.WriteString(text + "\n")
	}
	return strings.TrimRight(out.String(), "\n"), nil
}
