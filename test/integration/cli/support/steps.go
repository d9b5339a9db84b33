package support

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/codescan/internal/batch"
	"github.com/MeKo-Tech/codescan/internal/pipeline"
	"github.com/MeKo-Tech/codescan/internal/testutil"
	"github.com/MeKo-Tech/codescan/internal/utils"
	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
)

// RegisterSteps wires every step of the CLI suite.
func (tc *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	// Fixtures
	sc.Step(`^a QR code image "([^"]*)" containing "([^"]*)"$`, tc.aQRCodeImageContaining)
	sc.Step(`^an EAN-13 image "([^"]*)" with digits "([^"]*)"$`, tc.anEAN13ImageWithDigits)
	sc.Step(`^a blank image "([^"]*)"$`, tc.aBlankImage)
	sc.Step(`^a file "([^"]*)" with content "([^"]*)"$`, tc.aFileWithContent)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, tc.theEnvironmentVariableIsSetTo)

	// Execution
	sc.Step(`^I run "([^"]*)"$`, tc.run)
	sc.Step(`^the command should succeed$`, tc.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, tc.theCommandShouldFail)

	// Output
	sc.Step(`^the output should contain "([^"]*)"$`, tc.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, tc.theOutputShouldNotContain)
	sc.Step(`^the error should mention "([^"]*)"$`, tc.theErrorShouldMention)
	sc.Step(`^the error should not mention "([^"]*)"$`, tc.theErrorShouldNotMention)
	sc.Step(`^the error output should contain "([^"]*)"$`, tc.theErrorOutputShouldContain)
	sc.Step(`^the output should be valid JSON$`, tc.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON should list (\d+) files?$`, tc.theJSONShouldListFiles)
	sc.Step(`^the JSON should contain a "([^"]*)" barcode "([^"]*)"$`, tc.theJSONShouldContainBarcode)

	// Files
	sc.Step(`^the file "([^"]*)" should exist$`, tc.theFileShouldExist)
	sc.Step(`^the file should contain "([^"]*)"$`, tc.theFileShouldContain)
	sc.Step(`^the file should be valid CSV with (\d+) rows?$`, tc.theFileShouldBeValidCSVWithRows)
	sc.Step(`^the overlay "([^"]*)" should be a (\d+)x(\d+) image$`, tc.theOverlayShouldBeAnImage)
}

func (tc *TestContext) saveImage(name string, img image.Image) error {
	p := tc.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	return imaging.Save(img, p)
}

func (tc *TestContext) aQRCodeImageContaining(name, text string) error {
	qr, err := testutil.EncodeQR(text, 120)
	if err != nil {
		return err
	}
	return tc.saveImage(name, testutil.Compose(testutil.SmallSize, color.White,
		testutil.Placement{Img: qr, At: image.Pt(40, 30)}))
}

func (tc *TestContext) anEAN13ImageWithDigits(name, digits string) error {
	bar, err := testutil.EncodeEAN13(digits, 300, 100)
	if err != nil {
		return err
	}
	return tc.saveImage(name, testutil.Compose(testutil.SmallSize, color.White,
		testutil.Placement{Img: bar, At: image.Pt(10, 60)}))
}

func (tc *TestContext) aBlankImage(name string) error {
	return tc.saveImage(name, testutil.CreateTestImage(160, 120, color.White))
}

func (tc *TestContext) aFileWithContent(name, content string) error {
	p := tc.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(content), 0o600)
}

func (tc *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	tc.AddEnvVar(name, value)
	return nil
}

func (tc *TestContext) theCommandShouldSucceed() error {
	if tc.LastExitCode != 0 {
		return fmt.Errorf("%q exited with %d\nstdout: %s\nstderr: %s",
			tc.LastCommand, tc.LastExitCode, tc.LastStdout, tc.LastStderr)
	}
	return nil
}

func (tc *TestContext) theCommandShouldFail() error {
	if tc.LastExitCode == 0 {
		return fmt.Errorf("%q succeeded, expected failure\nstdout: %s", tc.LastCommand, tc.LastStdout)
	}
	return nil
}

func (tc *TestContext) theOutputShouldContain(s string) error {
	if !strings.Contains(tc.LastStdout, s) {
		return fmt.Errorf("output does not contain %q:\n%s", s, tc.LastStdout)
	}
	return nil
}

func (tc *TestContext) theOutputShouldNotContain(s string) error {
	if strings.Contains(tc.LastStdout, s) {
		return fmt.Errorf("output unexpectedly contains %q:\n%s", s, tc.LastStdout)
	}
	return nil
}

func (tc *TestContext) theErrorShouldMention(s string) error {
	if !strings.Contains(tc.combinedOutput(), s) {
		return fmt.Errorf("error output does not mention %q:\n%s", s, tc.combinedOutput())
	}
	return nil
}

func (tc *TestContext) theErrorShouldNotMention(s string) error {
	if strings.Contains(tc.combinedOutput(), s) {
		return fmt.Errorf("output unexpectedly mentions %q:\n%s", s, tc.combinedOutput())
	}
	return nil
}

func (tc *TestContext) theErrorOutputShouldContain(s string) error {
	if !strings.Contains(tc.LastStderr, s) {
		return fmt.Errorf("stderr does not contain %q:\n%s", s, tc.LastStderr)
	}
	return nil
}

func (tc *TestContext) theOutputShouldBeValidJSON() error {
	if !json.Valid([]byte(tc.LastStdout)) {
		return fmt.Errorf("output is not valid JSON:\n%s", tc.LastStdout)
	}
	return nil
}

func (tc *TestContext) theJSONShouldListFiles(n int) error {
	var doc struct {
		Files []json.RawMessage `json:"files"`
	}
	if err := json.Unmarshal([]byte(tc.LastStdout), &doc); err != nil {
		return fmt.Errorf("failed to parse JSON output: %w", err)
	}
	if len(doc.Files) != n {
		return fmt.Errorf("expected %d files, got %d", n, len(doc.Files))
	}
	return nil
}

func (tc *TestContext) theJSONShouldContainBarcode(symbology, data string) error {
	var doc struct {
		Files []batch.FileResult `json:"files"`
	}
	if err := json.Unmarshal([]byte(tc.LastStdout), &doc); err != nil {
		return fmt.Errorf("failed to parse JSON output: %w", err)
	}
	for _, f := range doc.Files {
		for _, d := range f.Detections {
			if d.Type == pipeline.TypeBarcode && d.Label == symbology && d.Data == data {
				return nil
			}
		}
	}
	return fmt.Errorf("no %s barcode %q in output:\n%s", symbology, data, tc.LastStdout)
}

func (tc *TestContext) theFileShouldExist(name string) error {
	p := tc.path(name)
	if !testutil.FileExists(p) {
		return fmt.Errorf("file %s does not exist", p)
	}
	tc.LastFile = p
	return nil
}

func (tc *TestContext) theFileShouldContain(s string) error {
	if tc.LastFile == "" {
		return fmt.Errorf("no file checked yet")
	}
	data, err := os.ReadFile(tc.LastFile)
	if err != nil {
		return err
	}
	if !strings.Contains(string(data), s) {
		return fmt.Errorf("%s does not contain %q:\n%s", tc.LastFile, s, data)
	}
	return nil
}

// theFileShouldBeValidCSVWithRows counts data rows, not the header.
func (tc *TestContext) theFileShouldBeValidCSVWithRows(n int) error {
	f, err := os.Open(tc.LastFile)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("invalid CSV: %w", err)
	}
	if len(records)-1 != n {
		return fmt.Errorf("expected %d CSV rows, got %d", n, len(records)-1)
	}
	return nil
}

func (tc *TestContext) theOverlayShouldBeAnImage(name string, w, h int) error {
	_, meta, err := utils.LoadImage(tc.path(name))
	if err != nil {
		return err
	}
	if meta.Width != w || meta.Height != h {
		return fmt.Errorf("overlay is %dx%d, expected %dx%d", meta.Width, meta.Height, w, h)
	}
	return nil
}
