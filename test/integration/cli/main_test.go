package cli_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/codescan/internal/testutil"
	"github.com/MeKo-Tech/codescan/test/integration/cli/support"
	"github.com/cucumber/godog"
)

// binPath is the codescan binary built by TestMain.
var binPath string

// InitializeScenario gives every scenario a fresh working directory.
func InitializeScenario(sc *godog.ScenarioContext) {
	tc, err := support.NewTestContext(binPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to create test context: %v", err))
	}
	tc.RegisterSteps(sc)

	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		if cleanupErr := tc.Cleanup(); cleanupErr != nil {
			fmt.Printf("Warning: Failed to cleanup test context: %v\n", cleanupErr)
		}
		return ctx, nil
	})
}

// TestFeatures runs the Godog test suite.
func TestFeatures(t *testing.T) {
	entries, err := os.ReadDir("features")
	if err != nil {
		t.Fatalf("failed to read features directory: %v", err)
	}

	format := os.Getenv("GODOG_FORMAT")
	if format == "" {
		format = "pretty"
	}
	tags := os.Getenv("GODOG_TAGS")

	found := false
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".feature") {
			continue
		}
		found = true
		featurePath := filepath.Join("features", e.Name())

		t.Run(e.Name(), func(t *testing.T) {
			suite := godog.TestSuite{
				ScenarioInitializer: InitializeScenario,
				Options: &godog.Options{
					Format:   format,
					Tags:     tags,
					Paths:    []string{featurePath},
					TestingT: t,
					Strict:   true,
				},
			}
			if suite.Run() != 0 {
				t.Fatalf("non-zero status returned for %s", featurePath)
			}
		})
	}

	if !found {
		t.Fatalf("no .feature files found in features/")
	}
}

// TestMain builds the codescan binary once before the feature tests run.
// CODESCAN_BIN skips the build and uses an existing binary.
func TestMain(m *testing.M) {
	if bin := os.Getenv("CODESCAN_BIN"); bin != "" {
		binPath = bin
		os.Exit(m.Run())
	}

	root, err := testutil.ProjectRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate project root: %v\n", err)
		os.Exit(1)
	}
	binDir, err := os.MkdirTemp("", "codescan-bin-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create bin dir: %v\n", err)
		os.Exit(1)
	}
	binPath = filepath.Join(binDir, "codescan")

	cmd := exec.CommandContext(context.Background(), "go", "build", "-o", binPath, "./cmd/codescan")
	cmd.Dir = root
	cmd.Env = os.Environ()
	if out, buildErr := cmd.CombinedOutput(); buildErr != nil {
		fmt.Fprintf(os.Stderr, "failed to build CLI binary: %v\n%s\n", buildErr, string(out))
		_ = os.RemoveAll(binDir)
		os.Exit(1)
	}

	code := m.Run()
	_ = os.RemoveAll(binDir)
	os.Exit(code)
}
