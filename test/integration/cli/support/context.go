// Package support holds the step definitions for the CLI feature suite.
// Scenarios run the codescan binary in a scratch directory with its own
// HOME so no user configuration leaks in.
package support

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// commandTimeout bounds a single CLI invocation.
const commandTimeout = 2 * time.Minute

// TestContext holds the state of one scenario.
type TestContext struct {
	binPath string
	workDir string
	env     []string

	LastCommand  string
	LastStdout   string
	LastStderr   string
	LastExitCode int
	LastFile     string
}

// NewTestContext creates a scenario context running binPath.
func NewTestContext(binPath string) (*TestContext, error) {
	dir, err := os.MkdirTemp("", "codescan-cli-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TestContext{binPath: binPath, workDir: dir}, nil
}

// Cleanup removes the scenario directory.
func (tc *TestContext) Cleanup() error {
	if err := os.RemoveAll(tc.workDir); err != nil {
		return fmt.Errorf("failed to remove temp directory %s: %w", tc.workDir, err)
	}
	return nil
}

// path resolves name inside the scenario directory.
func (tc *TestContext) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(tc.workDir, name)
}

// AddEnvVar adds an environment variable for command execution.
func (tc *TestContext) AddEnvVar(name, value string) {
	tc.env = append(tc.env, name+"="+value)
}

// run executes a command line whose first word is "codescan".
func (tc *TestContext) run(commandLine string) error {
	args := strings.Fields(commandLine)
	if len(args) == 0 || args[0] != "codescan" {
		return fmt.Errorf("command must start with codescan: %q", commandLine)
	}
	tc.LastCommand = commandLine

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, tc.binPath, args[1:]...)
	cmd.Dir = tc.workDir
	cmd.Env = append(os.Environ(),
		"HOME="+tc.workDir,
		"XDG_CONFIG_HOME="+filepath.Join(tc.workDir, ".config"))
	cmd.Env = append(cmd.Env, tc.env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	tc.LastStdout = stdout.String()
	tc.LastStderr = stderr.String()
	tc.LastExitCode = 0

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		tc.LastExitCode = exitErr.ExitCode()
	default:
		return fmt.Errorf("failed to run %q: %w", commandLine, err)
	}
	return nil
}

func (tc *TestContext) combinedOutput() string {
	return tc.LastStdout + tc.LastStderr
}
