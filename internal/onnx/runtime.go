package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

const (
	osLinux    = "linux"
	osDarwin   = "darwin"
	osWindows  = "windows"
	libLinux   = "libonnxruntime.so"
	libDarwin  = "libonnxruntime.dylib"
	libWindows = "onnxruntime.dll"
)

// LibraryPathEnv overrides the ONNX Runtime shared library location.
const LibraryPathEnv = "ONNXRUNTIME_LIB_PATH"

var initMu sync.Mutex

// getSystemLibraryPaths returns the system locations searched for the runtime.
func getSystemLibraryPaths() []string {
	return []string{
		"/usr/local/lib/" + libLinux,
		"/usr/lib/" + libLinux,
		"/opt/onnxruntime/cpu/lib/" + libLinux,
		"/opt/homebrew/lib/" + libDarwin,
		"/usr/local/lib/" + libDarwin,
	}
}

// findProjectRoot finds the project root directory by looking for go.mod.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	projectRoot := cwd
	for {
		if _, err := os.Stat(filepath.Join(projectRoot, "go.mod")); err == nil {
			return projectRoot, nil
		}
		parent := filepath.Dir(projectRoot)
		if parent == projectRoot {
			return "", errors.New("could not find project root")
		}
		projectRoot = parent
	}
}

// getLibraryName returns the appropriate library filename for the current OS.
func getLibraryName() (string, error) {
	switch runtime.GOOS {
	case osLinux:
		return libLinux, nil
	case osDarwin:
		return libDarwin, nil
	case osWindows:
		return libWindows, nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// FindLibrary resolves the ONNX Runtime shared library. The explicit path
// wins, then $ONNXRUNTIME_LIB_PATH, then well known system locations and
// finally onnxruntime/lib below the project root.
func FindLibrary(explicit string) (string, error) {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit, nil
		}
		return "", fmt.Errorf("ONNX Runtime library not found at %s", explicit)
	}
	if env := os.Getenv(LibraryPathEnv); env != "" {
		if fileExists(env) {
			return env, nil
		}
		return "", fmt.Errorf("ONNX Runtime library from %s not found at %s", LibraryPathEnv, env)
	}

	for _, path := range getSystemLibraryPaths() {
		if fileExists(path) {
			return path, nil
		}
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		return "", err
	}
	libName, err := getLibraryName()
	if err != nil {
		return "", err
	}
	libPath := filepath.Join(projectRoot, "onnxruntime", "lib", libName)
	if !fileExists(libPath) {
		return "", fmt.Errorf("ONNX Runtime library not found at %s", libPath)
	}
	return libPath, nil
}

// Initialize points onnxruntime_go at the shared library and initializes
// the global environment once per process.
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return nil
	}
	path, err := FindLibrary(libraryPath)
	if err != nil {
		return fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
	}
	onnxruntime_go.SetSharedLibraryPath(path)
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return nil
}

// Shutdown releases the global ONNX Runtime environment.
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !onnxruntime_go.IsInitialized() {
		return nil
	}
	return onnxruntime_go.DestroyEnvironment()
}
