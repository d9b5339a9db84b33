// Package models locates the object detection model and its class labels.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File names of the bundled model assets.
const (
	YOLOv8Nano  = "yolov8n.onnx"
	YOLOv8Small = "yolov8s.onnx"
	COCOLabels  = "coco.names"
)

// Default models directory.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "CODESCAN_MODELS_DIR"

// DefaultModelPath is the model used when none is configured.
var DefaultModelPath = filepath.Join(DefaultModelsDir, YOLOv8Nano)

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}

// GetModelsDir returns the models directory.
// Priority: 1. modelsDir, 2. environment variable, 3. project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolvePath finds a model asset. Absolute paths and paths that exist
// relative to the working directory are returned unchanged. Otherwise the
// path is looked up in the models directory, first as given and then by
// file name. If nothing exists the input is returned so callers report it.
func ResolvePath(modelsDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if fileExists(path) {
		return path
	}
	base := GetModelsDir(modelsDir)
	candidates := []string{filepath.Join(base, path)}
	if rel, err := filepath.Rel(DefaultModelsDir, path); err == nil && !startsWithParent(rel) {
		candidates = append(candidates, filepath.Join(base, rel))
	}
	candidates = append(candidates, filepath.Join(base, filepath.Base(path)))
	for _, c := range candidates {
		if fileExists(c) {
			return c
		}
	}
	return path
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	info, err := os.Stat(modelPath)
	if err != nil || info.IsDir() {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func startsWithParent(rel string) bool {
	return rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}
