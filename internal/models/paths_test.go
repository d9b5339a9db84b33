package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestGetModelsDir(t *testing.T) {
	t.Setenv(EnvModelsDir, "")
	assert.Equal(t, "/opt/models", GetModelsDir("/opt/models"))

	t.Setenv(EnvModelsDir, "/env/models")
	assert.Equal(t, "/explicit", GetModelsDir("/explicit"))
	assert.Equal(t, "/env/models", GetModelsDir(""))
}

func TestGetModelsDir_ProjectRoot(t *testing.T) {
	t.Setenv(EnvModelsDir, "")
	root := t.TempDir()
	touch(t, filepath.Join(root, "go.mod"))
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	t.Chdir(sub)

	got, err := filepath.EvalSymlinks(filepath.Dir(GetModelsDir("")))
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, DefaultModelsDir, filepath.Base(GetModelsDir("")))
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(t.TempDir())
	t.Setenv(EnvModelsDir, "")

	touch(t, filepath.Join(dir, YOLOv8Nano))
	touch(t, filepath.Join(dir, "custom", "det.onnx"))
	touch(t, "local.onnx")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"absolute", "/abs/model.onnx", "/abs/model.onnx"},
		{"exists locally", "local.onnx", "local.onnx"},
		{"default path in models dir", DefaultModelPath, filepath.Join(dir, YOLOv8Nano)},
		{"nested in models dir", filepath.Join("custom", "det.onnx"), filepath.Join(dir, "custom", "det.onnx")},
		{"by file name", filepath.Join("elsewhere", YOLOv8Nano), filepath.Join(dir, YOLOv8Nano)},
		{"not found", "missing.onnx", "missing.onnx"},
		{"parent not resolved", filepath.Join("..", "det.onnx"), filepath.Join("..", "det.onnx")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePath(dir, tt.in))
		})
	}
}

func TestResolvePath_Environment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(t.TempDir())
	t.Setenv(EnvModelsDir, dir)
	touch(t, filepath.Join(dir, COCOLabels))

	assert.Equal(t, filepath.Join(dir, COCOLabels), ResolvePath("", COCOLabels))
}

func TestValidateModelExists(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, YOLOv8Small)
	touch(t, model)

	require.NoError(t, ValidateModelExists(model))

	err := ValidateModelExists(filepath.Join(dir, "nope.onnx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")

	assert.Error(t, ValidateModelExists(dir))
}
