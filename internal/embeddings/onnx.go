package embeddings

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

var libraryNames = map[string]string{
	"linux":  "libonnxruntime.so",
	"darwin": "libonnxruntime.dylib",
}

func onnxInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "ragd", "lib")
}

// ONNXLibraryPath returns the path to the ONNX runtime library used by the
// fastembed provider. It checks ONNX_PATH, then ~/.config/ragd/lib. An empty
// result means the runtime was not found.
func ONNXLibraryPath() string {
	if envPath := os.Getenv("ONNX_PATH"); envPath != "" {
		return envPath
	}

	libName, ok := libraryNames[runtime.GOOS]
	if !ok {
		libName = "libonnxruntime.so"
	}
	managed := filepath.Join(onnxInstallDir(), libName)
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// configureONNXRuntime points fastembed-go at the runtime through ONNX_PATH.
func configureONNXRuntime() error {
	path := ONNXLibraryPath()
	if path == "" {
		return fmt.Errorf("%w: ONNX runtime not found; set ONNX_PATH or install libonnxruntime into %s",
			ErrInvalidConfig, onnxInstallDir())
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: ONNX runtime at %s: %v", ErrInvalidConfig, path, err)
	}
	return os.Setenv("ONNX_PATH", path)
}
