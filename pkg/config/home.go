package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "E2E_RUNNER_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the e2e-runner home directory.
//
// Resolution order:
//  1. $E2E_RUNNER_HOME environment variable
//  2. Parent of the binary's directory (if binary is in <home>/bin/)
//  3. Current working directory (development fallback)
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetScreenshotDir returns <home>/test-output/screenshots.
func GetScreenshotDir() string {
	return filepath.Join(GetHome(), "test-output", "screenshots")
}

// GetLogDir returns <home>/test-output/logs.
func GetLogDir() string {
	return filepath.Join(GetHome(), "test-output", "logs")
}

// GetTestDataDir returns <home>/testdata.
func GetTestDataDir() string {
	return filepath.Join(GetHome(), "testdata")
}

// JSONPath returns the path of a JSON fixture under <home>/testdata/json.
func JSONPath(name string) string {
	return filepath.Join(GetTestDataDir(), "json", name)
}

// PDFPath returns the path of an upload fixture under <home>/testdata/pdf.
func PDFPath(name string) string {
	return filepath.Join(GetTestDataDir(), "pdf", name)
}

func resolveHome() string {
	// 1. Environment variable
	if env := os.Getenv(envHome); env != "" {
		return env
	}

	// 2. Binary-relative: if binary is at <home>/bin/e2e-runner, use <home>
	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	// 3. Current working directory
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}

	return "."
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
