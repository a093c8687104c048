package config

import (
	"path/filepath"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv("E2E_RUNNER_HOME", "/custom/path")

	got := GetHome()
	if got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_FallbackNotEmpty(t *testing.T) {
	ResetHome()
	t.Setenv("E2E_RUNNER_HOME", "")

	if got := GetHome(); got == "" {
		t.Error("GetHome() returned empty string")
	}
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv("E2E_RUNNER_HOME", "/first")

	first := GetHome()

	// Change env, should NOT affect cached value
	t.Setenv("E2E_RUNNER_HOME", "/second")
	second := GetHome()

	if first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestDerivedDirs(t *testing.T) {
	ResetHome()
	t.Setenv("E2E_RUNNER_HOME", "/test/home")
	defer ResetHome()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"screenshots", GetScreenshotDir(), filepath.Join("/test/home", "test-output", "screenshots")},
		{"logs", GetLogDir(), filepath.Join("/test/home", "test-output", "logs")},
		{"testdata", GetTestDataDir(), filepath.Join("/test/home", "testdata")},
		{"json", JSONPath("challenge.json"), filepath.Join("/test/home", "testdata", "json", "challenge.json")},
		{"pdf", PDFPath("sample.pdf"), filepath.Join("/test/home", "testdata", "pdf", "sample.pdf")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
