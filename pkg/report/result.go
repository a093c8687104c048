package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devicelab-dev/e2e-runner/pkg/core"
)

// ResultFile is the name of the suite summary written by WriteSuiteResult.
const ResultFile = "report.json"

// WriteSuiteResult writes the suite summary to <dir>/report.json atomically.
func WriteSuiteResult(dir string, result *core.SuiteResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, ResultFile)
	if err := atomicWriteJSON(path, result); err != nil {
		return "", err
	}
	return path, nil
}

// ReadSuiteResult loads a summary written by WriteSuiteResult.
func ReadSuiteResult(path string) (*core.SuiteResult, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- report path from caller
	if err != nil {
		return nil, err
	}
	var result core.SuiteResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &result, nil
}

func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
