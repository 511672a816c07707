package sandbox

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

// runnerScript is the execution harness shipped inside the binary so
// installed builds do not depend on a source checkout.
//
//go:embed runner.py
var runnerScript []byte

// extractRunner writes the embedded harness to a stable temp location
// and returns its path.
func extractRunner() (string, error) {
	dir := filepath.Join(os.TempDir(), "pips-sandbox")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create runner dir: %w", err)
	}

	path := filepath.Join(dir, "runner.py")
	if existing, err := os.ReadFile(path); err == nil && string(existing) == string(runnerScript) {
		return path, nil
	}

	if err := os.WriteFile(path, runnerScript, 0o644); err != nil {
		return "", fmt.Errorf("write runner: %w", err)
	}
	return path, nil
}
