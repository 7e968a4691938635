package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile indicates preflight checks have passed for a store dir.
const MarkerFile = ".preflight-passed"

// NeedsCheck returns true if preflight checks should run: the marker
// file is absent from the store directory.
func NeedsCheck(storeDir string) bool {
	_, err := os.Stat(filepath.Join(storeDir, MarkerFile))
	return os.IsNotExist(err)
}

// MarkPassed creates the marker file.
func MarkPassed(storeDir string) error {
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	content := []byte(time.Now().Format(time.RFC3339))
	return os.WriteFile(filepath.Join(storeDir, MarkerFile), content, 0o644)
}

// ClearMarker removes the marker file, forcing a re-check on next run.
func ClearMarker(storeDir string) error {
	err := os.Remove(filepath.Join(storeDir, MarkerFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago the preflight check passed, or zero
// when the marker is absent or unreadable.
func MarkerAge(storeDir string) time.Duration {
	content, err := os.ReadFile(filepath.Join(storeDir, MarkerFile))
	if err != nil {
		return 0
	}
	t, err := time.Parse(time.RFC3339, string(content))
	if err != nil {
		return 0
	}
	return time.Since(t)
}
