package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// PrepareDirs lays out the temp-dir tree for the run: the base directory,
// one working directory per configured mode, per-mode coverage directories
// when coverage is enabled, and a metrics directory when resource-usage
// gathering is on. Idempotent: existing directories are left alone.
func PrepareDirs(base string, modes []string, coverage, gatherMetrics bool) error {
	if base == "" {
		return fmt.Errorf("temp directory base is required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("preparing temp dir: %w", err)
	}
	for _, mode := range modes {
		if err := os.MkdirAll(filepath.Join(base, mode), 0o755); err != nil {
			return fmt.Errorf("preparing mode dir %s: %w", mode, err)
		}
		if coverage {
			if err := os.MkdirAll(filepath.Join(base, mode, "coverage"), 0o755); err != nil {
				return fmt.Errorf("preparing coverage dir for %s: %w", mode, err)
			}
		}
	}
	if gatherMetrics {
		if err := os.MkdirAll(filepath.Join(base, "metrics"), 0o755); err != nil {
			return fmt.Errorf("preparing metrics dir: %w", err)
		}
	}
	return nil
}
