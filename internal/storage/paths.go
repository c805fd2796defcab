package storage

import (
	"os"
	"path/filepath"
)

const appDir = ".wirecat"

// DefaultStoragePath returns the default storage location.
// Platform-specific paths:
//   - macOS/Linux: ~/.wirecat
//   - Windows: %USERPROFILE%\.wirecat
func DefaultStoragePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, appDir), nil
}
