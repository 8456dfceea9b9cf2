package system

import (
	"os"
	"path/filepath"
	"strings"

	apperrors "mirrordl/internal/errors"
)

// PrepareRoot resolves path to an absolute directory and creates it if needed.
// An empty path means the current working directory.
func PrepareRoot(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = "."
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", newSystemError(apperrors.CodeDestinationUnusable, "system.PrepareRoot", "failed to resolve destination path", err,
			apperrors.Metadata{"path": path})
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil && !info.IsDir():
		return "", newSystemError(apperrors.CodeDestinationUnusable, "system.PrepareRoot", "destination exists and is not a directory", nil,
			apperrors.Metadata{"path": abs})
	case err == nil:
		return abs, nil
	case !os.IsNotExist(err):
		return "", newSystemError(apperrors.CodeDestinationUnusable, "system.PrepareRoot", "failed to inspect destination", err,
			apperrors.Metadata{"path": abs})
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", newSystemError(apperrors.CodeDestinationUnusable, "system.PrepareRoot", "failed to create destination directory", err,
			apperrors.Metadata{"path": abs})
	}
	return abs, nil
}
