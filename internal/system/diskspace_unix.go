//go:build unix

package system

import (
	"golang.org/x/sys/unix"

	apperrors "mirrordl/internal/errors"
)

// FreeSpace returns the bytes available to unprivileged users on the filesystem holding path.
func FreeSpace(path string) (uint64, bool, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, false, newSystemError(apperrors.CodeSystemGeneric, "system.FreeSpace", "failed to get disk space information", err,
			apperrors.Metadata{"path": path})
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), true, nil
}
