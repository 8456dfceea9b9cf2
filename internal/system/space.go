package system

import (
	"github.com/dustin/go-humanize"

	apperrors "mirrordl/internal/errors"
	"mirrordl/internal/logger"
)

// CheckSpace compares required bytes with the free space under root. It
// returns a SYS-002 error when the space is known to be insufficient and nil
// when it is sufficient or cannot be determined.
func CheckSpace(root string, required uint64, log logger.Logger) error {
	return checkSpace(root, required, FreeSpace, log)
}

type freeSpaceFunc func(path string) (uint64, bool, error)

func checkSpace(root string, required uint64, free freeSpaceFunc, log logger.Logger) error {
	if required == 0 {
		return nil
	}

	available, known, err := free(root)
	if err != nil {
		if log != nil {
			log.Debug("Free space check skipped: %v", err)
		}
		return nil
	}
	if !known {
		return nil
	}

	if log != nil {
		log.Debug("Disk available space: %s, required: %s", humanize.Bytes(available), humanize.Bytes(required))
	}
	if available >= required {
		return nil
	}

	return newSystemError(apperrors.CodeInsufficientSpace, "system.CheckSpace", "insufficient disk space", nil,
		apperrors.Metadata{
			"path":      root,
			"required":  humanize.Bytes(required),
			"available": humanize.Bytes(available),
		})
}
