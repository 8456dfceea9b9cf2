package manifest

import (
	"context"

	"mirrordl/internal/downloader/core"
	apperrors "mirrordl/internal/errors"
)

// Manifest is the resolved work list for one run.
type Manifest struct {
	Entries []core.Entry
	Mirrors core.MirrorSet

	// Variant names the launcher configuration the manifest came from, if any.
	Variant string
}

// Source produces a Manifest. A source returns either a complete manifest or an error.
type Source interface {
	Load(ctx context.Context) (*Manifest, error)
}

// TotalSize sums the sizes the manifest declares. known is false when at least one entry has no size.
func (m *Manifest) TotalSize() (total uint64, known bool) {
	known = true
	for _, entry := range m.Entries {
		if !entry.HasSize {
			known = false
			continue
		}
		total += entry.Size
	}
	return total, known
}

func invalidManifest(operation, message string, err error) *apperrors.AppError {
	return apperrors.ConfigError(apperrors.CodeManifestInvalid, message, err).
		WithModule("manifest").
		WithOperation(operation)
}

// record is the per-file shape shared by local manifests and remote indexes.
type record struct {
	Path   string  `yaml:"path" json:"dest"`
	Digest string  `yaml:"digest" json:"md5"`
	Size   *uint64 `yaml:"size" json:"size"`
}

func buildEntries(operation string, records []record) ([]core.Entry, error) {
	if len(records) == 0 {
		return nil, invalidManifest(operation, "manifest lists no files", nil)
	}

	entries := make([]core.Entry, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		entry, err := core.NewEntry(rec.Path, rec.Digest, rec.Size)
		if err != nil {
			return nil, invalidManifest(operation, "invalid file path in manifest", err).
				WithField("index", i).
				WithField("path", rec.Path)
		}
		if _, dup := seen[entry.Path]; dup {
			return nil, invalidManifest(operation, "duplicate file path in manifest", nil).
				WithField("path", entry.Path)
		}
		seen[entry.Path] = struct{}{}
		entries = append(entries, entry)
	}
	return entries, nil
}
