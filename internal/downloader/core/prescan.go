package core

import (
	"context"
	"path/filepath"
)

// SizeScan is the outcome of Prescan.
type SizeScan struct {
	// Entries mirrors the input with sizes learned from the mirrors filled in.
	Entries []Entry

	// Required is the number of bytes still expected to be transferred.
	Required uint64

	// Present counts entries already on disk at their expected size. Their
	// bytes are left out of Required; a digest mismatch found later puts them back.
	Present int

	// Unknown counts entries no mirror reported a length for.
	Unknown int
}

// Prescan resolves the size of every entry the manifest leaves unsized and
// adds the bytes still to fetch to the tracker total before any transfer
// starts. progress, when set, is called after each entry. It must finish
// before Run on the same orchestrator so no entry is counted twice.
func (o *Orchestrator) Prescan(ctx context.Context, root string, entries []Entry, mirrors MirrorSet, progress func(done, total int)) SizeScan {
	scan := SizeScan{Entries: append([]Entry(nil), entries...)}
	o.counted = make(map[string]struct{}, len(entries))

	for i := range scan.Entries {
		if o.cancel.Cancelled() {
			break
		}
		entry := &scan.Entries[i]

		if !entry.HasSize {
			if _, size, ok := o.resolver.ResolveSize(ctx, mirrors, entry.Path); ok {
				entry.Size, entry.HasSize = size, true
			} else {
				o.logger.Debug("Could not determine size for file: %s", entry.Path)
				scan.Unknown++
			}
		}

		if entry.HasSize {
			if o.presentAtSize(root, *entry) {
				scan.Present++
			} else {
				scan.Required += entry.Size
				o.tracker.AddTotal(entry.Size)
				o.counted[entry.Path] = struct{}{}
			}
		}

		if progress != nil {
			progress(i+1, len(scan.Entries))
		}
	}
	return scan
}

// presentAtSize is a stat-only look at the destination. Entries without a
// digest are always transferred, so they never count as present.
func (o *Orchestrator) presentAtSize(root string, entry Entry) bool {
	if entry.Digest == "" {
		return false
	}
	info, err := o.fs.Stat(filepath.Join(root, filepath.FromSlash(entry.Path)))
	if err != nil || info.IsDir() {
		return false
	}
	return uint64(info.Size()) == entry.Size
}

func (o *Orchestrator) precounted(path string) bool {
	_, ok := o.counted[path]
	return ok
}
