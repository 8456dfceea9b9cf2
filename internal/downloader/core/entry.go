package core

import (
	"path"
	"strings"

	"github.com/pkg/errors"
)

// Entry describes one file of the manifest. Build it with NewEntry so the path is normalized.
type Entry struct {
	// Path is relative to the destination root, always forward-slash separated.
	Path string

	// Digest is the expected hex content digest; empty when the manifest has none.
	Digest string

	// Size is the expected size in bytes, meaningful only when HasSize is set.
	Size    uint64
	HasSize bool
}

// NewEntry normalizes relPath and rejects paths escaping the destination root.
func NewEntry(relPath, digest string, size *uint64) (Entry, error) {
	normalized, err := NormalizePath(relPath)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Path:   normalized,
		Digest: strings.ToLower(strings.TrimSpace(digest)),
	}
	if size != nil {
		entry.Size = *size
		entry.HasSize = true
	}
	return entry, nil
}

// ExpectedSize returns the manifest size as an optional value.
func (e Entry) ExpectedSize() *uint64 {
	if !e.HasSize {
		return nil
	}
	size := e.Size
	return &size
}

// Name returns the last path element, used for display.
func (e Entry) Name() string {
	return path.Base(e.Path)
}

// NormalizePath converts backslashes, strips leading slashes and cleans the path.
func NormalizePath(relPath string) (string, error) {
	p := strings.TrimSpace(strings.ReplaceAll(relPath, "\\", "/"))
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", errors.New("empty destination path")
	}

	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", errors.Errorf("destination path escapes root: %s", relPath)
		}
	}

	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", errors.Errorf("invalid destination path: %s", relPath)
	}
	return cleaned, nil
}

// MirrorSet is an ordered list of base URLs; earlier mirrors are preferred.
type MirrorSet []string

// NewMirrorSet trims whitespace and drops empty entries, keeping order.
func NewMirrorSet(bases ...string) MirrorSet {
	set := make(MirrorSet, 0, len(bases))
	for _, base := range bases {
		if trimmed := strings.TrimSpace(base); trimmed != "" {
			set = append(set, trimmed)
		}
	}
	return set
}

// URL joins the base at index i with relPath.
// A base ending in "/" is used as is, otherwise a separator is inserted.
func (m MirrorSet) URL(i int, relPath string) string {
	base := m[i]
	if strings.HasSuffix(base, "/") {
		return base + relPath
	}
	return base + "/" + relPath
}
