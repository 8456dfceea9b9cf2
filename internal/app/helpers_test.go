package app

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mirrordl/internal/logger"
)

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// mirrorServer serves payloads keyed by URL path; unknown paths are 404.
type mirrorServer struct {
	*httptest.Server

	mu    sync.Mutex
	files map[string][]byte
}

func newMirrorServer(t *testing.T) *mirrorServer {
	t.Helper()

	s := &mirrorServer{files: make(map[string][]byte)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		data, ok := s.files[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, filepath.Base(r.URL.Path), time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *mirrorServer) put(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = data
}

type manifestFile struct {
	path   string
	digest string
	size   int
}

// writeManifest writes a YAML manifest listing files against mirrors.
func writeManifest(t *testing.T, mirrors []string, files []manifestFile) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("mirrors:\n")
	for _, m := range mirrors {
		fmt.Fprintf(&b, "  - %s\n", m)
	}
	b.WriteString("files:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "  - path: %q\n    digest: %q\n", f.path, f.digest)
		if f.size > 0 {
			fmt.Fprintf(&b, "    size: %d\n", f.size)
		}
	}

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

// fakePrompter answers prompts from fixed values and records what was asked.
type fakePrompter struct {
	dir        string
	choice     string
	dirDefault string
	selected   []string
}

func (p *fakePrompter) Select(label string, options []string) (string, error) {
	p.selected = append(p.selected, label)
	return p.choice, nil
}

func (p *fakePrompter) Directory(defaultDir string) (string, error) {
	p.dirDefault = defaultDir
	return p.dir, nil
}

// withSpaceCheck replaces the free space check.
func withSpaceCheck(fn func(root string, required uint64, log logger.Logger) error) Option {
	return func(a *App) {
		a.checkSpace = fn
	}
}
