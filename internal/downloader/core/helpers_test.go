package core

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// fileServer serves fixed payloads by path and counts requests per method.
type fileServer struct {
	*httptest.Server

	mu      sync.Mutex
	files   map[string][]byte
	status  map[string]int
	getFail map[string]int
	heads   atomic.Int32
	gets    atomic.Int32
	getHits map[string]int
}

func newFileServer(t *testing.T) *fileServer {
	t.Helper()

	fs := &fileServer{
		files:   make(map[string][]byte),
		status:  make(map[string]int),
		getFail: make(map[string]int),
		getHits: make(map[string]int),
	}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.Close)
	return fs
}

func (s *fileServer) put(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = data
}

func (s *fileServer) fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[path] = status
}

// failGet answers HEAD normally but rejects every GET for path.
func (s *fileServer) failGet(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getFail[path] = status
}

func (s *fileServer) getCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getHits[path]
}

func (s *fileServer) handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		s.heads.Add(1)
	case http.MethodGet:
		s.gets.Add(1)
	}

	path := strings.TrimPrefix(r.URL.Path, "/")

	s.mu.Lock()
	if r.Method == http.MethodGet {
		s.getHits[path]++
	}
	status, forced := s.status[path]
	if getStatus, ok := s.getFail[path]; ok && r.Method == http.MethodGet {
		status, forced = getStatus, true
	}
	data, ok := s.files[path]
	s.mu.Unlock()

	if forced {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, path, time.Time{}, bytes.NewReader(data))
}

func testConfig() *DownloadConfig {
	cfg := &DownloadConfig{ProbeTimeout: 2 * time.Second}
	cfg.applyDefaults()
	return cfg
}

// cancellingSink cancels the run after the first chunk it sees.
type cancellingSink struct {
	cancel *CancelSignal
	bytes  atomic.Uint64
}

func (s *cancellingSink) AddDownloaded(n uint64) {
	s.bytes.Add(n)
	s.cancel.Cancel()
}
