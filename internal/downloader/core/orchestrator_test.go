package core

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "mirrordl/internal/errors"
	"mirrordl/internal/logger"
)

type recordingErrorLog struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingErrorLog) LogError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recordingErrorLog) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type recordingObserver struct {
	NoopObserver
	started  []string
	finished []FileKind
}

func (r *recordingObserver) EntryStarted(_, _ int, entry Entry) {
	r.started = append(r.started, entry.Path)
}

func (r *recordingObserver) EntryFinished(_, _ int, _ Entry, outcome FileOutcome) {
	r.finished = append(r.finished, outcome.Kind)
}

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, *logger.MockLogger, *recordingErrorLog) {
	t.Helper()

	log := logger.NewMockLogger()
	errLog := &recordingErrorLog{}
	all := append([]Option{WithHTTPClient(http.DefaultClient), WithErrorLog(errLog)}, opts...)

	o, err := NewOrchestrator(testConfig(), log, all...)
	require.NoError(t, err)
	return o, log, errLog
}

func mustEntry(t *testing.T, path string, data []byte, withSize bool) Entry {
	t.Helper()
	var size *uint64
	if withSize {
		n := uint64(len(data))
		size = &n
	}
	entry, err := NewEntry(path, md5Hex(data), size)
	require.NoError(t, err)
	return entry
}

func TestNewOrchestratorValidatesArguments(t *testing.T) {
	_, err := NewOrchestrator(nil, logger.NewMockLogger())
	require.True(t, apperrors.IsConfig(err))

	_, err = NewOrchestrator(testConfig(), nil)
	require.Error(t, err)
}

func TestProcessFailsOverToSecondMirror(t *testing.T) {
	m1 := newFileServer(t)
	m2 := newFileServer(t)
	payload := []byte("hello")
	m2.put("a/b.bin", payload)

	o, _, errLog := newTestOrchestrator(t)
	root := t.TempDir()
	entry := mustEntry(t, "a/b.bin", payload, false)

	outcome := o.Process(context.Background(), root, NewMirrorSet(m1.URL, m2.URL), entry)
	require.Equal(t, FileDownloaded, outcome.Kind)
	require.Equal(t, 1, outcome.Mirror)

	got, err := os.ReadFile(filepath.Join(root, "a", "b.bin"))
	require.NoError(t, err)
	require.Equal(t, payload, got)

	require.Zero(t, m1.gets.Load())
	require.True(t, errLog.contains("CDN 1 failed for a/b.bin"))

	snap := o.Tracker().Snapshot()
	require.EqualValues(t, 5, snap.Total)
	require.EqualValues(t, 5, snap.Downloaded)
	require.EqualValues(t, 1, snap.Files)
}

func TestProcessFallsBackAfterExhaustedRetries(t *testing.T) {
	m1 := newFileServer(t)
	m2 := newFileServer(t)
	payload := []byte("content")
	m1.put("f.bin", payload)
	m2.put("f.bin", payload)

	m1.failGet("f.bin", http.StatusServiceUnavailable)

	o, _, errLog := newTestOrchestrator(t)
	outcome := o.Process(context.Background(), t.TempDir(), NewMirrorSet(m1.URL, m2.URL), mustEntry(t, "f.bin", payload, true))

	require.Equal(t, FileDownloaded, outcome.Kind)
	require.Equal(t, 1, outcome.Mirror)
	require.EqualValues(t, 3, m1.gets.Load())
	require.True(t, errLog.contains("Failed after 3 attempts for f.bin via CDN 1"))
}

func TestProcessAllMirrorsFail(t *testing.T) {
	m1 := newFileServer(t)
	m2 := newFileServer(t)
	m1.fail("x.bin", http.StatusInternalServerError)

	o, _, errLog := newTestOrchestrator(t)
	root := t.TempDir()

	outcome := o.Process(context.Background(), root, NewMirrorSet(m1.URL, m2.URL), mustEntry(t, "x.bin", []byte("x"), false))
	require.Equal(t, FileFailed, outcome.Kind)
	require.Equal(t, ReasonAllMirrorsFailed, outcome.Reason)
	require.True(t, errLog.contains("All CDNs failed for x.bin"))

	_, err := os.Stat(filepath.Join(root, "x.bin"))
	require.True(t, os.IsNotExist(err))
}

func TestProcessChecksumMismatchRemovesFile(t *testing.T) {
	m1 := newFileServer(t)
	m2 := newFileServer(t)
	m1.put("c.bin", []byte("corrupted"))
	m2.put("c.bin", []byte("expected"))

	o, _, errLog := newTestOrchestrator(t)
	root := t.TempDir()
	entry := mustEntry(t, "c.bin", []byte("expected"), false)

	outcome := o.Process(context.Background(), root, NewMirrorSet(m1.URL, m2.URL), entry)
	require.Equal(t, FileFailed, outcome.Kind)
	require.Equal(t, ReasonChecksumMismatch, outcome.Reason)
	require.Zero(t, m2.gets.Load())
	require.True(t, errLog.contains("Checksum failed for c.bin"))

	_, err := os.Stat(filepath.Join(root, "c.bin"))
	require.True(t, os.IsNotExist(err))
}

func TestProcessSizeMismatch(t *testing.T) {
	m1 := newFileServer(t)
	body := []byte("four")
	m1.put("s.bin", body)

	size := uint64(99)
	entry, err := NewEntry("s.bin", md5Hex(body), &size)
	require.NoError(t, err)

	o, _, _ := newTestOrchestrator(t)
	root := t.TempDir()
	outcome := o.Process(context.Background(), root, NewMirrorSet(m1.URL), entry)
	require.Equal(t, FileFailed, outcome.Kind)
	require.Equal(t, ReasonSizeMismatch, outcome.Reason)

	_, err = os.Stat(filepath.Join(root, "s.bin"))
	require.True(t, os.IsNotExist(err))
}

func TestProcessAlreadyValidSkipsTransfer(t *testing.T) {
	m1 := newFileServer(t)
	payload := []byte("already here")
	m1.put("v.bin", payload)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "v.bin"), payload, 0o644))

	tests := []struct {
		name     string
		withSize bool
	}{
		{name: "manifest size", withSize: true},
		{name: "probed size", withSize: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _, _ := newTestOrchestrator(t)
			outcome := o.Process(context.Background(), root, NewMirrorSet(m1.URL), mustEntry(t, "v.bin", payload, tt.withSize))
			require.Equal(t, FileAlreadyValid, outcome.Kind)
			require.Zero(t, m1.gets.Load())
			require.EqualValues(t, 1, o.Tracker().Snapshot().Files)
			require.Zero(t, o.Tracker().Snapshot().Downloaded)
		})
	}
}

func TestProcessReplacesStaleFile(t *testing.T) {
	m1 := newFileServer(t)
	payload := []byte("fresh content")
	m1.put("stale.bin", payload)

	root := t.TempDir()
	dest := filepath.Join(root, "stale.bin")
	require.NoError(t, os.WriteFile(dest, []byte("stale content"), 0o644))

	o, _, _ := newTestOrchestrator(t)
	outcome := o.Process(context.Background(), root, NewMirrorSet(m1.URL), mustEntry(t, "stale.bin", payload, true))
	require.Equal(t, FileDownloaded, outcome.Kind)
	require.EqualValues(t, 1, m1.gets.Load())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestRunRejectsEmptyInputs(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	_, err := o.Run(context.Background(), t.TempDir(), nil, NewMirrorSet("http://a"))
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeManifestEmpty, appErr.Code)

	entry := mustEntry(t, "a", []byte("a"), false)
	_, err = o.Run(context.Background(), t.TempDir(), []Entry{entry}, nil)
	appErr, ok = apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeMirrorsEmpty, appErr.Code)
}

func TestRunSummarisesOutcomes(t *testing.T) {
	m1 := newFileServer(t)
	good := []byte("good")
	valid := []byte("valid")
	m1.put("good.bin", good)
	m1.put("valid.bin", valid)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "valid.bin"), valid, 0o644))

	observer := &recordingObserver{}
	o, _, _ := newTestOrchestrator(t, WithObserver(observer))

	entries := []Entry{
		mustEntry(t, "good.bin", good, true),
		mustEntry(t, "missing.bin", []byte("missing"), true),
		mustEntry(t, "valid.bin", valid, true),
	}

	summary, err := o.Run(context.Background(), root, entries, NewMirrorSet(m1.URL))
	require.NoError(t, err)
	require.Equal(t, 3, summary.Total())
	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 1, summary.Downloaded)
	require.Equal(t, 1, summary.AlreadyValid)
	require.Equal(t, 1, summary.Failed)
	require.False(t, summary.Interrupted)
	require.False(t, summary.Complete())

	require.Equal(t, []string{"good.bin", "missing.bin", "valid.bin"}, observer.started)
	require.Equal(t, []FileKind{FileDownloaded, FileFailed, FileAlreadyValid}, observer.finished)
}

// cancelAfterFirst flips the signal once the first entry finishes.
type cancelAfterFirst struct {
	NoopObserver
	cancel *CancelSignal
}

func (c cancelAfterFirst) EntryFinished(int, int, Entry, FileOutcome) {
	c.cancel.Cancel()
}

func TestRunStopsAfterCancellation(t *testing.T) {
	m1 := newFileServer(t)
	payloads := map[string][]byte{"1.bin": []byte("one"), "2.bin": []byte("two"), "3.bin": []byte("three")}
	for name, data := range payloads {
		m1.put(name, data)
	}

	cancel := NewCancelSignal()
	o, _, _ := newTestOrchestrator(t, WithCancelSignal(cancel), WithObserver(cancelAfterFirst{cancel: cancel}))

	root := t.TempDir()
	entries := []Entry{
		mustEntry(t, "1.bin", payloads["1.bin"], true),
		mustEntry(t, "2.bin", payloads["2.bin"], true),
		mustEntry(t, "3.bin", payloads["3.bin"], true),
	}

	summary, err := o.Run(context.Background(), root, entries, NewMirrorSet(m1.URL))
	require.NoError(t, err)
	require.True(t, summary.Interrupted)
	require.Equal(t, 1, summary.Downloaded)
	require.Equal(t, 2, summary.Skipped)
	require.EqualValues(t, 1, m1.getCount("1.bin"))
	require.Zero(t, m1.getCount("2.bin"))
	require.Zero(t, m1.getCount("3.bin"))

	for _, name := range []string{"2.bin", "3.bin"} {
		_, err := os.Stat(filepath.Join(root, name))
		require.True(t, os.IsNotExist(err))
	}
}

// cancellingFS cancels the run on the first write to any created file.
type cancellingFS struct {
	OSFileSystem
	cancel *CancelSignal
}

func (c cancellingFS) Create(path string) (io.WriteCloser, error) {
	w, err := c.OSFileSystem.Create(path)
	if err != nil {
		return nil, err
	}
	return cancellingWriter{WriteCloser: w, cancel: c.cancel}, nil
}

type cancellingWriter struct {
	io.WriteCloser
	cancel *CancelSignal
}

func (w cancellingWriter) Write(p []byte) (int, error) {
	n, err := w.WriteCloser.Write(p)
	w.cancel.Cancel()
	return n, err
}

func TestProcessInterruptedMidTransferRemovesPartial(t *testing.T) {
	m1 := newFileServer(t)
	payload := make([]byte, 8*chunkSize)
	m1.put("nested/big.bin", payload)

	cancel := NewCancelSignal()
	o, _, _ := newTestOrchestrator(t, WithCancelSignal(cancel), WithFileSystem(cancellingFS{cancel: cancel}))

	root := t.TempDir()
	outcome := o.Process(context.Background(), root, NewMirrorSet(m1.URL), mustEntry(t, "nested/big.bin", payload, true))
	require.Equal(t, FileSkipped, outcome.Kind)
	require.EqualValues(t, 1, m1.getCount("nested/big.bin"))
	require.LessOrEqual(t, o.Tracker().Snapshot().Downloaded, uint64(chunkSize))

	_, err := os.Stat(filepath.Join(root, "nested", "big.bin"))
	require.True(t, os.IsNotExist(err))
}

// truncatingServer drops the connection halfway through the body of the
// first GET. HEAD answers carry the length only when headLength is set.
func truncatingServer(t *testing.T, payload []byte, headLength bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			if headLength {
				w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			}
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		if gets.Add(1) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(payload[:len(payload)/2])
			w.(http.Flusher).Flush()
			panic(http.ErrAbortHandler)
		}
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv, &gets
}

func TestProcessRetryKeepsDownloadedWithinTotal(t *testing.T) {
	payload := bytes.Repeat([]byte("m"), 256*1024)

	tests := []struct {
		name       string
		withSize   bool
		headLength bool
	}{
		{name: "size from manifest", withSize: true, headLength: true},
		{name: "size from mirror", headLength: true},
		{name: "size unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, gets := truncatingServer(t, payload, tt.headLength)
			o, log, _ := newTestOrchestrator(t)

			outcome := o.Process(context.Background(), t.TempDir(), NewMirrorSet(srv.URL), mustEntry(t, "big.bin", payload, tt.withSize))
			require.Equal(t, FileDownloaded, outcome.Kind)
			require.EqualValues(t, 2, gets.Load())
			require.True(t, log.HasEntry(logger.LevelWarn, "Attempt 1/3 failed"))

			snap := o.Tracker().Snapshot()
			require.Greater(t, snap.Downloaded, uint64(len(payload)))
			require.Equal(t, snap.Downloaded, snap.Total)
			require.EqualValues(t, 100, snap.Percent())
		})
	}
}

func TestDefaultHTTPClientBoundsHeaderWait(t *testing.T) {
	client := defaultHTTPClient(7 * time.Second)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	require.Equal(t, 7*time.Second, transport.ResponseHeaderTimeout)

	o, err := NewOrchestrator(&DownloadConfig{ProbeTimeout: 3 * time.Second}, logger.NewMockLogger())
	require.NoError(t, err)
	defaultClient, ok := o.client.(*http.Client)
	require.True(t, ok)
	require.Equal(t, 3*time.Second, defaultClient.Transport.(*http.Transport).ResponseHeaderTimeout)
}
