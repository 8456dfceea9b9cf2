package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mirrordl/internal/downloader/core"
	apperrors "mirrordl/internal/errors"
	"mirrordl/internal/logger"
	"mirrordl/internal/ui"
)

type runFixture struct {
	cfg     *Config
	out     *bytes.Buffer
	log     *logger.MockLogger
	workDir string
}

func newRunFixture(t *testing.T, manifestPath string) *runFixture {
	t.Helper()

	work := t.TempDir()
	cfg := DefaultConfig()
	cfg.ManifestFile = manifestPath
	cfg.Dest = filepath.Join(work, "out")
	cfg.LogFile = filepath.Join(work, "logs.log")
	cfg.HistoryDB = filepath.Join(work, "history.db")
	cfg.NonInteractive = true
	cfg.ReportInterval = 10 * time.Millisecond

	return &runFixture{
		cfg:     cfg,
		out:     &bytes.Buffer{},
		log:     logger.NewMockLogger(),
		workDir: work,
	}
}

func (f *runFixture) run(t *testing.T, opts ...Option) (*Result, error) {
	t.Helper()

	opts = append([]Option{WithPrinter(ui.NewPrinter(f.out))}, opts...)
	a, err := New(f.cfg, f.log, opts...)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	return a.Run(context.Background())
}

func TestRunDownloadsWithFailover(t *testing.T) {
	srv := newMirrorServer(t)
	a := []byte("alpha payload")
	b := []byte("bravo payload, a little longer")
	srv.put("/good/a.txt", a)
	srv.put("/good/sub/b.txt", b)

	manifestPath := writeManifest(t, []string{srv.URL + "/broken", srv.URL + "/good/"}, []manifestFile{
		{path: "a.txt", digest: md5Hex(a), size: len(a)},
		{path: "sub/b.txt", digest: md5Hex(b)},
	})
	f := newRunFixture(t, manifestPath)

	res, err := f.run(t)
	require.NoError(t, err)
	require.Equal(t, 0, ExitCode(res, nil))
	require.NotEmpty(t, res.RunID)
	require.Equal(t, 2, res.Summary.Downloaded)
	require.Equal(t, uint64(len(a)+len(b)), res.Tally.Downloaded)

	got, err := os.ReadFile(filepath.Join(f.cfg.Dest, "sub", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, b, got)

	require.Contains(t, f.out.String(), "DOWNLOAD COMPLETE")
	require.Contains(t, f.out.String(), "Downloaded: sub/b.txt")

	errorLog, err := os.ReadFile(f.cfg.LogFile)
	require.NoError(t, err)
	require.Contains(t, string(errorLog), "ERROR: CDN 1 failed for a.txt: HTTP 404")

	var history bytes.Buffer
	require.NoError(t, ListHistory(context.Background(), f.cfg, 5, ui.NewPrinter(&history)))
	require.Contains(t, history.String(), res.RunID[:8])
	require.Contains(t, history.String(), "complete")
	require.Contains(t, history.String(), "2/2")

	var detail bytes.Buffer
	require.NoError(t, ShowRun(context.Background(), f.cfg, res.RunID[:8], ui.NewPrinter(&detail)))
	require.Contains(t, detail.String(), res.RunID)
	require.Contains(t, detail.String(), "sub/b.txt")
	require.Contains(t, detail.String(), "downloaded")

	err = ShowRun(context.Background(), f.cfg, "zzzzzzzz", ui.NewPrinter(&detail))
	require.True(t, apperrors.HasCode(err, apperrors.CodeRunNotFound))
}

func TestRunSecondPassFindsValidFiles(t *testing.T) {
	srv := newMirrorServer(t)
	a := []byte("alpha payload")
	srv.put("/m/a.txt", a)

	manifestPath := writeManifest(t, []string{srv.URL + "/m"}, []manifestFile{
		{path: "a.txt", digest: md5Hex(a), size: len(a)},
	})
	f := newRunFixture(t, manifestPath)

	_, err := f.run(t)
	require.NoError(t, err)

	res, err := f.run(t)
	require.NoError(t, err)
	require.Equal(t, 1, res.Summary.AlreadyValid)
	require.Equal(t, 0, res.Summary.Downloaded)
	require.Equal(t, uint64(0), res.Tally.Downloaded)
	require.Contains(t, f.out.String(), "File is valid: a.txt")
}

func TestRunPartialDownload(t *testing.T) {
	srv := newMirrorServer(t)
	a := []byte("alpha payload")
	srv.put("/m/a.txt", a)
	srv.put("/m/bad.txt", []byte("corrupted"))

	manifestPath := writeManifest(t, []string{srv.URL + "/m"}, []manifestFile{
		{path: "a.txt", digest: md5Hex(a)},
		{path: "bad.txt", digest: md5Hex([]byte("expected"))},
		{path: "missing.txt", digest: md5Hex([]byte("missing"))},
	})
	f := newRunFixture(t, manifestPath)

	res, err := f.run(t)
	require.NoError(t, err)
	require.Equal(t, 1, res.Summary.Succeeded)
	require.Equal(t, 2, res.Summary.Failed)
	require.Equal(t, 1, ExitCode(res, nil))
	require.Contains(t, f.out.String(), "PARTIAL DOWNLOAD")
	require.Contains(t, f.out.String(), "Could not determine size for 1 files")
	require.Contains(t, f.out.String(), "Total download size: at least")

	_, err = os.Stat(filepath.Join(f.cfg.Dest, "bad.txt"))
	require.True(t, os.IsNotExist(err))

	errorLog, err := os.ReadFile(f.cfg.LogFile)
	require.NoError(t, err)
	require.Contains(t, string(errorLog), "Checksum failed for bad.txt")
	require.Contains(t, string(errorLog), "All CDNs failed for missing.txt")
}

func TestRunInterruptedBeforeStart(t *testing.T) {
	srv := newMirrorServer(t)
	a := []byte("alpha payload")
	srv.put("/m/a.txt", a)

	manifestPath := writeManifest(t, []string{srv.URL + "/m"}, []manifestFile{
		{path: "a.txt", digest: md5Hex(a)},
		{path: "b.txt", digest: md5Hex(a)},
	})
	f := newRunFixture(t, manifestPath)

	cancel := core.NewCancelSignal()
	cancel.Cancel()

	res, err := f.run(t, WithCancelSignal(cancel))
	require.NoError(t, err)
	require.True(t, res.Summary.Interrupted)
	require.Equal(t, 2, res.Summary.Skipped)
	require.Equal(t, 130, ExitCode(res, nil))
	require.Contains(t, f.out.String(), "DOWNLOAD INTERRUPTED")

	_, err = os.Stat(filepath.Join(f.cfg.Dest, "a.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestRunMissingManifestIsFatal(t *testing.T) {
	f := newRunFixture(t, filepath.Join(t.TempDir(), "absent.yaml"))

	res, err := f.run(t)
	require.Error(t, err)
	require.Nil(t, res)
	require.True(t, apperrors.IsConfig(err))
	require.Equal(t, 1, ExitCode(res, err))
	require.Contains(t, f.out.String(), "Fetching manifest")
	require.True(t, f.log.HasEntry(logger.LevelError, "Fetching manifest failed"))

	errorLog, err := os.ReadFile(f.cfg.LogFile)
	require.NoError(t, err)
	require.Contains(t, string(errorLog), "Fetching manifest: failed to read manifest file")
}

func TestRunPromptsForDestination(t *testing.T) {
	srv := newMirrorServer(t)
	a := []byte("alpha payload")
	srv.put("/m/a.txt", a)

	manifestPath := writeManifest(t, []string{srv.URL + "/m"}, []manifestFile{
		{path: "a.txt", digest: md5Hex(a)},
	})
	f := newRunFixture(t, manifestPath)
	f.cfg.Dest = ""
	f.cfg.NonInteractive = false

	prompter := &fakePrompter{dir: filepath.Join(f.workDir, "chosen")}
	res, err := f.run(t, WithPrompter(prompter))
	require.NoError(t, err)
	require.Equal(t, prompter.dir, res.Root)
	require.NotEmpty(t, prompter.dirDefault)
	require.Empty(t, prompter.selected)

	_, err = os.Stat(filepath.Join(prompter.dir, "a.txt"))
	require.NoError(t, err)
}

func TestRunWithoutHistoryDatabase(t *testing.T) {
	srv := newMirrorServer(t)
	a := []byte("alpha payload")
	srv.put("/m/a.txt", a)

	manifestPath := writeManifest(t, []string{srv.URL + "/m"}, []manifestFile{
		{path: "a.txt", digest: md5Hex(a)},
	})
	f := newRunFixture(t, manifestPath)
	f.cfg.HistoryDB = ""
	f.cfg.LogFile = ""

	res, err := f.run(t)
	require.NoError(t, err)
	require.True(t, res.Summary.Complete())

	_, err = os.Stat(filepath.Join(f.workDir, "history.db"))
	require.True(t, os.IsNotExist(err))
}

func TestNewRejectsConfigWithoutSource(t *testing.T) {
	_, err := New(DefaultConfig(), logger.NewMockLogger())
	require.Error(t, err)
	require.True(t, apperrors.IsConfig(err))

	_, err = New(nil, logger.NewMockLogger())
	require.Error(t, err)
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name    string
		summary *core.Summary
		err     error
		want    int
	}{
		{name: "fatal", err: errors.New("boom"), want: 1},
		{name: "complete", summary: &core.Summary{Succeeded: 2, Results: make([]core.EntryResult, 2)}, want: 0},
		{name: "failures", summary: &core.Summary{Succeeded: 1, Failed: 1, Results: make([]core.EntryResult, 2)}, want: 1},
		{name: "interrupted", summary: &core.Summary{Skipped: 2, Interrupted: true, Results: make([]core.EntryResult, 2)}, want: 130},
		{name: "no result", want: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var res *Result
			if tc.summary != nil {
				res = &Result{Summary: tc.summary}
			}
			require.Equal(t, tc.want, ExitCode(res, tc.err))
		})
	}
}

func TestListHistoryRequiresDatabase(t *testing.T) {
	err := ListHistory(context.Background(), DefaultConfig(), 0, nil)
	require.Error(t, err)
	require.True(t, apperrors.IsConfig(err))

	err = ShowRun(context.Background(), DefaultConfig(), "abc", nil)
	require.True(t, apperrors.IsConfig(err))
}

func TestRunSizesOnlyFilesStillMissing(t *testing.T) {
	srv := newMirrorServer(t)
	kept := []byte("already on disk")
	fresh := []byte("needs a transfer")
	srv.put("/m/kept.txt", kept)
	srv.put("/m/fresh.txt", fresh)

	manifestPath := writeManifest(t, []string{srv.URL + "/m"}, []manifestFile{
		{path: "kept.txt", digest: md5Hex(kept), size: len(kept)},
		{path: "fresh.txt", digest: md5Hex(fresh)},
	})
	f := newRunFixture(t, manifestPath)
	require.NoError(t, os.MkdirAll(f.cfg.Dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.Dest, "kept.txt"), kept, 0o644))

	var required []uint64
	res, err := f.run(t, withSpaceCheck(func(_ string, n uint64, _ logger.Logger) error {
		required = append(required, n)
		return apperrors.SystemError(apperrors.CodeInsufficientSpace, "insufficient disk space", nil).
			WithFields(apperrors.Metadata{"required": "16 B", "available": "1 B"})
	}))
	require.NoError(t, err)
	require.Equal(t, []uint64{uint64(len(fresh))}, required)

	out := f.out.String()
	require.Contains(t, out, "1 files already present at their expected size")
	require.Contains(t, out, "Total download size: 16 B")
	require.Contains(t, out, "Not enough disk space for the remaining files: 16 B needed, 1 B available")
	require.True(t, f.log.HasEntry(logger.LevelWarn, "Disk space check failed"))

	require.Equal(t, 1, res.Summary.AlreadyValid)
	require.Equal(t, 1, res.Summary.Downloaded)
	require.Equal(t, uint64(len(fresh)), res.Tally.Downloaded)
}

func TestRunFetchTimeoutBoundsIndexRequest(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	f := newRunFixture(t, "")
	f.cfg.IndexURL = slow.URL + "/index.json"
	f.cfg.FetchTimeout = 50 * time.Millisecond

	start := time.Now()
	res, err := f.run(t)
	require.Error(t, err)
	require.Nil(t, res)
	require.Less(t, time.Since(start), 5*time.Second)
	require.True(t, f.log.HasEntry(logger.LevelError, "Fetching manifest failed"))
}
