package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestErrorLogFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewErrorLog(nopCloser{buf})
	l.now = func() time.Time { return time.Unix(1700000000, 0) }

	l.LogError("CDN 1 failed for a.pak: HTTP 404")
	l.LogError("All CDNs failed for a.pak")

	require.Equal(t,
		"[1700000000] ERROR: CDN 1 failed for a.pak: HTTP 404\n[1700000000] ERROR: All CDNs failed for a.pak\n",
		buf.String())
}

func TestOpenErrorLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("previous\n"), 0o644))

	l, err := OpenErrorLog(path)
	require.NoError(t, err)
	l.LogError("next")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "previous\n[")
	require.Contains(t, string(data), "] ERROR: next\n")
}

func TestNilAndNopErrorLogs(t *testing.T) {
	var l *ErrorLog
	l.LogError("ignored")
	require.NoError(t, l.Close())

	NopErrorLog{}.LogError("ignored")
}

func TestSpinnerProgressFinishMarks(t *testing.T) {
	var buf bytes.Buffer
	p := NewSpinnerProgress(&buf)

	p.Start("Fetching manifest")
	p.Stop("Fetching manifest")
	p.Start("Opening history")
	p.Fail("Opening history")

	out := buf.String()
	require.Contains(t, out, "\r✓ Fetching manifest\n")
	require.Contains(t, out, "\r✗ Opening history\n")
}
