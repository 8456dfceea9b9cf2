package ui

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mirrordl/internal/downloader/core"
)

type recordingTitle struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordingTitle) SetTitle(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
}

func (r *recordingTitle) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}

func TestReporterRender(t *testing.T) {
	r := NewReporter("mirrordl", core.NewProgressTracker(), 10, time.Second, nil, nil)

	got := r.Render(core.ProgressSnapshot{
		Downloaded: 5000000,
		Total:      10000000,
		Files:      3,
		Elapsed:    5 * time.Second,
	})
	require.Equal(t, "mirrordl - 3/10 files - 5.0 MB (50%) - Speed: 1.0 MB/s - ETA: 00:00:05", got)

	got = r.Render(core.ProgressSnapshot{Downloaded: 10, Files: 0})
	require.Equal(t, "mirrordl - 0/10 files - 10 B - Speed: 0 B/s - ETA: 00:00:00", got)
}

func TestReporterRunStopsWithContext(t *testing.T) {
	title := &recordingTitle{}
	tracker := core.NewProgressTracker()
	r := NewReporter("mirrordl", tracker, 1, 5*time.Millisecond, title, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return title.count() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reporter did not stop")
	}
}
