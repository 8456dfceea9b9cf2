package core

import (
	"sync/atomic"
	"time"
)

// ProgressSink receives byte counts as chunks land on disk.
type ProgressSink interface {
	AddDownloaded(n uint64)
}

// ProgressTracker holds the run-wide counters shared between the orchestrator
// and the status reporter. Every field only ever grows; all access is atomic.
type ProgressTracker struct {
	downloaded atomic.Uint64
	total      atomic.Uint64
	files      atomic.Int64
	start      time.Time
	now        func() time.Time
}

// NewProgressTracker starts the run clock.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		start: time.Now(),
		now:   time.Now,
	}
}

// AddDownloaded records n more bytes written to disk.
func (t *ProgressTracker) AddDownloaded(n uint64) {
	t.downloaded.Add(n)
}

// AddTotal grows the expected byte total as file sizes become known.
func (t *ProgressTracker) AddTotal(n uint64) {
	t.total.Add(n)
}

// FileCompleted counts one more entry that is valid on disk.
func (t *ProgressTracker) FileCompleted() {
	t.files.Add(1)
}

// Snapshot reads each counter once. Fields are individually consistent but
// may come from slightly different instants.
func (t *ProgressTracker) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{
		Downloaded: t.downloaded.Load(),
		Total:      t.total.Load(),
		Files:      t.files.Load(),
		Elapsed:    t.now().Sub(t.start),
	}
}

// ProgressSnapshot is a point-in-time copy of the tracker used for display.
type ProgressSnapshot struct {
	Downloaded uint64
	Total      uint64
	Files      int64
	Elapsed    time.Duration
}

// Throughput is the average rate since the start in bytes per second, 0 during the first second.
func (s ProgressSnapshot) Throughput() uint64 {
	secs := uint64(s.Elapsed / time.Second)
	if secs == 0 {
		return 0
	}
	return s.Downloaded / secs
}

// ETA estimates the remaining time; 0 means unknown.
func (s ProgressSnapshot) ETA() time.Duration {
	speed := s.Throughput()
	if speed == 0 || s.Downloaded >= s.Total {
		return 0
	}
	remaining := s.Total - s.Downloaded
	return time.Duration(remaining/speed) * time.Second
}

// Percent returns downloaded*100/total, 0 when the total is unknown, capped at 100.
func (s ProgressSnapshot) Percent() uint64 {
	if s.Total == 0 {
		return 0
	}
	pct := s.Downloaded * 100 / s.Total
	if pct > 100 {
		return 100
	}
	return pct
}

var _ ProgressSink = (*ProgressTracker)(nil)
