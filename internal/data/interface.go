package data

import (
	"context"
	"time"
)

// Run is one recorded invocation of the downloader.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time

	Root    string
	Source  string
	Variant string

	Total        int
	Succeeded    int
	AlreadyValid int
	Downloaded   int
	Failed       int
	Skipped      int
	Bytes        uint64
	Interrupted  bool
}

// Complete reports whether every entry of the run ended up valid.
func (r Run) Complete() bool {
	return r.Total > 0 && r.Succeeded == r.Total
}

// EntryRecord is the outcome of one manifest entry within a run.
type EntryRecord struct {
	RunID    string
	Path     string
	Outcome  string
	Reason   string
	Mirror   int
	Duration time.Duration
}

// Repository describes the persistence contract for run history.
type Repository interface {
	// Bootstrap prepares the backing store (creates the schema).
	Bootstrap(ctx context.Context) error
	RecordRun(ctx context.Context, run Run) error
	RecordEntries(ctx context.Context, runID string, entries []EntryRecord) error
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
	// FindRun returns the single run whose id starts with idPrefix.
	FindRun(ctx context.Context, idPrefix string) (Run, error)
	RunEntries(ctx context.Context, runID string) ([]EntryRecord, error)
	Close() error
}
