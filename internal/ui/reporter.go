package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"mirrordl/internal/downloader/core"
	"mirrordl/internal/logger"
)

const defaultReportInterval = time.Second

// TitleSetter displays a one-line status, typically the terminal title.
type TitleSetter interface {
	SetTitle(title string)
}

// Reporter periodically renders the tracker. It only reads shared state.
type Reporter struct {
	name       string
	tracker    *core.ProgressTracker
	totalFiles int
	interval   time.Duration
	title      TitleSetter
	log        logger.Logger
}

// NewReporter builds a reporter for a run of totalFiles entries.
func NewReporter(name string, tracker *core.ProgressTracker, totalFiles int, interval time.Duration, title TitleSetter, log logger.Logger) *Reporter {
	if interval <= 0 {
		interval = defaultReportInterval
	}
	return &Reporter{
		name:       name,
		tracker:    tracker,
		totalFiles: totalFiles,
		interval:   interval,
		title:      title,
		log:        log,
	}
}

// Run renders on every tick until ctx is done, then renders once more so the
// final state is visible.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.report()
			return nil
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	status := r.Render(r.tracker.Snapshot())
	if r.title != nil {
		r.title.SetTitle(status)
	}
	if r.log != nil {
		r.log.Debug("%s", status)
	}
}

// Render formats a snapshot as
// "<name> - 3/10 files - 12 MB (45%) - Speed: 2.1 MB/s - ETA: 00:01:10".
func (r *Reporter) Render(snap core.ProgressSnapshot) string {
	percent := ""
	if snap.Total > 0 {
		percent = fmt.Sprintf(" (%d%%)", snap.Percent())
	}

	return fmt.Sprintf("%s - %d/%d files - %s%s - Speed: %s/s - ETA: %s",
		r.name,
		snap.Files,
		r.totalFiles,
		humanize.Bytes(snap.Downloaded),
		percent,
		humanize.Bytes(snap.Throughput()),
		FormatClock(snap.ETA()),
	)
}
