package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"mirrordl/internal/data"
)

const historyIDWidth = 8

// PrintHistory renders recent runs as an aligned table, newest first.
func (p *Printer) PrintHistory(runs []data.Run) {
	if len(runs) == 0 {
		p.Info("No recorded runs")
		return
	}

	header := []string{"RUN", "STARTED", "RESULT", "FILES", "SIZE", "DESTINATION"}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			humanize.Time(run.StartedAt),
			runStatus(run),
			strconv.Itoa(run.Succeeded) + "/" + strconv.Itoa(run.Total),
			humanize.Bytes(run.Bytes),
			run.Root,
		})
	}

	p.printTable(header, rows)
}

// PrintRun renders one recorded run followed by its per-entry outcomes.
func (p *Printer) PrintRun(run data.Run, entries []data.EntryRecord) {
	p.mu.Lock()
	fmt.Fprintf(p.out, "%s %s  %s\n", MarkInfo, p.name.Sprint(run.ID), runStatus(run))
	fmt.Fprintf(p.out, "    Started:     %s (%s)\n", run.StartedAt.Format(time.DateTime), humanize.Time(run.StartedAt))
	fmt.Fprintf(p.out, "    Duration:    %s\n", FormatClock(run.FinishedAt.Sub(run.StartedAt)))
	fmt.Fprintf(p.out, "    Destination: %s\n", run.Root)
	if run.Source != "" {
		fmt.Fprintf(p.out, "    Source:      %s\n", run.Source)
	}
	if run.Variant != "" {
		fmt.Fprintf(p.out, "    Variant:     %s\n", run.Variant)
	}
	fmt.Fprintf(p.out, "    Transferred: %s\n", humanize.Bytes(run.Bytes))
	p.mu.Unlock()

	if len(entries) == 0 {
		p.Info("No entries recorded for this run")
		return
	}

	header := []string{"PATH", "OUTCOME", "MIRROR", "TIME", "REASON"}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		mirror := "-"
		if entry.Mirror >= 0 {
			mirror = strconv.Itoa(entry.Mirror + 1)
		}
		rows = append(rows, []string{
			entry.Path,
			entry.Outcome,
			mirror,
			entry.Duration.Round(time.Millisecond).String(),
			entry.Reason,
		})
	}
	p.printTable(header, rows)
}

// printTable writes a header, a rule under it and the rows, padded to the widest cell per column.
func (p *Printer) printTable(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	title := formatRow(header, widths)
	fmt.Fprintln(p.out, p.name.Sprint(title))
	fmt.Fprintln(p.out, Separator("-", runewidth.StringWidth(title)))
	for _, row := range rows {
		fmt.Fprintln(p.out, formatRow(row, widths))
	}
}

func formatRow(cells []string, widths []int) string {
	line := ""
	for i, cell := range cells {
		if i == len(cells)-1 {
			line += cell
			break
		}
		line += runewidth.FillRight(cell, widths[i]) + "  "
	}
	return line
}

func runStatus(run data.Run) string {
	switch {
	case run.Interrupted:
		return "interrupted"
	case run.Complete():
		return "complete"
	default:
		return "partial"
	}
}

func shortID(id string) string {
	if len(id) <= historyIDWidth {
		return id
	}
	return id[:historyIDWidth]
}
