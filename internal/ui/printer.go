package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	runewidth "github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"mirrordl/internal/downloader/core"
)

// Status markers prefixed to console lines.
const (
	MarkInfo     = "[*]"
	MarkSuccess  = "[+]"
	MarkWarning  = "[!]"
	MarkError    = "[-]"
	MarkQuestion = "[?]"
	MarkProgress = "[→]"
	MarkMatched  = "[↓]"
)

// Printer renders status lines, per-entry progress and the final tally.
// It is safe for concurrent use; the reporter and the orchestrator share it.
type Printer struct {
	mu           sync.Mutex
	out          io.Writer
	colorEnabled bool
	titleEnabled bool

	info     *color.Color
	success  *color.Color
	warn     *color.Color
	error    *color.Color
	question *color.Color
	progress *color.Color
	matched  *color.Color
	name     *color.Color
	banner   *color.Color

	current int
	total   int
}

// NewPrinter constructs a Printer. Colour and terminal titles are enabled
// only when out is a terminal and NO_COLOR is unset.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	tty := isTerminal(out)
	enabled := tty && os.Getenv("NO_COLOR") == ""

	p := &Printer{
		out:          out,
		colorEnabled: enabled,
		titleEnabled: tty,
		info:         color.New(color.FgCyan),
		success:      color.New(color.FgGreen),
		warn:         color.New(color.FgYellow),
		error:        color.New(color.FgRed),
		question:     color.New(color.FgBlue),
		progress:     color.New(color.FgMagenta),
		matched:      color.New(color.FgBlue),
		name:         color.New(color.FgHiMagenta),
		banner:       color.New(color.BgBlue, color.FgWhite, color.Bold),
	}

	for _, c := range p.colors() {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Writer returns the destination the printer writes to.
func (p *Printer) Writer() io.Writer {
	return p.out
}

func (p *Printer) colors() []*color.Color {
	return []*color.Color{p.info, p.success, p.warn, p.error, p.question, p.progress, p.matched, p.name, p.banner}
}

// Info prints an informational line.
func (p *Printer) Info(format string, args ...interface{}) {
	p.line(p.info, MarkInfo, format, args...)
}

// Success prints a success line.
func (p *Printer) Success(format string, args ...interface{}) {
	p.line(p.success, MarkSuccess, format, args...)
}

// Warning prints a warning line.
func (p *Printer) Warning(format string, args ...interface{}) {
	p.line(p.warn, MarkWarning, format, args...)
}

// Error prints an error line.
func (p *Printer) Error(format string, args ...interface{}) {
	p.line(p.error, MarkError, format, args...)
}

func (p *Printer) line(c *color.Color, mark, format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s %s\n", c.Sprint(mark), fmt.Sprintf(format, args...))
}

// SetTitle replaces the terminal window title. It is a no-op off a terminal.
func (p *Printer) SetTitle(title string) {
	if !p.titleEnabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\033]0;%s\007", title)
}

// EntryStarted implements core.Observer.
func (p *Printer) EntryStarted(index, total int, entry core.Entry) {
	p.mu.Lock()
	p.current, p.total = index+1, total
	p.mu.Unlock()
}

// EntryTransferring implements core.Observer.
func (p *Printer) EntryTransferring(entry core.Entry, mirror int, size uint64, sizeKnown bool) {
	detail := ""
	if sizeKnown {
		detail = " (" + humanize.Bytes(size) + ")"
	}
	p.line(p.progress, MarkProgress, "%s Downloading: %s%s", p.counter(), p.name.Sprint(entry.Path), detail)
}

// EntryFinished implements core.Observer.
func (p *Printer) EntryFinished(index, total int, entry core.Entry, outcome core.FileOutcome) {
	counter := p.counter()
	switch outcome.Kind {
	case core.FileAlreadyValid:
		p.line(p.matched, MarkMatched, "%s File is valid: %s", counter, p.name.Sprint(entry.Path))
	case core.FileDownloaded:
		p.line(p.success, MarkSuccess, "%s Downloaded: %s", counter, p.success.Sprint(entry.Path))
	case core.FileFailed:
		p.line(p.error, MarkError, "%s Failed: %s (%s)", counter, p.error.Sprint(entry.Path), outcome.Reason)
	case core.FileSkipped:
		p.line(p.warn, MarkWarning, "%s Skipped: %s", counter, entry.Path)
	}
}

func (p *Printer) counter() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	width := len(fmt.Sprint(p.total))
	return fmt.Sprintf("[%*d/%d]", width, p.current, p.total)
}

// Tally is what the closing summary reports.
type Tally struct {
	Succeeded   int
	Failed      int
	Skipped     int
	Total       int
	Interrupted bool
	Root        string
	Downloaded  uint64
	Elapsed     time.Duration
}

// TallyFromSummary adapts an orchestrator summary.
func TallyFromSummary(s *core.Summary, downloaded uint64) Tally {
	return Tally{
		Succeeded:   s.Succeeded,
		Failed:      s.Failed,
		Skipped:     s.Skipped,
		Total:       s.Total(),
		Interrupted: s.Interrupted,
		Root:        s.Root,
		Downloaded:  downloaded,
		Elapsed:     s.Elapsed,
	}
}

// Heading returns the banner text for t.
func (t Tally) Heading() string {
	switch {
	case t.Interrupted:
		return "DOWNLOAD INTERRUPTED"
	case t.Succeeded == t.Total:
		return "DOWNLOAD COMPLETE"
	default:
		return "PARTIAL DOWNLOAD"
	}
}

// PrintTally renders the closing summary with aligned labels.
func (p *Printer) PrintTally(t Tally) {
	type row struct {
		color *color.Color
		mark  string
		label string
		value string
	}

	rows := []row{
		{p.success, MarkSuccess, "Successfully downloaded:", p.success.Sprint(t.Succeeded)},
		{p.error, MarkError, "Failed downloads:", p.error.Sprint(t.Failed)},
	}
	if t.Skipped > 0 {
		rows = append(rows, row{p.warn, MarkWarning, "Skipped:", p.warn.Sprint(t.Skipped)})
	}
	rows = append(rows,
		row{p.info, MarkInfo, "Transferred:", humanize.Bytes(t.Downloaded)},
		row{p.info, MarkInfo, "Elapsed:", FormatClock(t.Elapsed)},
		row{p.info, MarkInfo, "Files saved to:", p.info.Sprint(t.Root)},
	)

	width := 0
	for _, r := range rows {
		if w := runewidth.StringWidth(r.label); w > width {
			width = w
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\n%s\n\n", p.banner.Sprint(" "+t.Heading()+" "))
	for _, r := range rows {
		fmt.Fprintf(p.out, "%s %s %s\n", r.color.Sprint(r.mark), runewidth.FillRight(r.label, width), r.value)
	}
}

// FormatClock renders d as HH:MM:SS.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// Separator returns a line of n copies of char.
func Separator(char string, n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(char, n)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var _ core.Observer = (*Printer)(nil)
