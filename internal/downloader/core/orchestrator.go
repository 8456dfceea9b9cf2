package core

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	apperrors "mirrordl/internal/errors"
)

// Logger is the subset of logger.Logger the engine writes to.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
}

// ErrorLog receives free-text failure messages; implementations must not block for long.
type ErrorLog interface {
	LogError(message string)
}

type nopErrorLog struct{}

func (nopErrorLog) LogError(string) {}

// Observer is notified as entries move through the orchestrator. Callbacks run
// on the orchestrator goroutine and must return quickly.
type Observer interface {
	EntryStarted(index, total int, entry Entry)
	EntryTransferring(entry Entry, mirror int, size uint64, sizeKnown bool)
	EntryFinished(index, total int, entry Entry, outcome FileOutcome)
}

// NoopObserver ignores every notification.
type NoopObserver struct{}

func (NoopObserver) EntryStarted(int, int, Entry)               {}
func (NoopObserver) EntryTransferring(Entry, int, uint64, bool) {}
func (NoopObserver) EntryFinished(int, int, Entry, FileOutcome) {}

// Orchestrator drives every manifest entry through pre-check, mirror
// resolution, retried transfer and verification, one entry at a time.
type Orchestrator struct {
	cfg      *DownloadConfig
	logger   Logger
	client   HTTPClient
	fs       FileSystem
	tracker  *ProgressTracker
	cancel   *CancelSignal
	errorLog ErrorLog
	observer Observer

	resolver *MirrorResolver
	executor *TransferExecutor

	// counted holds entry paths whose size Prescan already added to the tracker total.
	counted map[string]struct{}
}

// Option customises Orchestrator construction.
type Option func(*Orchestrator)

// WithHTTPClient overrides the HTTP client used for probes and transfers.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *Orchestrator) {
		o.client = client
	}
}

// WithFileSystem overrides the filesystem implementation.
func WithFileSystem(fs FileSystem) Option {
	return func(o *Orchestrator) {
		o.fs = fs
	}
}

// WithTracker shares an externally created tracker, typically one a reporter also reads.
func WithTracker(tracker *ProgressTracker) Option {
	return func(o *Orchestrator) {
		o.tracker = tracker
	}
}

// WithCancelSignal shares the signal flipped by the interrupt handler.
func WithCancelSignal(cancel *CancelSignal) Option {
	return func(o *Orchestrator) {
		o.cancel = cancel
	}
}

// WithErrorLog sets the sink for failure messages.
func WithErrorLog(log ErrorLog) Option {
	return func(o *Orchestrator) {
		o.errorLog = log
	}
}

// WithObserver registers per-entry callbacks.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

// NewOrchestrator constructs an Orchestrator using the provided configuration, logger and options.
func NewOrchestrator(cfg *DownloadConfig, log Logger, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "download configuration must not be nil", nil).
			WithModule("downloader.core").
			WithOperation("NewOrchestrator")
	}
	if log == nil {
		return nil, apperrors.SystemError(apperrors.CodeSystemGeneric, "logger must not be nil", nil).
			WithModule("downloader.core").
			WithOperation("NewOrchestrator")
	}

	copyCfg := *cfg
	copyCfg.applyDefaults()

	o := &Orchestrator{
		cfg:    &copyCfg,
		logger: log,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.client == nil {
		o.client = defaultHTTPClient(o.cfg.ProbeTimeout)
	}
	if o.fs == nil {
		o.fs = OSFileSystem{}
	}
	if o.tracker == nil {
		o.tracker = NewProgressTracker()
	}
	if o.cancel == nil {
		o.cancel = NewCancelSignal()
	}
	if o.errorLog == nil {
		o.errorLog = nopErrorLog{}
	}
	if o.observer == nil {
		o.observer = NoopObserver{}
	}

	o.resolver = NewMirrorResolver(o.client, o.cfg, o.cancel)
	o.executor = NewTransferExecutor(o.client, o.fs, o.cfg, o.cancel)
	return o, nil
}

// Tracker exposes the progress counters this orchestrator writes to.
func (o *Orchestrator) Tracker() *ProgressTracker {
	return o.tracker
}

// CancelSignal exposes the signal observed by this orchestrator.
func (o *Orchestrator) CancelSignal() *CancelSignal {
	return o.cancel
}

// EntryResult pairs a manifest entry with what happened to it.
type EntryResult struct {
	Entry    Entry
	Outcome  FileOutcome
	Duration time.Duration
}

// Summary aggregates a run.
type Summary struct {
	Root    string
	Results []EntryResult

	Succeeded    int
	AlreadyValid int
	Downloaded   int
	Failed       int
	Skipped      int

	Interrupted bool
	Elapsed     time.Duration
}

// Total is the number of manifest entries in the run.
func (s *Summary) Total() int {
	return len(s.Results)
}

// Complete reports whether every entry ended up valid on disk.
func (s *Summary) Complete() bool {
	return s.Succeeded == len(s.Results)
}

func (s *Summary) add(result EntryResult) {
	s.Results = append(s.Results, result)
	switch result.Outcome.Kind {
	case FileAlreadyValid:
		s.Succeeded++
		s.AlreadyValid++
	case FileDownloaded:
		s.Succeeded++
		s.Downloaded++
	case FileFailed:
		s.Failed++
	case FileSkipped:
		s.Skipped++
	}
}

// Run processes entries strictly in order. Only an empty manifest or mirror
// set is returned as an error; per-entry problems end up in the Summary.
// Once cancellation is observed the remaining entries are marked skipped
// without any work.
func (o *Orchestrator) Run(ctx context.Context, root string, entries []Entry, mirrors MirrorSet) (*Summary, error) {
	if len(entries) == 0 {
		return nil, apperrors.ConfigError(apperrors.CodeManifestEmpty, "manifest contains no entries", nil).
			WithModule("downloader.core").
			WithOperation("Run")
	}
	if len(mirrors) == 0 {
		return nil, apperrors.ConfigError(apperrors.CodeMirrorsEmpty, "no mirrors configured", nil).
			WithModule("downloader.core").
			WithOperation("Run")
	}

	start := time.Now()
	summary := &Summary{Root: root}

	for i, entry := range entries {
		if summary.Interrupted || o.cancel.Cancelled() {
			summary.Interrupted = true
			summary.add(EntryResult{Entry: entry, Outcome: skipped()})
			continue
		}

		o.observer.EntryStarted(i, len(entries), entry)
		entryStart := time.Now()
		outcome := o.Process(ctx, root, mirrors, entry)
		o.observer.EntryFinished(i, len(entries), entry, outcome)

		if outcome.Kind == FileSkipped {
			summary.Interrupted = true
		}
		summary.add(EntryResult{Entry: entry, Outcome: outcome, Duration: time.Since(entryStart)})
	}

	summary.Elapsed = time.Since(start)
	return summary, nil
}

// entryState carries what is learned about one entry while walking the mirrors.
type entryState struct {
	entry      Entry
	destPath   string
	prechecked bool
	counted    bool
	touched    bool
}

// Process runs the per-entry workflow and never returns an error: every
// failure is logged and folded into the FileOutcome.
func (o *Orchestrator) Process(ctx context.Context, root string, mirrors MirrorSet, entry Entry) FileOutcome {
	if o.cancel.Cancelled() {
		return skipped()
	}

	st := &entryState{
		entry:    entry,
		destPath: filepath.Join(root, filepath.FromSlash(entry.Path)),
		counted:  o.precounted(entry.Path),
	}

	if outcome, done := o.preCheck(st); done {
		return outcome
	}

	if err := o.fs.MkdirAll(filepath.Dir(st.destPath), 0o755); err != nil {
		o.logError("Directory error for %s: %v", entry.Path, err)
		return failed(fmt.Sprintf("directory error: %v", err), -1)
	}

	for i := range mirrors {
		if o.cancel.Cancelled() {
			return o.interrupted(st)
		}

		url := mirrors.URL(i, entry.Path)
		probe, err := o.resolver.Probe(ctx, url)
		if stdErrors.Is(err, ErrInterrupted) {
			return o.interrupted(st)
		}
		if err != nil {
			o.logError("CDN %d failed for %s: %s", i+1, entry.Path, probeCause(probe, err))
			continue
		}

		if !st.entry.HasSize && probe.SizeKnown {
			st.entry.Size, st.entry.HasSize = probe.Size, true
		}
		if outcome, done := o.preCheck(st); done {
			return outcome
		}

		outcome, verified := o.transfer(ctx, st, i, url)
		if verified {
			return outcome
		}
		if outcome.Kind == FileSkipped {
			return o.interrupted(st)
		}
	}

	o.logError("All CDNs failed for %s", entry.Path)
	if st.touched {
		o.discard(st.destPath)
	}
	return failed(ReasonAllMirrorsFailed, -1)
}

// preCheck reports an already valid file once both a digest and a size are known.
func (o *Orchestrator) preCheck(st *entryState) (FileOutcome, bool) {
	if st.prechecked || st.entry.Digest == "" || !st.entry.HasSize {
		return FileOutcome{}, false
	}
	st.prechecked = true

	if !Verify(o.fs, st.destPath, st.entry.Digest, st.entry.ExpectedSize()) {
		return FileOutcome{}, false
	}

	o.logger.Debug("File is valid, skipping download: %s", st.entry.Path)
	o.tracker.FileCompleted()
	return alreadyValid(), true
}

// transfer runs the retried stream against one mirror and verifies the result.
// verified is true when the entry reached a final state on this mirror; a
// false value with a zero outcome means "try the next mirror".
func (o *Orchestrator) transfer(ctx context.Context, st *entryState, mirror int, url string) (outcome FileOutcome, verified bool) {
	if !st.counted && st.entry.HasSize {
		o.tracker.AddTotal(st.entry.Size)
		st.counted = true
	}

	o.observer.EntryTransferring(st.entry, mirror, st.entry.Size, st.entry.HasSize)
	st.touched = true

	result, attempts := RunWithRetry(o.cfg.MaxAttempts, func(n int) TransferOutcome {
		if n > 1 {
			o.logger.Info("Retrying %s (attempt %d/%d)", st.entry.Name(), n, o.cfg.MaxAttempts)
		}
		attempt := o.executor.Stream(ctx, url, st.destPath, o.tracker)
		o.reconcileTotal(st, attempt)
		return attempt
	}, st.destPath, o.fs, o.cancel, o.logger)

	if result.Interrupted() {
		return skipped(), false
	}
	if !result.Succeeded() {
		o.logError("Failed after %d attempts for %s via CDN %d: %s", attempts, st.entry.Path, mirror+1, result.Cause())
		return FileOutcome{}, false
	}

	if o.cancel.Cancelled() {
		return skipped(), false
	}

	switch check := Inspect(o.fs, st.destPath, st.entry.Digest, st.entry.ExpectedSize()); check {
	case IntegrityOK:
		o.tracker.FileCompleted()
		return downloaded(mirror), true
	case IntegrityDigestMismatch:
		actual := "unknown"
		if algo, ok := AlgorithmForDigest(st.entry.Digest); ok {
			if digest, err := FileDigest(o.fs, st.destPath, algo); err == nil {
				actual = digest
			}
		}
		o.logError("Checksum failed for %s: expected %s, got %s", st.entry.Path, st.entry.Digest, actual)
		o.discard(st.destPath)
		return failed(ReasonChecksumMismatch, mirror), true
	case IntegritySizeMismatch:
		o.logError("Size check failed for %s: expected %d bytes, got %d", st.entry.Path, st.entry.Size, result.Bytes)
		o.discard(st.destPath)
		return failed(ReasonSizeMismatch, mirror), true
	default:
		o.logError("Verification failed for %s: %s", st.entry.Path, check)
		o.discard(st.destPath)
		return failed("verification failed: "+check.String(), mirror), true
	}
}

// reconcileTotal grows the tracker total by every streamed byte the counted
// size does not cover, so Downloaded never passes Total across retries.
func (o *Orchestrator) reconcileTotal(st *entryState, attempt TransferOutcome) {
	switch {
	case !st.counted:
		o.tracker.AddTotal(attempt.Bytes)
	case attempt.Succeeded():
		if attempt.Bytes > st.entry.Size {
			o.tracker.AddTotal(attempt.Bytes - st.entry.Size)
		}
	case !attempt.Interrupted():
		o.tracker.AddTotal(attempt.Bytes)
	}
}

func (o *Orchestrator) interrupted(st *entryState) FileOutcome {
	if st.touched {
		o.discard(st.destPath)
	}
	return skipped()
}

func (o *Orchestrator) discard(path string) {
	if err := removeQuietly(o.fs, path); err != nil {
		o.logger.Warn("Failed to remove %s: %v", path, err)
	}
}

func (o *Orchestrator) logError(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	o.logger.Warn("%s", message)
	o.errorLog.LogError(message)
}

func probeCause(probe ProbeResult, err error) string {
	if probe.Status != 0 {
		return fmt.Sprintf("HTTP %d", probe.Status)
	}
	return strings.TrimSpace(apperrors.Cause(err))
}

// defaultHTTPClient bounds the wait for response headers so a silent mirror
// cannot hold a transfer forever while transfer_timeout is unset.
func defaultHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: headerTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}

	return &http.Client{
		Transport: transport,
	}
}
