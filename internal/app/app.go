package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"mirrordl/internal/data"
	"mirrordl/internal/downloader/core"
	apperrors "mirrordl/internal/errors"
	"mirrordl/internal/errors/logging"
	"mirrordl/internal/logger"
	"mirrordl/internal/manifest"
	"mirrordl/internal/system"
	"mirrordl/internal/ui"
)

const (
	appName = "mirrordl"

	prescanReportEvery = 10
)

// Prompter is the interactive surface the app needs.
type Prompter interface {
	Select(label string, options []string) (string, error)
	Directory(defaultDir string) (string, error)
}

// App wires configuration, manifest resolution, the orchestrator and its
// collaborators into a single run.
type App struct {
	cfg    *Config
	engine *core.DownloadConfig
	log    logger.Logger

	printer  *ui.Printer
	console  *ui.Console
	prompter Prompter
	cancel   *core.CancelSignal
	client   core.HTTPClient
	source   manifest.Source

	errorSink  logger.ErrorSink
	history    data.Repository
	closers    []io.Closer
	checkSpace func(root string, required uint64, log logger.Logger) error
}

// Option customises App construction.
type Option func(*App)

// WithPrompter overrides the terminal prompter.
func WithPrompter(p Prompter) Option {
	return func(a *App) {
		a.prompter = p
	}
}

// WithPrinter overrides the status printer.
func WithPrinter(p *ui.Printer) Option {
	return func(a *App) {
		a.printer = p
	}
}

// WithCancelSignal shares the signal flipped by the interrupt handler.
func WithCancelSignal(cancel *core.CancelSignal) Option {
	return func(a *App) {
		a.cancel = cancel
	}
}

// WithHTTPClient overrides the client used for manifests and transfers.
func WithHTTPClient(client core.HTTPClient) Option {
	return func(a *App) {
		a.client = client
	}
}

// WithSource replaces the configured manifest source.
func WithSource(source manifest.Source) Option {
	return func(a *App) {
		a.source = source
	}
}

// WithErrorSink replaces the error log file.
func WithErrorSink(sink logger.ErrorSink) Option {
	return func(a *App) {
		a.errorSink = sink
	}
}

// WithHistory replaces the history store.
func WithHistory(repo data.Repository) Option {
	return func(a *App) {
		a.history = repo
	}
}

// New validates cfg and builds an App. Call Close when done.
func New(cfg *Config, log logger.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, configError("New", "configuration must not be nil", nil)
	}
	if log == nil {
		return nil, apperrors.SystemError(apperrors.CodeSystemGeneric, "logger must not be nil", nil).
			WithModule("app").
			WithOperation("New")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		engine:     engine,
		log:        log,
		checkSpace: system.CheckSpace,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.printer == nil {
		a.printer = ui.NewPrinter(os.Stdout)
	}
	a.console = ui.NewConsole(log, a.printer, a.printer.Writer())
	if a.cancel == nil {
		a.cancel = core.NewCancelSignal()
	}
	if cfg.NonInteractive {
		a.prompter = nil
	} else if a.prompter == nil {
		a.prompter = ui.NewPrompter()
	}

	if a.errorSink == nil {
		if cfg.LogFile == "" {
			a.errorSink = logger.NopErrorLog{}
		} else {
			errorLog, err := logger.OpenErrorLog(cfg.LogFile)
			if err != nil {
				return nil, apperrors.SystemError(apperrors.CodeSystemGeneric, "failed to open error log", err).
					WithModule("app").
					WithOperation("New").
					WithField("path", cfg.LogFile)
			}
			a.errorSink = errorLog
			a.closers = append(a.closers, errorLog)
		}
	}

	return a, nil
}

// CancelSignal exposes the signal observed by the run.
func (a *App) CancelSignal() *core.CancelSignal {
	return a.cancel
}

// Close releases files and databases opened by the app.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// Result describes a finished run.
type Result struct {
	RunID   string
	Root    string
	Summary *core.Summary
	Tally   ui.Tally
}

// Run executes one complete download: destination, manifest, size
// calculation and space check, the transfer loop with its reporter, the tally
// and the history record.
// Errors are returned only for problems that prevent the transfer loop from
// starting; per-entry failures are in the Result.
func (a *App) Run(ctx context.Context) (*Result, error) {
	runID := data.NewRunID()
	ctx = logger.ContextWithTrace(ctx, logger.TraceContext{RunID: runID})
	started := time.Now()

	stopWatch := a.cancel.NotifyOnContext(ctx)
	defer stopWatch()

	tracker := core.NewProgressTracker()
	var (
		root         string
		m            *manifest.Manifest
		orchestrator *core.Orchestrator
		scan         core.SizeScan
	)

	steps := []Step{
		{
			Name:        "Preparing destination",
			Operation:   "app.prepareRoot",
			Category:    apperrors.ErrCategorySystem,
			Interactive: a.cfg.Dest == "" && a.prompter != nil,
			Fn: func(ctx context.Context) error {
				var err error
				root, err = a.resolveRoot()
				return err
			},
		},
		{
			Name:        "Fetching manifest",
			Operation:   "app.loadManifest",
			Category:    apperrors.ErrCategoryConfig,
			Interactive: a.cfg.ManifestFile == "" && a.prompter != nil,
			Fn: func(ctx context.Context) error {
				var err error
				m, err = a.loadManifest(ctx)
				return err
			},
		},
		{
			Name:      "Opening history",
			Operation: "app.openHistory",
			Category:  apperrors.ErrCategoryDatabase,
			Fn:        a.openHistory,
		},
		{
			Name:      "Calculating download size",
			Operation: "app.prescan",
			Category:  apperrors.ErrCategoryConfig,
			Fn: func(ctx context.Context) error {
				var err error
				orchestrator, err = a.newOrchestrator(ctx, tracker)
				if err != nil {
					return err
				}
				scan = a.prescan(ctx, orchestrator, root, m)
				return nil
			},
		},
	}

	a.log.InfoContext(ctx, "Starting run", logger.String("source", a.cfg.SourceDescription()))
	if err := NewPipeline(a.console, a.log, steps, a.stepFailed).Execute(ctx); err != nil {
		return nil, err
	}

	a.warnOnLowSpace(ctx, root, scan.Required)

	summary, downloaded, err := a.download(ctx, root, orchestrator, tracker, scan.Entries, m.Mirrors)
	if err != nil {
		appErr := wrapStepError(Step{Name: "Download", Operation: "app.download", Category: apperrors.ErrCategoryConfig}, err)
		logging.Error(ctx, a.log, "Download could not start", appErr)
		return nil, appErr
	}

	tally := ui.TallyFromSummary(summary, downloaded)
	a.printer.PrintTally(tally)

	a.recordHistory(ctx, data.Run{
		ID:           runID,
		StartedAt:    started,
		FinishedAt:   time.Now(),
		Root:         root,
		Source:       a.cfg.SourceDescription(),
		Variant:      m.Variant,
		Total:        summary.Total(),
		Succeeded:    summary.Succeeded,
		AlreadyValid: summary.AlreadyValid,
		Downloaded:   summary.Downloaded,
		Failed:       summary.Failed,
		Skipped:      summary.Skipped,
		Bytes:        downloaded,
		Interrupted:  summary.Interrupted,
	}, summary)

	a.log.InfoContext(ctx, "Run finished",
		logger.Int("succeeded", summary.Succeeded),
		logger.Int("failed", summary.Failed),
		logger.Int("skipped", summary.Skipped),
		logger.Uint64("bytes", downloaded),
	)

	return &Result{RunID: runID, Root: root, Summary: summary, Tally: tally}, nil
}

func (a *App) resolveRoot() (string, error) {
	dest := a.cfg.Dest
	if dest == "" && a.prompter != nil {
		cwd, err := os.Getwd()
		if err != nil {
			return "", apperrors.SystemError(apperrors.CodeDestinationUnusable, "failed to determine working directory", err).
				WithModule("app")
		}
		chosen, err := a.prompter.Directory(cwd)
		if err != nil {
			return "", configError("resolveRoot", "destination selection aborted", err)
		}
		dest = chosen
	}

	root, err := system.PrepareRoot(dest)
	if err != nil {
		return "", err
	}
	a.printer.Info("Files will be saved to: %s", root)
	return root, nil
}

func (a *App) manifestSource() manifest.Source {
	if a.source != nil {
		return a.source
	}
	if a.cfg.ManifestFile != "" {
		return manifest.NewFileSource(a.cfg.ManifestFile, a.cfg.Mirrors...)
	}

	opts := []manifest.RemoteOption{
		manifest.WithVariant(a.cfg.Variant),
		manifest.WithCatalog(a.cfg.CatalogURL, a.cfg.Channel),
		manifest.WithUserAgent(a.engine.UserAgent),
		manifest.WithLogger(a.log),
	}
	if a.client != nil {
		opts = append(opts, manifest.WithClient(a.client))
	}
	if a.cfg.FetchTimeout > 0 {
		opts = append(opts, manifest.WithFetchTimeout(a.cfg.FetchTimeout))
	}
	if a.prompter != nil {
		opts = append(opts, manifest.WithChooser(a.prompter.Select))
	}
	return manifest.NewRemoteSource(a.cfg.IndexURL, opts...)
}

func (a *App) loadManifest(ctx context.Context) (*manifest.Manifest, error) {
	m, err := a.manifestSource().Load(ctx)
	if err != nil {
		return nil, err
	}
	if a.cfg.ManifestFile == "" && len(a.cfg.Mirrors) > 0 {
		m.Mirrors = append(m.Mirrors, core.NewMirrorSet(a.cfg.Mirrors...)...)
	}

	if m.Variant != "" {
		a.printer.Info("Using %s config", m.Variant)
	}
	a.printer.Info("Manifest lists %d files across %d mirrors", len(m.Entries), len(m.Mirrors))
	return m, nil
}

func (a *App) openHistory(ctx context.Context) error {
	if a.history != nil || a.cfg.HistoryDB == "" {
		return nil
	}

	repo, err := data.Open(ctx, a.cfg.HistoryDB)
	if err != nil {
		// History is optional; the run continues without it.
		if appErr, ok := apperrors.As(err); ok {
			logging.Warn(ctx, a.log, "Run history disabled", appErr)
		}
		return nil
	}
	a.history = repo
	a.closers = append(a.closers, repo)
	return nil
}

func (a *App) newOrchestrator(ctx context.Context, tracker *core.ProgressTracker) (*core.Orchestrator, error) {
	opts := []core.Option{
		core.WithTracker(tracker),
		core.WithCancelSignal(a.cancel),
		core.WithErrorLog(a.errorSink),
		core.WithObserver(&runObserver{ctx: ctx, log: a.log, printer: a.printer}),
	}
	if a.client != nil {
		opts = append(opts, core.WithHTTPClient(a.client))
	}
	return core.NewOrchestrator(a.engine, a.log, opts...)
}

// prescan fills in sizes the manifest left out and seeds the progress total
// with the bytes still to fetch.
func (a *App) prescan(ctx context.Context, orchestrator *core.Orchestrator, root string, m *manifest.Manifest) core.SizeScan {
	a.printer.Info("Processing files...")
	scan := orchestrator.Prescan(ctx, root, m.Entries, m.Mirrors, func(done, total int) {
		if done%prescanReportEvery == 0 && done < total {
			a.printer.Info("Processed %d/%d files...", done, total)
		}
	})

	if scan.Unknown > 0 {
		a.printer.Warning("Could not determine size for %d files", scan.Unknown)
	}
	if scan.Present > 0 {
		a.printer.Info("%d files already present at their expected size", scan.Present)
	}
	if scan.Unknown > 0 {
		a.printer.Info("Total download size: at least %s", humanize.Bytes(scan.Required))
	} else {
		a.printer.Info("Total download size: %s", humanize.Bytes(scan.Required))
	}

	declared, complete := m.TotalSize()
	a.log.InfoContext(ctx, "Download size calculated",
		logger.Uint64("declared", declared),
		logger.Bool("declared_complete", complete),
		logger.Uint64("required", scan.Required),
		logger.Int("present", scan.Present),
		logger.Int("unknown", scan.Unknown),
	)
	return scan
}

// warnOnLowSpace warns when the bytes still to fetch exceed the free space.
// Files already present at their expected size are not counted. It never aborts the run.
func (a *App) warnOnLowSpace(ctx context.Context, root string, required uint64) {
	err := a.checkSpace(root, required, a.log)
	switch {
	case err == nil:
	case apperrors.HasCode(err, apperrors.CodeInsufficientSpace):
		appErr, _ := apperrors.As(err)
		a.printer.Warning("Not enough disk space for the remaining files: %v needed, %v available",
			appErr.Metadata["required"], appErr.Metadata["available"])
		logging.Warn(ctx, a.log, "Disk space check failed", appErr)
	default:
		a.log.WarnContext(ctx, "Disk space check skipped", logger.Error(err))
	}
}

func (a *App) download(ctx context.Context, root string, orchestrator *core.Orchestrator, tracker *core.ProgressTracker, entries []core.Entry, mirrors core.MirrorSet) (*core.Summary, uint64, error) {
	reporter := ui.NewReporter(appName, tracker, len(entries), a.cfg.ReportInterval, a.printer, a.log)

	g, gctx := errgroup.WithContext(ctx)
	reportCtx, stopReporter := context.WithCancel(gctx)
	defer stopReporter()

	var summary *core.Summary
	g.Go(func() error {
		return reporter.Run(reportCtx)
	})
	g.Go(func() error {
		defer stopReporter()
		s, err := orchestrator.Run(gctx, root, entries, mirrors)
		summary = s
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return summary, tracker.Snapshot().Downloaded, nil
}

func (a *App) recordHistory(ctx context.Context, run data.Run, summary *core.Summary) {
	if a.history == nil {
		return
	}

	if err := a.history.RecordRun(ctx, run); err != nil {
		a.warnHistory(ctx, err)
		return
	}

	records := make([]data.EntryRecord, 0, len(summary.Results))
	for _, result := range summary.Results {
		records = append(records, data.EntryRecord{
			RunID:    run.ID,
			Path:     result.Entry.Path,
			Outcome:  result.Outcome.Kind.String(),
			Reason:   result.Outcome.Reason,
			Mirror:   result.Outcome.Mirror,
			Duration: result.Duration,
		})
	}
	if err := a.history.RecordEntries(ctx, run.ID, records); err != nil {
		a.warnHistory(ctx, err)
	}
}

func (a *App) warnHistory(ctx context.Context, err error) {
	if appErr, ok := apperrors.As(err); ok {
		logging.Warn(ctx, a.log, "Failed to record run history", appErr)
		return
	}
	a.log.WarnContext(ctx, "Failed to record run history", logger.Error(err))
}

func (a *App) stepFailed(step Step, err error) error {
	appErr := wrapStepError(step, err)
	logging.Error(context.Background(), a.log, step.Name+" failed", appErr)
	a.errorSink.LogError(fmt.Sprintf("%s: %s", step.Name, apperrors.Cause(appErr)))
	a.printer.Error("%s: %s", step.Name, apperrors.Cause(appErr))
	return appErr
}

// ExitCode maps a run result to the process exit status: 130 when
// interrupted, 1 on a fatal error or any failed entry, 0 otherwise.
func ExitCode(result *Result, err error) int {
	switch {
	case err != nil:
		return 1
	case result == nil || result.Summary == nil:
		return 1
	case result.Summary.Interrupted:
		return 130
	case result.Summary.Failed > 0:
		return 1
	default:
		return 0
	}
}

// runObserver forwards entry events to the printer and the structured log.
type runObserver struct {
	ctx     context.Context
	log     logger.Logger
	printer *ui.Printer
}

func (o *runObserver) EntryStarted(index, total int, entry core.Entry) {
	o.printer.EntryStarted(index, total, entry)
}

func (o *runObserver) EntryTransferring(entry core.Entry, mirror int, size uint64, sizeKnown bool) {
	o.printer.EntryTransferring(entry, mirror, size, sizeKnown)
	o.log.DebugContext(logger.WithEntry(o.ctx, entry.Path), "Transfer started", logger.Int("mirror", mirror+1))
}

func (o *runObserver) EntryFinished(index, total int, entry core.Entry, outcome core.FileOutcome) {
	o.printer.EntryFinished(index, total, entry, outcome)

	fields := []logger.Field{logger.String("outcome", outcome.Kind.String())}
	if outcome.Reason != "" {
		fields = append(fields, logger.String("reason", outcome.Reason))
	}
	o.log.DebugContext(logger.WithEntry(o.ctx, entry.Path), "Entry finished", fields...)
}

// ListHistory prints the most recent runs recorded in cfg.HistoryDB.
func ListHistory(ctx context.Context, cfg *Config, limit int, printer *ui.Printer) error {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return withHistory(ctx, cfg, "ListHistory", func(repo data.Repository) error {
		runs, err := repo.RecentRuns(ctx, limit)
		if err != nil {
			return err
		}
		printerOrStdout(printer).PrintHistory(runs)
		return nil
	})
}

// ShowRun prints one recorded run, addressed by a full or abbreviated id, with its entries.
func ShowRun(ctx context.Context, cfg *Config, runID string, printer *ui.Printer) error {
	return withHistory(ctx, cfg, "ShowRun", func(repo data.Repository) error {
		run, err := repo.FindRun(ctx, runID)
		if err != nil {
			return err
		}
		entries, err := repo.RunEntries(ctx, run.ID)
		if err != nil {
			return err
		}
		printerOrStdout(printer).PrintRun(run, entries)
		return nil
	})
}

func withHistory(ctx context.Context, cfg *Config, operation string, fn func(data.Repository) error) error {
	if cfg == nil || cfg.HistoryDB == "" {
		return configError(operation, "history_db is not configured", nil)
	}

	repo, err := data.Open(ctx, cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(repo)
}

func printerOrStdout(printer *ui.Printer) *ui.Printer {
	if printer == nil {
		return ui.NewPrinter(os.Stdout)
	}
	return printer
}
