package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mirrordl/internal/app"
	"mirrordl/internal/downloader/core"
	apperrors "mirrordl/internal/errors"
	"mirrordl/internal/logger"
)

type rootFlags struct {
	configPath   string
	envFile      string
	dest         string
	manifest     string
	indexURL     string
	catalogURL   string
	channel      string
	variant      string
	mirrors      []string
	logFile      string
	historyDB    string
	logFormat    string
	fetchTimeout time.Duration
	yes          bool
	verbose      bool
}

var (
	flags    rootFlags
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "mirrordl",
	Short: "Download a file manifest from a list of mirrors",
	Long: "Fetches every file of a manifest into a destination directory, trying mirrors in order,\n" +
		"verifying sizes and digests, and skipping files that are already valid.",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDownload,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&flags.envFile, "env-file", ".env", "KEY=VALUE file loaded before the environment is read")
	pf.StringVar(&flags.historyDB, "history-db", "", "SQLite database recording past runs")
	pf.StringVar(&flags.logFormat, "log-format", "", "log record format: text or json")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	f := rootCmd.Flags()
	f.StringVarP(&flags.dest, "dest", "d", "", "destination directory (prompted for when omitted)")
	f.StringVarP(&flags.manifest, "manifest", "m", "", "local manifest file (YAML or JSON)")
	f.StringVar(&flags.indexURL, "index-url", "", "launcher configuration URL")
	f.StringVar(&flags.catalogURL, "catalog-url", "", "catalog URL resolving channels to launcher configurations")
	f.StringVar(&flags.channel, "channel", "", "catalog channel to use")
	f.StringVar(&flags.variant, "variant", "", "launcher variant: default or predownload")
	f.StringSliceVar(&flags.mirrors, "mirror", nil, "additional mirror base URL (repeatable)")
	f.StringVar(&flags.logFile, "log-file", "", "append-only error log file")
	f.DurationVar(&flags.fetchTimeout, "fetch-timeout", 0, "timeout for each catalog or index request")
	f.BoolVarP(&flags.yes, "yes", "y", false, "never prompt; use defaults for every choice")
}

func execute() int {
	if err := rootCmd.Execute(); err != nil {
		log := logger.NewColoredLogger()
		log.Error("%s", apperrors.Cause(err))
		if apperrors.IsConfig(err) {
			log.Info("Run 'mirrordl --help' for the available flags and settings")
		}
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}

// loadConfig applies file, env file, environment and flags in that order.
func loadConfig(cmd *cobra.Command) (*app.Config, error) {
	cfg, err := app.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if err := app.LoadDotEnv(flags.envFile); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	overrides := []struct {
		name   string
		target *string
		value  string
	}{
		{"dest", &cfg.Dest, flags.dest},
		{"manifest", &cfg.ManifestFile, flags.manifest},
		{"index-url", &cfg.IndexURL, flags.indexURL},
		{"catalog-url", &cfg.CatalogURL, flags.catalogURL},
		{"channel", &cfg.Channel, flags.channel},
		{"variant", &cfg.Variant, flags.variant},
		{"log-file", &cfg.LogFile, flags.logFile},
		{"history-db", &cfg.HistoryDB, flags.historyDB},
		{"log-format", &cfg.LogFormat, flags.logFormat},
	}
	for _, o := range overrides {
		if changed(o.name) {
			*o.target = o.value
		}
	}
	if changed("mirror") {
		cfg.Mirrors = append(cfg.Mirrors, flags.mirrors...)
	}
	if changed("fetch-timeout") {
		cfg.FetchTimeout = flags.fetchTimeout
	}
	if changed("yes") {
		cfg.NonInteractive = flags.yes
	}
	if flags.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func runDownload(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := cfg.NewLogger()

	cancel := core.NewCancelSignal()
	application, err := app.New(cfg, log, app.WithCancelSignal(cancel))
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()
	go watchSignals(ctx, log, cancel, stop)

	result, err := application.Run(ctx)
	exitCode = app.ExitCode(result, err)
	return err
}

// watchSignals sets the cancel flag on the first signal so the current
// transfer stops at the next chunk; a second signal aborts outright.
func watchSignals(ctx context.Context, log logger.Logger, cancel *core.CancelSignal, abort context.CancelFunc) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		log.Warn("Received exit signal, finishing the current chunk...")
		cancel.Cancel()
	case <-ctx.Done():
		return
	}

	select {
	case <-sigChan:
		log.Warn("Received second exit signal, aborting")
		abort()
	case <-ctx.Done():
	}
}
