package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"mirrordl/internal/downloader/core"
	apperrors "mirrordl/internal/errors"
	"mirrordl/internal/logger"
	"mirrordl/internal/manifest"
)

// EnvPrefix namespaces the environment overrides.
const EnvPrefix = "MIRRORDL_"

const defaultHistoryLimit = 10

// Config is the application configuration. Precedence, lowest first: YAML
// file, .env file, process environment, command-line flags.
type Config struct {
	// Dest is the destination root; empty means ask (or the working directory when non-interactive).
	Dest string `yaml:"dest"`

	// Exactly one manifest source is used: ManifestFile, then IndexURL, then CatalogURL.
	ManifestFile string   `yaml:"manifest_file"`
	IndexURL     string   `yaml:"index_url"`
	CatalogURL   string   `yaml:"catalog_url"`
	Channel      string   `yaml:"channel"`
	Variant      string   `yaml:"variant"`
	Mirrors      []string `yaml:"mirrors"`

	LogFile   string `yaml:"log_file"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	HistoryDB string `yaml:"history_db"`

	ReportInterval time.Duration `yaml:"report_interval"`
	NonInteractive bool          `yaml:"non_interactive"`

	// FetchTimeout bounds each catalog or index request; 0 keeps the source default.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	Download core.DownloadConfig `yaml:"download"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LogFile:        logger.DefaultErrorLogPath,
		LogLevel:       "info",
		LogFormat:      "text",
		ReportInterval: time.Second,
	}
}

// LoadConfig reads path over the defaults. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configError("LoadConfig", "failed to read config file", err).WithField("path", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, configError("LoadConfig", "failed to parse config file", err).WithField("path", path)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load env file: %s", path)
		}
	}
	return nil
}

// ApplyEnv overlays MIRRORDL_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(name string) (string, bool) {
		value, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(value), ok && strings.TrimSpace(value) != ""
	}

	textFields := map[string]*string{
		"DEST":        &c.Dest,
		"MANIFEST":    &c.ManifestFile,
		"INDEX_URL":   &c.IndexURL,
		"CATALOG_URL": &c.CatalogURL,
		"CHANNEL":     &c.Channel,
		"VARIANT":     &c.Variant,
		"LOG_FILE":    &c.LogFile,
		"LOG_LEVEL":   &c.LogLevel,
		"LOG_FORMAT":  &c.LogFormat,
		"HISTORY_DB":  &c.HistoryDB,
		"USER_AGENT":  &c.Download.UserAgent,
	}
	for name, target := range textFields {
		if value, ok := get(name); ok {
			*target = value
		}
	}

	if value, ok := get("NON_INTERACTIVE"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return configError("ApplyEnv", "invalid boolean", err).WithField("variable", EnvPrefix+"NON_INTERACTIVE")
		}
		c.NonInteractive = parsed
	}
	durationFields := map[string]*time.Duration{
		"REPORT_INTERVAL": &c.ReportInterval,
		"FETCH_TIMEOUT":   &c.FetchTimeout,
	}
	for name, target := range durationFields {
		if value, ok := get(name); ok {
			parsed, err := time.ParseDuration(value)
			if err != nil {
				return configError("ApplyEnv", "invalid duration", err).WithField("variable", EnvPrefix+name)
			}
			*target = parsed
		}
	}
	if value, ok := get("MAX_ATTEMPTS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return configError("ApplyEnv", "invalid integer", err).WithField("variable", EnvPrefix+"MAX_ATTEMPTS")
		}
		c.Download.MaxAttempts = parsed
	}
	return nil
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ManifestFile) == "" && strings.TrimSpace(c.IndexURL) == "" && strings.TrimSpace(c.CatalogURL) == "" {
		return configError("Validate", "a manifest file, index URL or catalog URL is required", nil)
	}

	switch c.Variant {
	case "", manifest.VariantDefault, manifest.VariantPredownload:
	default:
		return configError("Validate", "variant must be default or predownload", nil).WithField("variant", c.Variant)
	}

	switch c.LogFormat {
	case "", "text", "json":
	default:
		return configError("Validate", "log_format must be text or json", nil).WithField("log_format", c.LogFormat)
	}

	if c.ReportInterval < 0 {
		return configError("Validate", "report_interval must not be negative", nil)
	}
	if c.FetchTimeout < 0 {
		return configError("Validate", "fetch_timeout must not be negative", nil)
	}
	if c.Download.MaxAttempts < 0 {
		return configError("Validate", "download.max_attempts must not be negative", nil)
	}
	return nil
}

// EngineConfig merges the download section over the embedded base configuration.
func (c *Config) EngineConfig() (*core.DownloadConfig, error) {
	base, err := core.BaseConfig()
	if err != nil {
		return nil, configError("EngineConfig", "failed to load base download configuration", err)
	}
	merged, err := core.MergeConfigs(base, &c.Download)
	if err != nil {
		return nil, configError("EngineConfig", "failed to merge download configuration", err)
	}
	return merged, nil
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger(options ...logger.Option) logger.Logger {
	options = append([]logger.Option{logger.WithLevel(logger.ParseLevel(c.LogLevel))}, options...)
	if c.LogFormat == "json" {
		options = append(options, logger.WithJSON())
	}
	return logger.NewColoredLogger(options...)
}

// SourceDescription names the configured manifest source for logs and history.
func (c *Config) SourceDescription() string {
	switch {
	case c.ManifestFile != "":
		return c.ManifestFile
	case c.IndexURL != "":
		return c.IndexURL
	default:
		return c.CatalogURL
	}
}

func configError(operation, message string, err error) *apperrors.AppError {
	return apperrors.ConfigError(apperrors.CodeConfigGeneric, message, err).
		WithModule("app").
		WithOperation(operation)
}
