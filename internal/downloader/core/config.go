package core

import (
	"embed"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxAttempts  = 3
	defaultProbeTimeout = 10 * time.Second
	defaultUserAgent    = "mirrordl/1.0 (Go downloader)"
)

// DownloadConfig describes how the orchestrator talks to mirrors.
type DownloadConfig struct {
	// MaxAttempts is the number of immediate transfer attempts per mirror.
	MaxAttempts int `yaml:"max_attempts"`

	// ProbeTimeout bounds each metadata-only request.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// TransferTimeout bounds a whole GET including the body; 0 disables it.
	TransferTimeout time.Duration `yaml:"transfer_timeout"`

	UserAgent string `yaml:"user_agent"`
}

//go:embed base-config.yaml
var embeddedBaseConfig embed.FS

// BaseConfig returns the embedded base download configuration.
func BaseConfig() (*DownloadConfig, error) {
	data, err := embeddedBaseConfig.ReadFile("base-config.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read embedded base config")
	}
	return decodeConfig(data)
}

// MergeConfigs merges multiple configurations together, later entries overriding earlier ones.
// Zero values never override.
func MergeConfigs(cfgs ...*DownloadConfig) (*DownloadConfig, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("no configurations provided")
	}

	var result DownloadConfig
	for _, cfg := range cfgs {
		if cfg == nil {
			continue
		}
		if cfg.MaxAttempts > 0 {
			result.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.ProbeTimeout > 0 {
			result.ProbeTimeout = cfg.ProbeTimeout
		}
		if cfg.TransferTimeout > 0 {
			result.TransferTimeout = cfg.TransferTimeout
		}
		if trimmed := strings.TrimSpace(cfg.UserAgent); trimmed != "" {
			result.UserAgent = trimmed
		}
	}

	result.applyDefaults()
	return &result, nil
}

func (c *DownloadConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.TransferTimeout < 0 {
		c.TransferTimeout = 0
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = defaultUserAgent
	}
}

func decodeConfig(data []byte) (*DownloadConfig, error) {
	var cfg DownloadConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse download configuration")
	}
	return &cfg, nil
}
