// Package config resolves the runtime configuration record: filesystem
// roots, service URLs, and pipeline flags. The record is loaded once per
// process and cached; tests reset the cache explicitly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

// Environment variable names. TRADING_CONFIG points at a config file; the
// field variables apply when no file is found or a file leaves a field
// empty.
const (
	EnvConfigFile           = "TRADING_CONFIG"
	EnvDataRoot             = "MARKETDATA_DATA_ROOT"
	EnvArtifactsRoot        = "TRADING_ARTIFACTS_ROOT"
	EnvArtifactsRootLegacy  = "BACKTEST_ARTIFACTS_ROOT"
	EnvStreamURL            = "MARKETDATA_STREAM_URL"
	EnvStreamTimeoutSec     = "MARKETDATA_STREAM_TIMEOUT_SEC"
	EnvAutoEnsureBars       = "PIPELINE_AUTO_ENSURE_BARS"
	EnvConsumerOnly         = "PIPELINE_CONSUMER_ONLY"
	EnvOffline              = "EODHD_OFFLINE"
	EnvAllowLegacyBackfill  = "ALLOW_LEGACY_HTTP_BACKFILL"
	EnvRequireGoldenData    = "REQUIRE_GOLDEN_DATA"
	EnvCoverageSkipD1       = "COVERAGE_SKIP_D1"
	defaultStreamTimeoutSec = 180
)

// wellKnownPaths are probed in order when neither an explicit path nor
// TRADING_CONFIG resolves a file.
func wellKnownPaths() []string {
	paths := []string{
		"trading.yaml",
		filepath.Join("config", "trading.yaml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "traderunner", "trading.yaml"))
	}
	return append(paths, filepath.Join("/etc", "traderunner", "trading.yaml"))
}

// FlexBool accepts 1/true/yes/y/on (and their negations) case-insensitively
// in YAML scalars as well as native booleans.
type FlexBool bool

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *FlexBool) UnmarshalYAML(node *yaml.Node) error {
	var native bool
	if err := node.Decode(&native); err == nil {
		*b = FlexBool(native)
		return nil
	}
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("boolean flag: %w", err)
	}
	v, ok := ParseBool(raw)
	if !ok {
		return fmt.Errorf("boolean flag: unrecognized value %q", raw)
	}
	*b = FlexBool(v)
	return nil
}

// ParseBool interprets the accepted truthy/falsy spellings. The second
// return is false when the string is not a recognized boolean.
func ParseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off", "":
		return false, true
	default:
		return false, false
	}
}

// BoolEnv reads an environment flag with the ParseBool spellings.
// Unset and unrecognized values are false.
func BoolEnv(name string) bool {
	v, ok := ParseBool(os.Getenv(name))
	return ok && v
}

// PathsConfig locates the two filesystem roots the pipeline touches.
type PathsConfig struct {
	MarketdataDataRoot   string `yaml:"marketdata_data_root" json:"marketdata_data_root"`
	TradingArtifactsRoot string `yaml:"trading_artifacts_root" json:"trading_artifacts_root"`
}

// ServicesConfig holds external collaborator endpoints.
type ServicesConfig struct {
	MarketdataStreamURL string `yaml:"marketdata_stream_url" json:"marketdata_stream_url"`
}

// RuntimeConfig holds pipeline behavior flags.
type RuntimeConfig struct {
	PipelineConsumerOnly   FlexBool `yaml:"pipeline_consumer_only" json:"pipeline_consumer_only"`
	PipelineAutoEnsureBars FlexBool `yaml:"pipeline_auto_ensure_bars" json:"pipeline_auto_ensure_bars"`
}

// Config is the immutable runtime configuration record.
type Config struct {
	Paths    PathsConfig    `yaml:"paths" json:"paths"`
	Services ServicesConfig `yaml:"services" json:"services"`
	Runtime  RuntimeConfig  `yaml:"runtime" json:"runtime"`

	// Source records where the config was resolved from, for logging.
	Source string `yaml:"-" json:"-"`
}

// LoadOptions controls config resolution.
type LoadOptions struct {
	// Path is an explicit config file; it outranks every other source.
	Path string
	// Strict fails when a required path is missing after resolution.
	Strict bool
}

// Load resolves a fresh configuration record without touching the cache.
func Load(opts LoadOptions) (*Config, error) {
	cfg := &Config{Source: "env"}

	path := opts.Path
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path == "" {
		for _, candidate := range wellKnownPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &domain.ConfigError{Reason: fmt.Sprintf("read %s: %v", path, err)}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &domain.ConfigError{Reason: fmt.Sprintf("parse %s: %v", path, err)}
		}
		cfg.Source = path
	}

	applyEnvFallbacks(cfg)

	if err := cfg.validate(opts.Strict); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvFallbacks fills fields the file left empty. When no file was
// found this is the whole configuration.
func applyEnvFallbacks(cfg *Config) {
	if cfg.Paths.MarketdataDataRoot == "" {
		cfg.Paths.MarketdataDataRoot = os.Getenv(EnvDataRoot)
	}
	if cfg.Paths.TradingArtifactsRoot == "" {
		cfg.Paths.TradingArtifactsRoot = os.Getenv(EnvArtifactsRoot)
	}
	if cfg.Paths.TradingArtifactsRoot == "" {
		cfg.Paths.TradingArtifactsRoot = os.Getenv(EnvArtifactsRootLegacy)
	}
	if cfg.Services.MarketdataStreamURL == "" {
		cfg.Services.MarketdataStreamURL = os.Getenv(EnvStreamURL)
	}
	if v := os.Getenv(EnvConsumerOnly); v != "" {
		if b, ok := ParseBool(v); ok {
			cfg.Runtime.PipelineConsumerOnly = FlexBool(b)
		}
	}
	if v := os.Getenv(EnvAutoEnsureBars); v != "" {
		if b, ok := ParseBool(v); ok {
			cfg.Runtime.PipelineAutoEnsureBars = FlexBool(b)
		}
	}
}

func (c *Config) validate(strict bool) error {
	var missing []string
	if c.Paths.MarketdataDataRoot == "" {
		missing = append(missing, "paths.marketdata_data_root")
	}
	if c.Paths.TradingArtifactsRoot == "" {
		missing = append(missing, "paths.trading_artifacts_root")
	}
	if strict && len(missing) > 0 {
		return &domain.ConfigError{Missing: missing}
	}
	for name, p := range map[string]string{
		"paths.marketdata_data_root":   c.Paths.MarketdataDataRoot,
		"paths.trading_artifacts_root": c.Paths.TradingArtifactsRoot,
	} {
		if p != "" && !filepath.IsAbs(p) {
			return &domain.ConfigError{Reason: fmt.Sprintf("%s must be absolute, got %q", name, p)}
		}
	}
	return nil
}

// ConsumerOnly reports whether network fetches are forbidden. The core is
// consumer-only unless the config explicitly opts out AND the legacy
// escape hatch is set; in practice this always returns true.
func (c *Config) ConsumerOnly() bool {
	if BoolEnv(EnvAllowLegacyBackfill) {
		return bool(c.Runtime.PipelineConsumerOnly)
	}
	return true
}

// AutoEnsureBars reports whether the producer ensure call runs before the
// pipeline.
func (c *Config) AutoEnsureBars() bool { return bool(c.Runtime.PipelineAutoEnsureBars) }

// StreamTimeout returns the producer/stream HTTP timeout.
func StreamTimeout() time.Duration {
	if v := os.Getenv(EnvStreamTimeoutSec); v != "" {
		var sec int
		if _, err := fmt.Sscanf(v, "%d", &sec); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
	}
	return defaultStreamTimeoutSec * time.Second
}

var (
	cacheMu sync.Mutex
	cached  *Config
)

// Init loads and caches the process-wide configuration.
func Init(opts LoadOptions) (*Config, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cfg, err := Load(opts)
	if err != nil {
		return nil, err
	}
	cached = cfg
	return cfg, nil
}

// Get returns the cached configuration, loading it lazily with default
// options on first use.
func Get() (*Config, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cached != nil {
		return cached, nil
	}
	cfg, err := Load(LoadOptions{})
	if err != nil {
		return nil, err
	}
	cached = cfg
	return cfg, nil
}

// Reset clears the cached configuration. Tests only.
func Reset() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cached = nil
}
