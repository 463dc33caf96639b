package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trading.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ExplicitPathWinsOverEnvPointer(t *testing.T) {
	explicit := writeConfig(t, `
paths:
  marketdata_data_root: /data/market
  trading_artifacts_root: /data/artifacts
`)
	other := writeConfig(t, `
paths:
  marketdata_data_root: /elsewhere
  trading_artifacts_root: /elsewhere
`)
	t.Setenv(EnvConfigFile, other)

	cfg, err := Load(LoadOptions{Path: explicit})
	require.NoError(t, err)
	assert.Equal(t, "/data/market", cfg.Paths.MarketdataDataRoot)
	assert.Equal(t, explicit, cfg.Source)
}

func TestLoad_EnvFieldsWhenNoFile(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv(EnvDataRoot, "/env/market")
	t.Setenv(EnvArtifactsRoot, "/env/artifacts")
	t.Setenv(EnvStreamURL, "http://127.0.0.1:8100")
	t.Setenv(EnvConsumerOnly, "yes")
	t.Setenv(EnvAutoEnsureBars, "on")

	_, err := Load(LoadOptions{Path: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err) // explicit path that does not exist is an error

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/env/market", cfg.Paths.MarketdataDataRoot)
	assert.Equal(t, "/env/artifacts", cfg.Paths.TradingArtifactsRoot)
	assert.Equal(t, "http://127.0.0.1:8100", cfg.Services.MarketdataStreamURL)
	assert.True(t, bool(cfg.Runtime.PipelineConsumerOnly))
	assert.True(t, cfg.AutoEnsureBars())
	assert.Equal(t, "env", cfg.Source)
}

func TestLoad_LegacyArtifactsAlias(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv(EnvDataRoot, "/env/market")
	t.Setenv(EnvArtifactsRoot, "")
	t.Setenv(EnvArtifactsRootLegacy, "/legacy/artifacts")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/legacy/artifacts", cfg.Paths.TradingArtifactsRoot)
}

func TestLoad_StrictFailsOnMissingPaths(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv(EnvDataRoot, "")
	t.Setenv(EnvArtifactsRoot, "")
	t.Setenv(EnvArtifactsRootLegacy, "")

	_, err := Load(LoadOptions{Strict: true})
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Missing, "paths.marketdata_data_root")
	assert.Contains(t, cfgErr.Missing, "paths.trading_artifacts_root")
}

func TestLoad_RejectsRelativePaths(t *testing.T) {
	path := writeConfig(t, `
paths:
  marketdata_data_root: relative/market
  trading_artifacts_root: /ok
`)
	_, err := Load(LoadOptions{Path: path})
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "must be absolute")
}

func TestFlexBool_YamlSpellings(t *testing.T) {
	path := writeConfig(t, `
paths:
  marketdata_data_root: /data/market
  trading_artifacts_root: /data/artifacts
runtime:
  pipeline_consumer_only: "YES"
  pipeline_auto_ensure_bars: "1"
`)
	cfg, err := Load(LoadOptions{Path: path})
	require.NoError(t, err)
	assert.True(t, bool(cfg.Runtime.PipelineConsumerOnly))
	assert.True(t, bool(cfg.Runtime.PipelineAutoEnsureBars))
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"1", "true", "YES", "y", "On"} {
		v, ok := ParseBool(s)
		assert.True(t, ok, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"0", "false", "no", "N", "off", ""} {
		v, ok := ParseBool(s)
		assert.True(t, ok, s)
		assert.False(t, v, s)
	}
	_, ok := ParseBool("maybe")
	assert.False(t, ok)
}

func TestCache_InitGetReset(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv(EnvDataRoot, "/env/market")
	t.Setenv(EnvArtifactsRoot, "/env/artifacts")
	Reset()
	t.Cleanup(Reset)

	first, err := Get()
	require.NoError(t, err)

	// Env changes are invisible while the cache holds.
	t.Setenv(EnvDataRoot, "/env/changed")
	second, err := Get()
	require.NoError(t, err)
	assert.Same(t, first, second)

	Reset()
	third, err := Get()
	require.NoError(t, err)
	assert.Equal(t, "/env/changed", third.Paths.MarketdataDataRoot)
}

func TestConsumerOnly_HardDefault(t *testing.T) {
	t.Setenv(EnvAllowLegacyBackfill, "")
	cfg := &Config{}
	cfg.Runtime.PipelineConsumerOnly = false
	// Without the legacy escape hatch the core stays consumer-only.
	assert.True(t, cfg.ConsumerOnly())
}

func TestStreamTimeout(t *testing.T) {
	t.Setenv(EnvStreamTimeoutSec, "")
	assert.Equal(t, float64(180), StreamTimeout().Seconds())

	t.Setenv(EnvStreamTimeoutSec, "15")
	assert.Equal(t, float64(15), StreamTimeout().Seconds())
}
