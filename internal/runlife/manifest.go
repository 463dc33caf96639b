package runlife

import (
	"time"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/fsio"
	"github.com/CyberForge275/traderunner-sub002/internal/gates"
	"github.com/CyberForge275/traderunner-sub002/internal/history"
)

// RunMeta is written before strategy execution begins. Its presence
// proves the run started even when everything after it burned down.
type RunMeta struct {
	RunID           string         `json:"run_id"`
	RunName         string         `json:"run_name,omitempty"`
	StartedUTC      time.Time      `json:"started_utc"`
	Symbol          string         `json:"symbol"`
	Timeframe       string         `json:"timeframe"`
	StrategyID      string         `json:"strategy_id"`
	StrategyVersion string         `json:"strategy_version"`
	RequestedEnd    time.Time      `json:"requested_end"`
	LookbackDays    int            `json:"lookback_days"`
	Params          map[string]any `json:"params,omitempty"`
}

// ManifestIdentity identifies the run and the code that produced it.
type ManifestIdentity struct {
	RunID      string    `json:"run_id"`
	RunName    string    `json:"run_name,omitempty"`
	CreatedUTC time.Time `json:"created_utc"`
	CommitHash string    `json:"commit_hash,omitempty"`
}

// ManifestStrategy is the strategy coordinate of the backtest atom.
type ManifestStrategy struct {
	Key            string `json:"key"`
	ImplVersion    string `json:"impl_version"`
	ProfileVersion string `json:"profile_version"`
}

// ManifestDataSpec captures what data fed the run and its fingerprints.
type ManifestDataSpec struct {
	Symbol            string    `json:"symbol"`
	Timeframe         string    `json:"timeframe"`
	BaseTfUsed        string    `json:"base_tf_used"`
	RequestedEnd      time.Time `json:"requested_end"`
	LookbackDays      int       `json:"lookback_days"`
	WarmupDays        int       `json:"warmup_days"`
	SessionMode       string    `json:"session_mode"`
	BarsHash          string    `json:"bars_hash,omitempty"`
	SchemaFingerprint string    `json:"schema_fingerprint,omitempty"`
	IntentHash        string    `json:"intent_hash,omitempty"`
	FillsHash         string    `json:"fills_hash,omitempty"`
}

// ManifestGates carries the gate results verbatim.
type ManifestGates struct {
	Coverage *gates.CoverageResult `json:"coverage,omitempty"`
	SLA      *gates.SLAResult      `json:"sla,omitempty"`
	History  *history.EnsureReport `json:"history,omitempty"`
}

// Manifest is the full reproducibility record of one run.
type Manifest struct {
	Identity  ManifestIdentity  `json:"identity"`
	Strategy  ManifestStrategy  `json:"strategy"`
	Params    map[string]any    `json:"params,omitempty"`
	DataSpec  ManifestDataSpec  `json:"data_spec"`
	Gates     ManifestGates     `json:"gates"`
	Result    *domain.RunResult `json:"result,omitempty"`
	Artifacts []string          `json:"artifacts"`
}

// WriteMeta persists run_meta.json.
func WriteMeta(ctx *RunContext, meta *RunMeta) error {
	return fsio.WriteJSONAtomic(ctx.Path(FileRunMeta), meta)
}

// WriteManifest persists run_manifest.json.
func WriteManifest(ctx *RunContext, m *Manifest) error {
	return fsio.WriteJSONAtomic(ctx.Path(FileRunManifest), m)
}

// WriteResult persists run_result.json.
func WriteResult(ctx *RunContext, r *domain.RunResult) error {
	return fsio.WriteJSONAtomic(ctx.Path(FileRunResult), r)
}
