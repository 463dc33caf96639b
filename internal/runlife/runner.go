package runlife

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/bars"
	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/evidence"
	"github.com/CyberForge275/traderunner-sub002/internal/execution"
	"github.com/CyberForge275/traderunner-sub002/internal/fills"
	"github.com/CyberForge275/traderunner-sub002/internal/fsio"
	"github.com/CyberForge275/traderunner-sub002/internal/gates"
	"github.com/CyberForge275/traderunner-sub002/internal/history"
	"github.com/CyberForge275/traderunner-sub002/internal/intent"
	"github.com/CyberForge275/traderunner-sub002/internal/metrics"
	"github.com/CyberForge275/traderunner-sub002/internal/strategy"
	"github.com/CyberForge275/traderunner-sub002/internal/telemetry"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

// ReasonCancelled is the reserved error id for caller cancellation. The
// pipeline honors cancellation only between stages, never mid-hash.
const ReasonCancelled = "CANCELLED"

// Request carries everything one headless run needs. The runner touches
// no process-wide state beyond the strategy registry.
type Request struct {
	RunID   string
	RunName string

	ArtifactsRoot string
	DataRoot      string
	// BarsPath optionally bypasses the fetcher: the file is copied into
	// the run's bars directory and flows through loader, gates, and
	// hashes like any snapshot.
	BarsPath string

	StrategyID      string
	StrategyVersion string
	ProfileDir      string
	Params          strategy.Params

	Symbol       string
	Timeframe    timeframe.Timeframe
	RequestedEnd time.Time
	LookbackDays int
	SessionMode  timeframe.SessionMode

	ValidFromPolicy     intent.ValidFromPolicy
	OrderValidityPolicy intent.OrderValidityPolicy

	Exec execution.Config

	SLALookbackBars int
	AutoEnsureBars  bool
	Backfiller      gates.Backfiller

	// EnsureHistory optionally gates the run on the pre-paper runtime
	// cache. Any state but SUFFICIENT ends the run as a HISTORY_DEGRADED
	// precondition failure; a degraded strategy must emit zero signals.
	EnsureHistory func(ctx context.Context) (*history.EnsureReport, error)

	CommitHash string

	// Registry defaults to the process-wide strategy registry.
	Registry *strategy.Registry
}

func (r *Request) resolve(id string) (strategy.Plugin, error) {
	if r.Registry != nil {
		return r.Registry.Resolve(id)
	}
	return strategy.Resolve(id)
}

// WarmupRequirer is an optional plugin capability: strategies declare how
// many bars their indicators need before producing valid values.
type WarmupRequirer interface {
	RequiredWarmupBars(params strategy.Params) int
}

// Runner executes headless pipeline runs.
type Runner struct{}

// NewRunner returns a Runner.
func NewRunner() *Runner { return &Runner{} }

// Execute runs the full pipeline under the fail-safe artifact guarantees:
// the run directory is created first, run_meta before execution,
// run_result on every termination path, and the manifest finalized last.
// The returned error is non-nil only when the run directory itself could
// not be created; every later failure is expressed in the RunResult.
func (r *Runner) Execute(ctx context.Context, req Request) (*domain.RunResult, *RunContext, error) {
	runCtx, err := NewRunContext(req.ArtifactsRoot, req.RunID, req.RunName)
	if err != nil {
		return nil, nil, err
	}

	tracker := NewStepTracker(runCtx)
	manifest := &Manifest{
		Identity: ManifestIdentity{
			RunID:      req.RunID,
			RunName:    req.RunName,
			CreatedUTC: time.Now().UTC(),
			CommitHash: req.CommitHash,
		},
		Strategy: ManifestStrategy{Key: req.StrategyID, ImplVersion: req.StrategyVersion},
		Params:   req.Params,
		DataSpec: ManifestDataSpec{
			Symbol:       strings.ToUpper(req.Symbol),
			Timeframe:    req.Timeframe.String(),
			BaseTfUsed:   req.Timeframe.String(),
			RequestedEnd: req.RequestedEnd.UTC(),
			LookbackDays: req.LookbackDays,
			SessionMode:  string(req.SessionMode),
		},
	}

	result := r.run(ctx, runCtx, tracker, manifest, req)

	// Terminal writes. A manifest failure must never suppress the result
	// artifact, so the result goes down whatever happens to the manifest.
	manifest.Result = result
	manifest.Artifacts = listArtifacts(runCtx)
	if err := WriteManifest(runCtx, manifest); err != nil {
		log.Error().Err(err).Msg("manifest finalize failed")
	}
	if err := WriteResult(runCtx, result); err != nil {
		log.Error().Err(err).Msg("run_result write failed")
	}
	telemetry.RunsTotal.WithLabelValues(string(result.Status)).Inc()

	// Terminal step event so UI consumers see the run close.
	final := tracker.Begin("finalize")
	if result.Status == domain.StatusError {
		final.Fail(fmt.Errorf("run ended with error_id %s", result.ErrorID))
	} else {
		final.Complete(map[string]any{"status": string(result.Status)})
	}
	return result, runCtx, nil
}

// run executes the stages and converts every failure into a RunResult.
// Panics become ERROR with a stack trace artifact.
func (r *Runner) run(ctx context.Context, runCtx *RunContext, tracker *StepTracker, manifest *Manifest, req Request) (result *domain.RunResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = r.errorResult(runCtx, req.RunID,
				fmt.Errorf("panic: %v", rec), debug.Stack())
		}
	}()

	fail := func(step *Step, err error) *domain.RunResult {
		step.Fail(err)
		return r.errorResult(runCtx, req.RunID, err, debug.Stack())
	}
	cancelled := func() *domain.RunResult {
		return &domain.RunResult{
			RunID:   req.RunID,
			Status:  domain.StatusError,
			ErrorID: ReasonCancelled,
			Details: map[string]any{"error": ctx.Err().Error()},
		}
	}

	// Meta before anything executes.
	step := tracker.Begin("write_run_meta")
	meta := &RunMeta{
		RunID:           req.RunID,
		RunName:         req.RunName,
		StartedUTC:      time.Now().UTC(),
		Symbol:          strings.ToUpper(req.Symbol),
		Timeframe:       req.Timeframe.String(),
		StrategyID:      req.StrategyID,
		StrategyVersion: req.StrategyVersion,
		RequestedEnd:    req.RequestedEnd.UTC(),
		LookbackDays:    req.LookbackDays,
		Params:          req.Params,
	}
	if err := WriteMeta(runCtx, meta); err != nil {
		return fail(step, err)
	}
	if err := WriteManifest(runCtx, manifest); err != nil {
		return fail(step, err)
	}
	step.Complete(nil)

	// Strategy resolution and profile.
	step = tracker.Begin("load_strategy")
	plugin, err := req.resolve(req.StrategyID)
	if err != nil {
		return fail(step, err)
	}
	profile, err := strategy.LoadProfile(req.ProfileDir, req.StrategyID, req.StrategyVersion)
	if err != nil {
		return fail(step, err)
	}
	params := profile.Params(req.Params)
	manifest.Strategy.ImplVersion = req.StrategyVersion
	manifest.Strategy.ProfileVersion = profile.ProfileVersion
	manifest.Params = params
	step.Complete(map[string]any{"profile_version": profile.ProfileVersion})

	// Warmup.
	step = tracker.Begin("compute_warmup")
	warmupBars := 0
	if wr, ok := plugin.(WarmupRequirer); ok {
		warmupBars = wr.RequiredWarmupBars(params)
	}
	warmupDays, err := timeframe.WarmupDays(warmupBars, req.Timeframe.Minutes(), req.SessionMode)
	if err != nil {
		return fail(step, err)
	}
	manifest.DataSpec.WarmupDays = warmupDays
	step.Complete(map[string]any{"warmup_bars": warmupBars, "warmup_days": warmupDays})

	if ctx.Err() != nil {
		return cancelled()
	}

	// Coverage gate. A caller-supplied snapshot cannot be checked against
	// the producer tree it never came from; those runs record the gate as
	// SKIPPED so every run carries a coverage_check.json.
	step = tracker.Begin("coverage_gate")
	var coverage *gates.CoverageResult
	if req.BarsPath != "" {
		coverage = &gates.CoverageResult{
			Status:         gates.CoverageSkipped,
			Symbol:         strings.ToUpper(req.Symbol),
			Timeframe:      req.Timeframe.String(),
			RequestedStart: timeframe.DayStartUTC(req.RequestedEnd.AddDate(0, 0, -req.LookbackDays)),
			RequestedEnd:   req.RequestedEnd.UTC(),
			Message:        "caller-supplied bars snapshot, producer tree not consulted",
		}
		manifest.Gates.Coverage = coverage
		if err := fsio.WriteJSONAtomic(runCtx.Path(FileCoverage), coverage); err != nil {
			return fail(step, err)
		}
		step.Complete(map[string]any{"status": string(coverage.Status)})
	} else {
		coverage = gates.CheckCoverage(ctx, req.DataRoot, gates.CoverageRequest{
			Symbol:       strings.ToUpper(req.Symbol),
			Timeframe:    req.Timeframe,
			RequestedEnd: req.RequestedEnd,
			LookbackDays: req.LookbackDays,
			AutoFetch:    req.AutoEnsureBars,
			Backfiller:   req.Backfiller,
		})
		manifest.Gates.Coverage = coverage
		if err := fsio.WriteJSONAtomic(runCtx.Path(FileCoverage), coverage); err != nil {
			return fail(step, err)
		}
		if !coverage.Sufficient() {
			step.Fail(fmt.Errorf("coverage %s", coverage.Status))
			r.skipRemaining(tracker)
			return &domain.RunResult{
				RunID:  req.RunID,
				Status: domain.StatusFailedPrecondition,
				Reason: domain.ReasonDataCoverageGap,
				Details: map[string]any{
					"coverage_status": string(coverage.Status),
					"gap":             coverage.Gap,
				},
			}
		}
		step.Complete(map[string]any{"status": string(coverage.Status)})
	}

	if ctx.Err() != nil {
		return cancelled()
	}

	// Runtime history gate, for runs feeding the pre-paper path.
	if req.EnsureHistory != nil {
		step = tracker.Begin("ensure_history")
		hist, err := req.EnsureHistory(ctx)
		if err != nil {
			return fail(step, err)
		}
		manifest.Gates.History = hist
		if err := fsio.WriteJSONAtomic(runCtx.Path(FileHistory), hist); err != nil {
			return fail(step, err)
		}
		if hist.State != history.StateSufficient {
			step.Fail(fmt.Errorf("runtime history %s", hist.State))
			r.skipRemaining(tracker)
			return &domain.RunResult{
				RunID:  req.RunID,
				Status: domain.StatusFailedPrecondition,
				Reason: domain.ReasonHistoryDegraded,
				Details: map[string]any{
					"state":  string(hist.State),
					"reason": hist.Reason,
					"gap":    hist.Gap,
				},
			}
		}
		step.Complete(map[string]any{"state": string(hist.State), "rows": hist.CachedRows})
	}

	// Snapshot.
	step = tracker.Begin("snapshot_bars")
	snapshotPath, err := r.materializeSnapshot(req, runCtx, warmupDays)
	if err != nil {
		return fail(step, err)
	}
	frame, barsHash, err := bars.LoadSnapshot(snapshotPath)
	if err != nil {
		return fail(step, err)
	}
	frame.Symbol = strings.ToUpper(req.Symbol)
	frame.Timeframe = req.Timeframe.String()
	manifest.DataSpec.BarsHash = barsHash
	step.Complete(map[string]any{"bars": frame.Len(), "bars_hash": barsHash})

	if ctx.Err() != nil {
		return cancelled()
	}

	// SLA gate.
	step = tracker.Begin("sla_gate")
	requiresConsecutive := false
	if c, ok := plugin.(strategy.ConsecutiveBarsRequirer); ok {
		requiresConsecutive = c.RequiresConsecutiveBars()
	}
	lookbackBars := req.SLALookbackBars
	if lookbackBars <= 0 {
		lookbackBars = defaultSLALookbackBars(req.Timeframe)
	}
	sla := gates.CheckSLA(gates.SLARequest{
		Bars:                    frame,
		StrategyID:              req.StrategyID,
		BaseTimeframe:           req.Timeframe,
		LookbackBars:            lookbackBars,
		RequiresConsecutiveBars: requiresConsecutive,
	})
	manifest.Gates.SLA = sla
	if err := fsio.WriteJSONAtomic(runCtx.Path(FileSLA), sla); err != nil {
		return fail(step, err)
	}
	if !sla.Passed() {
		step.Fail(fmt.Errorf("sla violations: %s", strings.Join(sla.FatalNames(), ", ")))
		r.skipRemaining(tracker)
		return &domain.RunResult{
			RunID:  req.RunID,
			Status: domain.StatusFailedPrecondition,
			Reason: domain.ReasonDataSLAFailed,
			Details: map[string]any{
				"fatal_violations": sla.FatalNames(),
			},
		}
	}
	step.Complete(map[string]any{"violations": len(sla.Violations)})

	if ctx.Err() != nil {
		return cancelled()
	}

	// Signal frame.
	step = tracker.Begin("build_signal_frame")
	signalFrame, fingerprint, err := strategy.BuildSignalFrame(plugin, req.StrategyVersion, frame, params)
	if err != nil {
		return fail(step, err)
	}
	manifest.DataSpec.SchemaFingerprint = fingerprint
	step.Complete(map[string]any{
		"rows": len(signalFrame.Rows), "schema_fingerprint": fingerprint,
	})

	if ctx.Err() != nil {
		return cancelled()
	}

	// Intent.
	step = tracker.Begin("generate_intent")
	intents, err := intent.Generate(signalFrame, intent.Config{
		StrategyID:          req.StrategyID,
		StrategyVersion:     req.StrategyVersion,
		OrderValidityPolicy: req.OrderValidityPolicy,
		ValidFromPolicy:     req.ValidFromPolicy,
		TimeframeMinutes:    req.Timeframe.Minutes(),
	})
	if err != nil {
		return fail(step, err)
	}
	intentHash, err := intent.WriteCSV(runCtx.Path(FileEventsIntent), intents)
	if err != nil {
		return fail(step, err)
	}
	manifest.DataSpec.IntentHash = intentHash
	step.Complete(map[string]any{"intents": intents.Len(), "intent_hash": intentHash})

	if ctx.Err() != nil {
		return cancelled()
	}

	// Fills.
	step = tracker.Begin("generate_fills")
	fillFrame, err := fills.Generate(intents, frame)
	if err != nil {
		return fail(step, err)
	}
	fillsHash, err := fills.WriteCSV(runCtx.Path(FileFills), fillFrame)
	if err != nil {
		return fail(step, err)
	}
	manifest.DataSpec.FillsHash = fillsHash
	step.Complete(map[string]any{"fills": fillFrame.Len(), "fills_hash": fillsHash})

	if ctx.Err() != nil {
		return cancelled()
	}

	// Execution, equity, ledger.
	step = tracker.Begin("execute_and_size")
	trades, err := execution.BuildTrades(intents, fillFrame, frame, req.Exec)
	if err != nil {
		return fail(step, err)
	}
	equity := execution.BuildEquity(trades, req.Exec.InitialCash)
	ledger := execution.BuildLedger(equity)
	if err := execution.WriteTradesCSV(runCtx.Path(FileTrades), trades); err != nil {
		return fail(step, err)
	}
	if err := execution.WriteEquityCSV(runCtx.Path(FileEquityCurve), equity); err != nil {
		return fail(step, err)
	}
	if err := execution.WriteLedgerCSV(runCtx.Path(FileLedger), ledger); err != nil {
		return fail(step, err)
	}
	step.Complete(map[string]any{"trades": len(trades)})

	// Metrics and evidence.
	step = tracker.Begin("compute_metrics")
	stats := metrics.Compute(trades, equity, req.Exec.InitialCash)
	if err := metrics.Write(runCtx.Path(FileMetrics), stats); err != nil {
		return fail(step, err)
	}
	proofs := evidence.Check(trades, frame)
	if err := evidence.WriteCSV(runCtx.Path(FileEvidence), proofs); err != nil {
		return fail(step, err)
	}
	step.Complete(map[string]any{"num_trades": stats.NumTrades})

	return &domain.RunResult{
		RunID:  req.RunID,
		Status: domain.StatusSuccess,
		Details: map[string]any{
			"trades":      len(trades),
			"intent_hash": intentHash,
			"fills_hash":  fillsHash,
			"bars_hash":   barsHash,
		},
	}
}

// materializeSnapshot produces the exec snapshot path for loading: either
// the fetcher's output or a copy of the caller-supplied bars file.
func (r *Runner) materializeSnapshot(req Request, runCtx *RunContext, warmupDays int) (string, error) {
	if req.BarsPath != "" {
		dst := filepath.Join(runCtx.BarsDir(), filepath.Base(req.BarsPath))
		if err := fsio.CopyFileAtomic(req.BarsPath, dst); err != nil {
			return "", &domain.SnapshotError{Path: req.BarsPath, Reason: err.Error()}
		}
		return dst, nil
	}
	fetcher := bars.NewFetcher(req.DataRoot)
	res, err := fetcher.Fetch(bars.FetchRequest{
		Symbol:       req.Symbol,
		Timeframe:    req.Timeframe,
		RequestedEnd: req.RequestedEnd,
		LookbackDays: req.LookbackDays,
		WarmupDays:   warmupDays,
		SessionMode:  req.SessionMode,
		DestDir:      runCtx.BarsDir(),
	})
	if err != nil {
		return "", err
	}
	return res.ExecPath, nil
}

// errorResult converts an unexpected failure into ERROR with a correlated
// stack-trace artifact. The error id links result and stack trace.
func (r *Runner) errorResult(runCtx *RunContext, runID string, cause error, stack []byte) *domain.RunResult {
	errorID := newErrorID()
	body := fmt.Sprintf("error_id: %s\nerror: %v\n\n%s", errorID, cause, stack)
	if err := fsio.WriteFileAtomic(runCtx.Path(FileStacktrace), []byte(body)); err != nil {
		log.Error().Err(err).Msg("stacktrace artifact write failed")
	}
	log.Error().Err(cause).Str("error_id", errorID).Str("run_id", runID).Msg("pipeline error")
	return &domain.RunResult{
		RunID:   runID,
		Status:  domain.StatusError,
		ErrorID: errorID,
		Details: map[string]any{"error": cause.Error()},
	}
}

// skipRemaining records the gate-blocked later phases as skipped.
func (r *Runner) skipRemaining(tracker *StepTracker) {
	for _, name := range []string{"build_signal_frame", "generate_intent", "generate_fills", "execute_and_size", "compute_metrics"} {
		tracker.Skip(name, map[string]any{"reason": "gate failed"})
	}
}

func newErrorID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// defaultSLALookbackBars is roughly five RTH sessions of bars.
func defaultSLALookbackBars(tf timeframe.Timeframe) int {
	perDay, err := timeframe.BarsPerDay(tf.Minutes(), timeframe.SessionRTH)
	if err != nil {
		return 0
	}
	return perDay * 5
}

// listArtifacts indexes the files present under the run directory for the
// manifest, relative paths, sorted by walk order.
func listArtifacts(runCtx *RunContext) []string {
	var out []string
	_ = filepath.Walk(runCtx.RunDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(runCtx.RunDir, path)
		if relErr != nil {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	return out
}
