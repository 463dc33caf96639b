package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/CyberForge275/traderunner-sub002/internal/config"
	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/execution"
	"github.com/CyberForge275/traderunner-sub002/internal/history"
	"github.com/CyberForge275/traderunner-sub002/internal/intent"
	"github.com/CyberForge275/traderunner-sub002/internal/producer"
	"github.com/CyberForge275/traderunner-sub002/internal/runlife"
	"github.com/CyberForge275/traderunner-sub002/internal/strategy"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

type runFlags struct {
	runID   string
	runName string
	outDir  string

	barsPath        string
	historyDB       string
	strategyID      string
	strategyVersion string
	profileDir      string
	params          []string

	symbol       string
	tf           string
	requestedEnd string
	validTo      string
	validFrom    string
	lookbackDays int
	sessionMode  string

	validFromPolicy     string
	orderValidityPolicy string

	compoundEnabled     bool
	compoundEquityBasis string
	initialCash         float64
	feesBps             float64
	slippageBps         float64

	sizingMode string
	fixedQty   float64
	posPct     float64
	riskPct    float64
	maxPosPct  float64
	minQty     float64
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one headless backtest run",
		Long: `Execute one headless backtest run: snapshot bars, enforce gates,
generate signals, simulate fills, size positions, and write the full
artifact set under the run directory. The precise outcome is always
readable from run_result.json regardless of the exit code.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.runID, "run-id", "", "run identifier (default: generated)")
	fl.StringVar(&f.runName, "run-name", "", "human-readable run label")
	fl.StringVar(&f.outDir, "out-dir", "", "artifacts root (default: from config)")
	fl.StringVar(&f.barsPath, "bars-path", "", "explicit bars snapshot (bypasses the fetcher, not the gates)")
	fl.StringVar(&f.historyDB, "history-db", "", "runtime history database; gates the run on cache coverage")
	fl.StringVar(&f.strategyID, "strategy-id", "", "registered strategy id")
	fl.StringVar(&f.strategyVersion, "strategy-version", "1.0.0", "strategy contract version")
	fl.StringVar(&f.profileDir, "profile-dir", "", "strategy profile directory")
	fl.StringArrayVar(&f.params, "param", nil, "strategy parameter override key=value (repeatable)")
	fl.StringVar(&f.symbol, "symbol", "", "instrument symbol")
	fl.StringVar(&f.tf, "timeframe", "M5", "bar timeframe (M1|M5|M15|H1|D1)")
	fl.StringVar(&f.requestedEnd, "requested-end", "", "window end, RFC-3339 or YYYY-MM-DD")
	fl.StringVar(&f.validTo, "valid-to", "", "alias for --requested-end")
	fl.StringVar(&f.validFrom, "valid-from", "", "window start, alternative to --lookback-days")
	fl.IntVar(&f.lookbackDays, "lookback-days", 0, "window length in calendar days")
	fl.StringVar(&f.sessionMode, "session-mode", "rth", "session mode (rth|raw)")
	fl.StringVar(&f.validFromPolicy, "valid-from-policy", string(intent.ValidFromSignalTs), "order valid-from policy (signal_ts|next_bar)")
	fl.StringVar(&f.orderValidityPolicy, "order-validity-policy", string(intent.ValiditySessionEnd), "order validity policy (session_end|fixed_minutes|one_bar)")
	fl.BoolVar(&f.compoundEnabled, "compound-enabled", false, "size each day from settled cash")
	fl.StringVar(&f.compoundEquityBasis, "compound-equity-basis", execution.CompoundBasisCashOnly, "compounding basis (only cash_only)")
	fl.Float64Var(&f.initialCash, "initial-cash", 10000, "starting cash")
	fl.Float64Var(&f.feesBps, "fees-bps", 0, "per-leg fees in basis points")
	fl.Float64Var(&f.slippageBps, "slippage-bps", 0, "per-leg slippage in basis points")
	fl.StringVar(&f.sizingMode, "sizing-mode", string(execution.SizeFixed), "sizing mode (fixed|pct_equity|risk_based)")
	fl.Float64Var(&f.fixedQty, "fixed-qty", 1, "quantity for fixed sizing")
	fl.Float64Var(&f.posPct, "pos-pct", 0, "percent of equity for pct_equity sizing")
	fl.Float64Var(&f.riskPct, "risk-pct", 0, "percent of equity at risk for risk_based sizing")
	fl.Float64Var(&f.maxPosPct, "max-pos-pct", 0, "position cap as percent of equity")
	fl.Float64Var(&f.minQty, "min-qty", 0, "minimum quantity (default: one tick)")

	cmd.MarkFlagRequired("strategy-id")
	cmd.MarkFlagRequired("symbol")
	return cmd
}

func runPipeline(cmd *cobra.Command, f *runFlags) error {
	cfg, err := config.Get()
	if err != nil {
		return err
	}

	tf, err := timeframe.Parse(f.tf)
	if err != nil {
		return err
	}
	requestedEnd, err := parseInstant(firstNonEmpty(f.requestedEnd, f.validTo))
	if err != nil {
		return fmt.Errorf("--requested-end: %w", err)
	}
	lookback := f.lookbackDays
	if f.validFrom != "" {
		from, err := parseInstant(f.validFrom)
		if err != nil {
			return fmt.Errorf("--valid-from: %w", err)
		}
		lookback = int(requestedEnd.Sub(from).Hours() / 24)
	}
	if lookback <= 0 {
		return fmt.Errorf("window empty: pass --lookback-days or --valid-from before --requested-end")
	}
	if f.compoundEnabled && f.compoundEquityBasis != execution.CompoundBasisCashOnly {
		return fmt.Errorf("--compound-equity-basis %q unsupported (only %q)", f.compoundEquityBasis, execution.CompoundBasisCashOnly)
	}

	runID := f.runID
	if runID == "" {
		runID = fmt.Sprintf("%s-%s-%s", strings.ToLower(f.symbol), time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	}
	outDir := firstNonEmpty(f.outDir, cfg.Paths.TradingArtifactsRoot)
	if outDir == "" {
		return fmt.Errorf("no artifacts root: pass --out-dir or configure paths.trading_artifacts_root")
	}

	params := strategy.Params{}
	for _, kv := range f.params {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--param %q: want key=value", kv)
		}
		params[k] = v
	}

	req := runlife.Request{
		RunID:           runID,
		RunName:         f.runName,
		ArtifactsRoot:   outDir,
		DataRoot:        cfg.Paths.MarketdataDataRoot,
		BarsPath:        f.barsPath,
		StrategyID:      f.strategyID,
		StrategyVersion: f.strategyVersion,
		ProfileDir:      f.profileDir,
		Params:          params,
		Symbol:          f.symbol,
		Timeframe:       tf,
		RequestedEnd:    requestedEnd,
		LookbackDays:    lookback,
		SessionMode:     timeframe.SessionMode(f.sessionMode),
		ValidFromPolicy: intent.ValidFromPolicy(f.validFromPolicy),
		OrderValidityPolicy: intent.OrderValidityPolicy(f.orderValidityPolicy),
		Exec: execution.Config{
			InitialCash:         f.initialCash,
			FeesBps:             f.feesBps,
			SlippageBps:         f.slippageBps,
			CompoundEnabled:     f.compoundEnabled,
			CompoundEquityBasis: f.compoundEquityBasis,
			Sizing: execution.SizingConfig{
				Mode:      execution.SizingMode(f.sizingMode),
				FixedQty:  f.fixedQty,
				PosPct:    f.posPct,
				RiskPct:   f.riskPct,
				MaxPosPct: f.maxPosPct,
				MinQty:    f.minQty,
			},
		},
		AutoEnsureBars: bool(cfg.Runtime.PipelineAutoEnsureBars),
		CommitHash:     commit,
	}
	if req.AutoEnsureBars && cfg.Services.MarketdataStreamURL != "" {
		req.Backfiller = producer.New(cfg.Services.MarketdataStreamURL, config.StreamTimeout())
	}
	if f.historyDB != "" {
		store, err := history.Open(f.historyDB, cfg.Paths.MarketdataDataRoot)
		if err != nil {
			return err
		}
		defer store.Close()
		var provider history.BackfillProvider
		if cfg.Services.MarketdataStreamURL != "" {
			provider = history.NewParquetBackfill(cfg.Paths.MarketdataDataRoot,
				producer.New(cfg.Services.MarketdataStreamURL, config.StreamTimeout()))
		}
		requiredStart := timeframe.DayStartUTC(requestedEnd.AddDate(0, 0, -lookback))
		symbol := strings.ToUpper(f.symbol)
		autoBackfill := bool(cfg.Runtime.PipelineAutoEnsureBars)
		req.EnsureHistory = func(ctx context.Context) (*history.EnsureReport, error) {
			return history.EnsureHistory(ctx, store, symbol, tf.String(),
				requiredStart, requestedEnd, autoBackfill, provider)
		}
	}

	result, runCtx, err := runlife.NewRunner().Execute(cmd.Context(), req)
	if err != nil {
		return err
	}

	log.Info().Str("run_id", result.RunID).Str("status", string(result.Status)).
		Str("run_dir", runCtx.RunDir).Msg("run terminated")
	switch result.Status {
	case domain.StatusSuccess:
		return nil
	case domain.StatusFailedPrecondition:
		return fmt.Errorf("run %s failed precondition: %s", result.RunID, result.Reason)
	default:
		return fmt.Errorf("run %s errored: %s", result.RunID, result.ErrorID)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseInstant accepts RFC-3339 or a bare date, interpreted as the end of
// that UTC day for window arithmetic.
func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing value")
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d.UTC().Add(24*time.Hour - time.Second), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q (want RFC-3339 or YYYY-MM-DD)", s)
}
