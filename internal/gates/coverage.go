// Package gates enforces the two run preconditions: metadata-only data
// coverage and bar-level data quality. Gate failures are first-class run
// outcomes, never exceptions.
package gates

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/bars"
	"github.com/CyberForge275/traderunner-sub002/internal/config"
	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

// CoverageStatus is the coverage gate outcome.
type CoverageStatus string

const (
	CoverageSufficient  CoverageStatus = "SUFFICIENT"
	CoverageGapDetected CoverageStatus = "GAP_DETECTED"
	CoverageFetchFailed CoverageStatus = "FETCH_FAILED"
	CoverageSkipped     CoverageStatus = "SKIPPED"
)

// Backfiller is the optional producer hook used when auto_fetch is on.
type Backfiller interface {
	EnsureBars(ctx context.Context, symbol string, tf timeframe.Timeframe, start, end time.Time) error
}

// CoverageRequest describes one coverage check.
type CoverageRequest struct {
	Symbol       string
	Timeframe    timeframe.Timeframe
	RequestedEnd time.Time
	LookbackDays int
	AutoFetch    bool
	Backfiller   Backfiller
}

// CoverageResult is persisted verbatim as coverage_check.json.
type CoverageResult struct {
	Status         CoverageStatus   `json:"status"`
	Symbol         string           `json:"symbol"`
	Timeframe      string           `json:"timeframe"`
	RequestedStart time.Time        `json:"requested_start"`
	RequestedEnd   time.Time        `json:"requested_end"`
	CachedStart    *time.Time       `json:"cached_start,omitempty"`
	CachedEnd      *time.Time       `json:"cached_end,omitempty"`
	Rows           int64            `json:"rows"`
	Gap            *domain.GapRange `json:"gap,omitempty"`
	Message        string           `json:"message,omitempty"`
}

// Sufficient reports whether the pipeline may proceed.
func (r *CoverageResult) Sufficient() bool {
	return r.Status == CoverageSufficient || r.Status == CoverageSkipped
}

// CheckCoverage determines from producer-file metadata alone whether local
// bars span [requested_end - lookback_days, requested_end]. The happy path
// reads only the parquet footer, never the rows.
//
// Escape hatch: COVERAGE_SKIP_D1=1 skips the check for D1 runs. This
// exists for daily files whose producers do not maintain footer
// statistics; it is logged loudly and recorded as SKIPPED.
func CheckCoverage(ctx context.Context, dataRoot string, req CoverageRequest) *CoverageResult {
	requiredStart := timeframe.DayStartUTC(req.RequestedEnd.AddDate(0, 0, -req.LookbackDays))
	res := &CoverageResult{
		Symbol:         req.Symbol,
		Timeframe:      req.Timeframe.String(),
		RequestedStart: requiredStart,
		RequestedEnd:   req.RequestedEnd.UTC(),
	}

	if req.Timeframe == timeframe.D1 && config.BoolEnv(config.EnvCoverageSkipD1) {
		log.Warn().Str("symbol", req.Symbol).
			Msgf("%s=1: D1 coverage gate skipped, data gaps will not be detected here", config.EnvCoverageSkipD1)
		res.Status = CoverageSkipped
		res.Message = "D1 coverage check skipped by " + config.EnvCoverageSkipD1
		return res
	}

	autoFetch := req.AutoFetch && req.Backfiller != nil
	if autoFetch && config.BoolEnv(config.EnvOffline) {
		log.Warn().Str("symbol", req.Symbol).
			Msgf("%s=1: producer backfill suppressed, gaps stay gaps", config.EnvOffline)
		autoFetch = false
	}

	if gap := inspect(dataRoot, req, requiredStart, res); gap == nil {
		res.Status = CoverageSufficient
		return res
	} else if !autoFetch {
		res.Status = CoverageGapDetected
		res.Gap = gap
		return res
	} else if err := req.Backfiller.EnsureBars(ctx, req.Symbol, req.Timeframe, requiredStart, req.RequestedEnd); err != nil {
		res.Status = CoverageFetchFailed
		res.Gap = gap
		res.Message = err.Error()
		return res
	}

	// Backfill ran; re-inspect before trusting it.
	if gap := inspect(dataRoot, req, requiredStart, res); gap != nil {
		res.Status = CoverageFetchFailed
		res.Gap = gap
		res.Message = "gap persists after backfill"
		return res
	}
	res.Status = CoverageSufficient
	return res
}

// inspect returns the detected gap, or nil when coverage holds. It also
// fills the cached-range fields of res as a side effect.
func inspect(dataRoot string, req CoverageRequest, requiredStart time.Time, res *CoverageResult) *domain.GapRange {
	fetcher := bars.NewFetcher(dataRoot)
	path := fetcher.ProducerPath(req.Symbol, req.Timeframe)
	if _, err := os.Stat(path); err != nil {
		res.Message = "producer file absent: " + path
		return &domain.GapRange{Start: requiredStart, End: req.RequestedEnd.UTC()}
	}
	meta, err := bars.ReadParquetMeta(path)
	if err != nil {
		res.Message = "unreadable producer metadata: " + err.Error()
		return &domain.GapRange{Start: requiredStart, End: req.RequestedEnd.UTC()}
	}
	res.Rows = meta.Rows
	if meta.Rows == 0 || !meta.HasTs {
		res.Message = "producer file has no timestamped rows"
		return &domain.GapRange{Start: requiredStart, End: req.RequestedEnd.UTC()}
	}
	first, last := meta.FirstTs, meta.LastTs
	res.CachedStart = &first
	res.CachedEnd = &last

	if first.After(requiredStart) {
		return &domain.GapRange{Start: requiredStart, End: first}
	}
	// A bar anywhere on the requested end day covers the tail: intraday
	// labels end before the calendar day does.
	if last.Before(timeframe.DayStartUTC(req.RequestedEnd)) {
		return &domain.GapRange{Start: last, End: req.RequestedEnd.UTC()}
	}
	return nil
}
