package history

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

// State is the ensure_history outcome. A strategy receiving anything but
// SUFFICIENT must emit zero signals on the run and record the reason.
type State string

const (
	StateSufficient State = "SUFFICIENT"
	StateLoading    State = "LOADING"
	StateDegraded   State = "DEGRADED"
)

// BackfillProvider supplies historical bars for the runtime cache. The
// pipeline's implementation reads the producer's on-disk parquet after an
// optional ensure call; it never streams from a market feed directly.
type BackfillProvider interface {
	FetchBars(ctx context.Context, symbol, tf string, start, end time.Time) ([]domain.Bar, error)
}

// EnsureReport describes the decision for audit logs.
type EnsureReport struct {
	State       State            `json:"state"`
	Symbol      string           `json:"symbol"`
	Timeframe   string           `json:"timeframe"`
	CachedStart time.Time        `json:"cached_start,omitempty"`
	CachedEnd   time.Time        `json:"cached_end,omitempty"`
	CachedRows  int64            `json:"cached_rows"`
	Gap         *domain.GapRange `json:"gap,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}

// EnsureHistory verifies the cache covers [requiredStart, requiredEnd]
// before strategy execution. With autoBackfill, a successful backfill
// that still leaves gaps reports LOADING so the next call can advance;
// without it, or when the provider returned nothing, the state is
// DEGRADED.
func EnsureHistory(ctx context.Context, store *Store, symbol, tf string, requiredStart, requiredEnd time.Time, autoBackfill bool, provider BackfillProvider) (*EnsureReport, error) {
	report := &EnsureReport{Symbol: symbol, Timeframe: tf}

	check := func() (bool, error) {
		first, last, count, err := store.CachedRange(symbol, tf)
		if err != nil {
			return false, err
		}
		report.CachedStart, report.CachedEnd, report.CachedRows = first, last, count
		if count == 0 {
			report.Gap = &domain.GapRange{Start: requiredStart, End: requiredEnd}
			return false, nil
		}
		if first.After(requiredStart) {
			report.Gap = &domain.GapRange{Start: requiredStart, End: first}
			return false, nil
		}
		if last.Before(requiredEnd) {
			report.Gap = &domain.GapRange{Start: last, End: requiredEnd}
			return false, nil
		}
		report.Gap = nil
		return true, nil
	}

	covered, err := check()
	if err != nil {
		return nil, err
	}
	if covered {
		report.State = StateSufficient
		return report, nil
	}

	if !autoBackfill || provider == nil {
		report.State = StateDegraded
		report.Reason = "gap detected and backfill disabled"
		log.Warn().Str("symbol", symbol).Str("tf", tf).Interface("gap", report.Gap).
			Msg("runtime history degraded, strategy must emit no signals")
		return report, nil
	}

	bars, err := provider.FetchBars(ctx, symbol, tf, requiredStart, requiredEnd)
	if err != nil {
		report.State = StateDegraded
		report.Reason = "backfill failed: " + err.Error()
		return report, nil
	}
	if len(bars) == 0 {
		report.State = StateDegraded
		report.Reason = "backfill provider returned no data"
		return report, nil
	}
	if err := store.UpsertBars(symbol, tf, SourceBackfill, bars); err != nil {
		return nil, err
	}

	covered, err = check()
	if err != nil {
		return nil, err
	}
	if covered {
		report.State = StateSufficient
		return report, nil
	}
	report.State = StateLoading
	report.Reason = "backfill succeeded, gaps remain"
	return report, nil
}
