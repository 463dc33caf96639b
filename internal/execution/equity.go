package execution

import (
	"sort"
	"time"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

// BuildEquity derives the equity curve: one point per trade in exit_ts
// order at initial_cash plus cumulative pnl, with a synthetic baseline
// point one second before the first entry when the curve opens underwater.
// Drawdown percentages are computed against the running peak.
func BuildEquity(trades []domain.Trade, initialCash float64) []domain.EquityPoint {
	if len(trades) == 0 {
		return nil
	}
	ordered := make([]domain.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitTs.Before(ordered[j].ExitTs)
	})

	points := make([]domain.EquityPoint, 0, len(ordered)+1)
	cum := 0.0
	for _, t := range ordered {
		cum += t.Pnl
		points = append(points, domain.EquityPoint{Ts: t.ExitTs, Equity: initialCash + cum})
	}

	if points[0].Equity < initialCash {
		firstEntry := trades[0].EntryTs
		for _, t := range trades {
			if t.EntryTs.Before(firstEntry) {
				firstEntry = t.EntryTs
			}
		}
		baseline := domain.EquityPoint{Ts: firstEntry.Add(-time.Second), Equity: initialCash}
		points = append([]domain.EquityPoint{baseline}, points...)
	}

	peak := points[0].Equity
	for i := range points {
		if points[i].Equity > peak {
			peak = points[i].Equity
		}
		if peak > 0 {
			points[i].DrawdownPct = (peak - points[i].Equity) / peak
		}
	}
	return points
}

// BuildLedger re-projects the equity curve as monotonic cash checkpoints.
func BuildLedger(equity []domain.EquityPoint) []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, len(equity))
	for i, p := range equity {
		out[i] = domain.LedgerEntry{Seq: i, Timestamp: p.Ts, Cash: p.Equity}
	}
	return out
}
