// Package metrics computes run performance statistics from trades and the
// equity curve and serializes them as the metrics.json artifact.
package metrics

import (
	"encoding/json"
	"math"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/fsio"
)

// JSONFloat marshals +Inf as the string "Infinity", which encoding/json
// otherwise rejects. Profit factor is the only field that can reach it.
type JSONFloat float64

// MarshalJSON implements json.Marshaler.
func (f JSONFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 1) {
		return []byte(`"Infinity"`), nil
	}
	if math.IsInf(v, -1) {
		return []byte(`"-Infinity"`), nil
	}
	if math.IsNaN(v) {
		return []byte(`"NaN"`), nil
	}
	return json.Marshal(v)
}

// Metrics is the serialized statistics set.
type Metrics struct {
	NumTrades      int       `json:"num_trades"`
	WinRate        float64   `json:"win_rate"`
	AvgWin         float64   `json:"avg_win"`
	AvgLoss        float64   `json:"avg_loss"`
	GrossPnl       float64   `json:"gross_pnl"`
	NetPnl         float64   `json:"net_pnl"`
	ProfitFactor   JSONFloat `json:"profit_factor"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	Exposure       float64   `json:"exposure"`
	Turnover       float64   `json:"turnover"`
}

// Compute derives the full statistics set. All outputs are finite except
// profit_factor, which is +Inf when there are wins and no losses.
func Compute(trades []domain.Trade, equity []domain.EquityPoint, initialCash float64) *Metrics {
	m := &Metrics{NumTrades: len(trades)}

	var wins, losses int
	var winSum, lossSum float64
	for _, t := range trades {
		m.GrossPnl += t.Pnl
		if t.Pnl > 0 {
			wins++
			winSum += t.Pnl
		} else if t.Pnl < 0 {
			losses++
			lossSum += t.Pnl
		}
	}
	m.NetPnl = m.GrossPnl
	if len(trades) > 0 {
		m.WinRate = float64(wins) / float64(len(trades))
	}
	if wins > 0 {
		m.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		m.AvgLoss = lossSum / float64(losses)
	}
	switch {
	case wins > 0 && losses == 0:
		m.ProfitFactor = JSONFloat(math.Inf(1))
	case losses > 0:
		m.ProfitFactor = JSONFloat(winSum / math.Abs(lossSum))
	}

	m.MaxDrawdown, m.MaxDrawdownPct = maxDrawdown(equity)
	m.SharpeRatio = sharpe(equity)
	m.Exposure = exposure(trades)
	m.Turnover = turnover(trades, initialCash)
	return m
}

func maxDrawdown(equity []domain.EquityPoint) (abs, pct float64) {
	var peak float64
	for i, p := range equity {
		if i == 0 || p.Equity > peak {
			peak = p.Equity
		}
		if dd := peak - p.Equity; dd > abs {
			abs = dd
			if peak > 0 {
				pct = dd / peak
			}
		}
	}
	return abs, pct
}

// sharpe is the annualized daily Sharpe ratio: equity is resampled to one
// observation per UTC day (last point wins), returns are day over day.
// Fewer than two daily observations, or a zero or non-finite standard
// deviation, yield zero.
func sharpe(equity []domain.EquityPoint) float64 {
	daily := make([]float64, 0, len(equity))
	var lastDay string
	for _, p := range equity {
		day := p.Ts.UTC().Format("2006-01-02")
		if day == lastDay && len(daily) > 0 {
			daily[len(daily)-1] = p.Equity
			continue
		}
		daily = append(daily, p.Equity)
		lastDay = day
	}
	if len(daily) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(daily)-1)
	for i := 1; i < len(daily); i++ {
		if daily[i-1] == 0 {
			return 0
		}
		returns = append(returns, daily[i]/daily[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	sd := math.Sqrt(variance)
	if sd == 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
		return 0
	}
	return mean / sd * math.Sqrt(252)
}

// exposure is the summed holding time over the full traded span, clamped
// to [0, 1]; zero when the span is zero.
func exposure(trades []domain.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	first := trades[0].EntryTs
	last := trades[0].ExitTs
	var held float64
	for _, t := range trades {
		if t.EntryTs.Before(first) {
			first = t.EntryTs
		}
		if t.ExitTs.After(last) {
			last = t.ExitTs
		}
		held += t.ExitTs.Sub(t.EntryTs).Seconds()
	}
	span := last.Sub(first).Seconds()
	if span <= 0 {
		return 0
	}
	e := held / span
	if e > 1 {
		e = 1
	}
	return e
}

func turnover(trades []domain.Trade, initialCash float64) float64 {
	if initialCash <= 0 {
		return 0
	}
	var sum float64
	for _, t := range trades {
		sum += math.Abs(t.Qty) * (math.Abs(t.EntryPrice) + math.Abs(t.ExitPrice))
	}
	return sum / initialCash
}

// Write persists metrics.json.
func Write(path string, m *Metrics) error {
	return fsio.WriteJSONAtomic(path, m)
}
