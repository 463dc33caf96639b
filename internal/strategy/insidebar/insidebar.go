// Package insidebar implements the inside-bar breakout reference strategy:
// a bar fully contained in its predecessor's range signals a long entry at
// the close, with an ATR stop and a risk-reward multiple take-profit.
package insidebar

import (
	"fmt"
	"time"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/strategy"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

const (
	// StrategyID is the registry key.
	StrategyID  = "inside_bar"
	strategyTag = "IBS"

	// ImplVersion is the only schema version this implementation provides.
	ImplVersion = "1.0.0"

	defaultATRPeriod      = 14
	defaultRiskReward     = 2.0
	defaultExitAfterBars  = 12
	signalReasonInsideBar = "inside_bar_breakout"
	exitReasonTimeStop    = "time_stop"
)

// Strategy is the inside-bar plugin. Stateless; safe for reuse.
type Strategy struct{}

// New returns the plugin instance for registry wiring.
func New() *Strategy { return &Strategy{} }

// ID implements strategy.Plugin.
func (s *Strategy) ID() string { return StrategyID }

// RequiresConsecutiveBars opts into the SLA gate's gap-based completeness
// check: the pattern compares adjacent bars, so holes poison signals.
func (s *Strategy) RequiresConsecutiveBars() bool { return true }

// RequiredWarmupBars is the indicator warmup: the ATR window plus the bar
// that seeds the first true range.
func (s *Strategy) RequiredWarmupBars(params strategy.Params) int {
	return params.Int("atr_period", defaultATRPeriod) + 1
}

// Schema implements strategy.Plugin.
func (s *Strategy) Schema(version string) (*domain.SignalSchema, error) {
	if version != ImplVersion {
		return nil, &domain.StrategyVersionError{StrategyID: StrategyID, Version: version}
	}
	return &domain.SignalSchema{
		StrategyID:  StrategyID,
		StrategyTag: strategyTag,
		Version:     version,
		Columns: []domain.ColumnSpec{
			{Name: "timestamp", Dtype: domain.DtypeTimestamp, Nullable: false, Kind: domain.KindBase},
			{Name: "open", Dtype: domain.DtypeFloat, Nullable: false, Kind: domain.KindBase},
			{Name: "high", Dtype: domain.DtypeFloat, Nullable: false, Kind: domain.KindBase},
			{Name: "low", Dtype: domain.DtypeFloat, Nullable: false, Kind: domain.KindBase},
			{Name: "close", Dtype: domain.DtypeFloat, Nullable: false, Kind: domain.KindBase},
			{Name: "volume", Dtype: domain.DtypeInt, Nullable: false, Kind: domain.KindBase},
			{Name: "symbol", Dtype: domain.DtypeString, Nullable: false, Kind: domain.KindBase},
			{Name: "timeframe", Dtype: domain.DtypeString, Nullable: false, Kind: domain.KindBase},
			{Name: "strategy_id", Dtype: domain.DtypeString, Nullable: false, Kind: domain.KindBase},
			{Name: "strategy_version", Dtype: domain.DtypeString, Nullable: false, Kind: domain.KindBase},

			{Name: "signal_side", Dtype: domain.DtypeString, Nullable: true, Kind: domain.KindGeneric},
			{Name: "signal_reason", Dtype: domain.DtypeString, Nullable: true, Kind: domain.KindGeneric},
			{Name: "entry_price", Dtype: domain.DtypeFloat, Nullable: true, Kind: domain.KindGeneric},
			{Name: "stop_price", Dtype: domain.DtypeFloat, Nullable: true, Kind: domain.KindGeneric},
			{Name: "take_profit_price", Dtype: domain.DtypeFloat, Nullable: true, Kind: domain.KindGeneric},
			{Name: "template_id", Dtype: domain.DtypeString, Nullable: true, Kind: domain.KindGeneric},
			{Name: "oco_group_id", Dtype: domain.DtypeString, Nullable: true, Kind: domain.KindGeneric},
			{Name: "exit_ts", Dtype: domain.DtypeTimestamp, Nullable: true, Kind: domain.KindGeneric},
			{Name: "exit_reason", Dtype: domain.DtypeString, Nullable: true, Kind: domain.KindGeneric},

			{Name: "sig_inside_bar", Dtype: domain.DtypeBool, Nullable: false, Kind: domain.KindStrategy},
			{Name: "sig_long", Dtype: domain.DtypeBool, Nullable: false, Kind: domain.KindStrategy},
			{Name: "sig_short", Dtype: domain.DtypeBool, Nullable: false, Kind: domain.KindStrategy},
			{Name: "sig_atr", Dtype: domain.DtypeFloat, Nullable: true, Kind: domain.KindStrategy},
			{Name: "dbg_mother_high", Dtype: domain.DtypeFloat, Nullable: true, Kind: domain.KindStrategy},
			{Name: "dbg_mother_low", Dtype: domain.DtypeFloat, Nullable: true, Kind: domain.KindStrategy},
		},
	}, nil
}

// ExtendSignalFrame implements strategy.Plugin. The projection is pure:
// one output row per input bar, signals only where the pattern and a
// warmed-up ATR coincide.
func (s *Strategy) ExtendSignalFrame(bars *domain.BarFrame, params strategy.Params) (*domain.SignalFrame, error) {
	if bars.Len() == 0 {
		return &domain.SignalFrame{}, nil
	}
	atrPeriod := params.Int("atr_period", defaultATRPeriod)
	if atrPeriod < 1 {
		return nil, fmt.Errorf("atr_period must be >= 1, got %d", atrPeriod)
	}
	riskReward := params.Float("risk_reward_ratio", defaultRiskReward)
	if riskReward <= 0 {
		return nil, fmt.Errorf("risk_reward_ratio must be positive, got %g", riskReward)
	}
	exitAfterBars := params.Int("exit_after_bars", defaultExitAfterBars)

	tf, err := timeframe.Parse(bars.Timeframe)
	if err != nil {
		return nil, err
	}
	barInterval := time.Duration(tf.Minutes()) * time.Minute

	atr := computeATR(bars.Bars, atrPeriod)

	rows := make([]domain.SignalRow, bars.Len())
	for i, b := range bars.Bars {
		row := domain.SignalRow{
			Ts:              b.Ts,
			Open:            b.Open,
			High:            b.High,
			Low:             b.Low,
			Close:           b.Close,
			Volume:          b.Volume,
			Symbol:          bars.Symbol,
			Timeframe:       bars.Timeframe,
			StrategyID:      StrategyID,
			StrategyVersion: ImplVersion,
			Extra: map[string]domain.Cell{
				"sig_inside_bar":  domain.BoolCell(false),
				"sig_long":        domain.BoolCell(false),
				"sig_short":       domain.BoolCell(false),
				"sig_atr":         domain.NullCell(domain.DtypeFloat),
				"dbg_mother_high": domain.NullCell(domain.DtypeFloat),
				"dbg_mother_low":  domain.NullCell(domain.DtypeFloat),
			},
		}
		if !atrNull(atr, i) {
			row.Extra["sig_atr"] = domain.FloatCell(atr[i])
		}

		if i > 0 {
			mother := bars.Bars[i-1]
			inside := b.High < mother.High && b.Low > mother.Low
			row.Extra["sig_inside_bar"] = domain.BoolCell(inside)
			if inside {
				row.Extra["dbg_mother_high"] = domain.FloatCell(mother.High)
				row.Extra["dbg_mother_low"] = domain.FloatCell(mother.Low)
			}
			if inside && !atrNull(atr, i) {
				side := domain.SignalLong
				entry := b.Close
				stop := entry - atr[i]
				take := entry + riskReward*atr[i]
				templateID := fmt.Sprintf("IB-%s-%s", bars.Symbol, b.Ts.UTC().Format("20060102T150405Z"))
				exitTs := b.Ts.Add(time.Duration(exitAfterBars) * barInterval)

				row.SignalSide = &side
				row.SignalReason = signalReasonInsideBar
				row.EntryPrice = &entry
				row.StopPrice = &stop
				row.TakeProfitPrice = &take
				row.TemplateID = templateID
				row.OCOGroupID = templateID + "-OCO"
				row.ExitTs = &exitTs
				row.ExitReason = exitReasonTimeStop
				row.Extra["sig_long"] = domain.BoolCell(true)
			}
		}
		rows[i] = row
	}
	return &domain.SignalFrame{Rows: rows}, nil
}

// computeATR returns the simple moving average of true range over period.
// Index i carries a usable value when i >= period and the ranges were not
// all flat; unusable slots stay zero and atrNull treats them as null.
func computeATR(bars []domain.Bar, period int) []float64 {
	atr := make([]float64, len(bars))
	if len(bars) < 2 {
		return atr
	}
	tr := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		b, prev := bars[i], bars[i-1]
		r := b.High - b.Low
		if d := abs(b.High - prev.Close); d > r {
			r = d
		}
		if d := abs(b.Low - prev.Close); d > r {
			r = d
		}
		tr[i] = r
	}
	var sum float64
	for i := 1; i < len(bars); i++ {
		sum += tr[i]
		if i > period {
			sum -= tr[i-period]
		}
		if i >= period {
			atr[i] = sum / float64(period)
		}
	}
	return atr
}

func atrNull(atr []float64, i int) bool { return atr[i] == 0 }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
