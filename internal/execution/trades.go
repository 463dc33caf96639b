package execution

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

// CompoundBasisCashOnly is the only accepted compounding equity basis:
// sizing sees settled cash, never open-position marks.
const CompoundBasisCashOnly = "cash_only"

// Config parameterizes trade construction.
type Config struct {
	InitialCash         float64
	FeesBps             float64
	SlippageBps         float64
	CompoundEnabled     bool
	CompoundEquityBasis string
	Sizing              SizingConfig
}

func (c *Config) validate() error {
	if c.InitialCash <= 0 {
		return fmt.Errorf("initial cash must be > 0, got %g", c.InitialCash)
	}
	if c.CompoundEnabled && c.CompoundEquityBasis != CompoundBasisCashOnly {
		return fmt.Errorf("unsupported compound equity basis %q (only %q)", c.CompoundEquityBasis, CompoundBasisCashOnly)
	}
	return nil
}

// BuildTrades joins fills with their originating intents, resolves exits,
// applies sizing (day-wise compounded from settled cash when enabled),
// and returns trades in entry order. Input ordering does not matter: the
// construction sorts deterministically before sizing.
func BuildTrades(intents *domain.IntentFrame, fillFrame *domain.FillFrame, execBars *domain.BarFrame, cfg Config) ([]domain.Trade, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	byTemplate := make(map[string]*domain.Intent, intents.Len())
	for i := range intents.Intents {
		byTemplate[intents.Intents[i].TemplateID] = &intents.Intents[i]
	}

	type leg struct {
		trade domain.Trade
		stop  float64
	}
	legs := make([]leg, 0, fillFrame.Len())
	for _, fl := range fillFrame.Fills {
		it, ok := byTemplate[fl.TemplateID]
		if !ok {
			log.Warn().Str("template_id", fl.TemplateID).Msg("fill without originating intent, dropped")
			continue
		}
		exitTs, exitPrice, reason := resolveExit(it, fl, execBars)
		legs = append(legs, leg{
			trade: domain.Trade{
				Symbol:     fl.Symbol,
				Side:       it.Side,
				EntryTs:    fl.FillTs,
				EntryPrice: fl.FillPrice,
				ExitTs:     exitTs,
				ExitPrice:  exitPrice,
				Reason:     reason,
			},
			stop: it.StopPrice,
		})
	}

	sort.SliceStable(legs, func(i, j int) bool {
		a, b := legs[i].trade, legs[j].trade
		if !a.EntryTs.Equal(b.EntryTs) {
			return a.EntryTs.Before(b.EntryTs)
		}
		return a.Symbol < b.Symbol
	})

	loc, err := timeframe.MarketLocation()
	if err != nil {
		return nil, err
	}

	// Day-wise compounding: sizing for day D sees initial cash plus the
	// pnl of every trade already exited on a day before D.
	settledCash := cfg.InitialCash
	var open []domain.Trade
	var currentDay time.Time

	trades := make([]domain.Trade, 0, len(legs))
	for _, l := range legs {
		day := timeframe.MarketDay(l.trade.EntryTs, loc)
		if cfg.CompoundEnabled && !day.Equal(currentDay) {
			var stillOpen []domain.Trade
			for _, t := range open {
				if timeframe.MarketDay(t.ExitTs, loc).Before(day) {
					settledCash += t.Pnl
				} else {
					stillOpen = append(stillOpen, t)
				}
			}
			open = stillOpen
			currentDay = day
		}

		basis := cfg.InitialCash
		if cfg.CompoundEnabled {
			basis = settledCash
		}
		qty, err := cfg.Sizing.Qty(basis, l.trade.EntryPrice, l.stop)
		if err != nil {
			return nil, err
		}
		if qty == 0 {
			log.Debug().Str("symbol", l.trade.Symbol).Time("entry_ts", l.trade.EntryTs).
				Msg("sized to zero, trade skipped")
			continue
		}
		t := l.trade
		t.Qty = qty
		t.Pnl = tradePnl(t, cfg)
		trades = append(trades, t)
		if cfg.CompoundEnabled {
			open = append(open, t)
		}
	}

	log.Info().Int("fills", fillFrame.Len()).Int("trades", len(trades)).Msg("trades constructed")
	return trades, nil
}

// resolveExit maps the intent's exit_ts to that bar's close on the exec
// bars. A missing exit falls back to the entry leg, producing a zero-pnl
// placeholder trade.
func resolveExit(it *domain.Intent, fl domain.Fill, execBars *domain.BarFrame) (time.Time, float64, string) {
	reason := it.ExitReason
	if reason == "" {
		reason = string(fl.Reason)
	}
	if it.ExitTs != nil {
		if bar, ok := execBars.At(*it.ExitTs); ok {
			return bar.Ts, bar.Close, reason
		}
		if bar, ok := execBars.FloorAt(*it.ExitTs); ok && bar.Ts.After(fl.FillTs) {
			return bar.Ts, bar.Close, reason
		}
	}
	return fl.FillTs, fl.FillPrice, reason
}

// tradePnl applies slippage to both legs, signs the raw pnl by side, and
// subtracts fees on the traded notional.
func tradePnl(t domain.Trade, cfg Config) float64 {
	slip := cfg.SlippageBps / 10000
	entry, exit := t.EntryPrice, t.ExitPrice
	if t.Side == domain.SideSell {
		entry *= 1 - slip
		exit *= 1 + slip
	} else {
		entry *= 1 + slip
		exit *= 1 - slip
	}
	var gross float64
	if t.Side == domain.SideSell {
		gross = (entry - exit) * t.Qty
	} else {
		gross = (exit - entry) * t.Qty
	}
	fees := (math.Abs(entry) + math.Abs(exit)) * t.Qty * cfg.FeesBps / 10000
	return gross - fees
}
