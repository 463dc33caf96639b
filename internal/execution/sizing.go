// Package execution applies position sizing to fills, constructs trades,
// and derives the equity curve and the portfolio ledger.
package execution

import (
	"fmt"
	"math"
)

// SizingMode selects the position-sizing rule.
type SizingMode string

const (
	SizeFixed     SizingMode = "fixed"
	SizePctEquity SizingMode = "pct_equity"
	SizeRiskBased SizingMode = "risk_based"
)

// SizingConfig parameterizes the sizer. Zero-value fields fall back to
// the documented defaults in normalize.
type SizingConfig struct {
	Mode      SizingMode
	FixedQty  float64
	PosPct    float64
	RiskPct   float64
	MaxPosPct float64
	MinQty    float64
	TickSize  float64
}

func (c *SizingConfig) normalize() error {
	if c.Mode == "" {
		c.Mode = SizeFixed
	}
	if c.TickSize <= 0 {
		c.TickSize = 1
	}
	if c.MinQty < 0 {
		return fmt.Errorf("min_qty must be >= 0, got %g", c.MinQty)
	}
	switch c.Mode {
	case SizeFixed:
		if c.FixedQty <= 0 {
			return fmt.Errorf("fixed sizing needs fixed_qty > 0, got %g", c.FixedQty)
		}
	case SizePctEquity:
		if c.PosPct <= 0 {
			return fmt.Errorf("pct_equity sizing needs pos_pct > 0, got %g", c.PosPct)
		}
	case SizeRiskBased:
		if c.RiskPct <= 0 {
			return fmt.Errorf("risk_based sizing needs risk_pct > 0, got %g", c.RiskPct)
		}
	default:
		return fmt.Errorf("unknown sizing mode %q", c.Mode)
	}
	return nil
}

// roundToTick floors qty to the tick grid.
func roundToTick(qty, tick float64) float64 {
	if tick <= 0 {
		return math.Floor(qty)
	}
	return math.Floor(qty/tick) * tick
}

// Qty computes the position size for one entry given the available
// equity. A result below min_qty collapses to zero: the trade is skipped
// rather than undersized.
func (c SizingConfig) Qty(equity, entryPrice, stopPrice float64) (float64, error) {
	if err := c.normalize(); err != nil {
		return 0, err
	}
	var qty float64
	switch c.Mode {
	case SizeFixed:
		qty = c.FixedQty
	case SizePctEquity:
		if entryPrice <= 0 {
			return 0, fmt.Errorf("pct_equity sizing needs entry price > 0, got %g", entryPrice)
		}
		notional := equity * c.PosPct / 100
		qty = math.Floor(notional / entryPrice)
	case SizeRiskBased:
		stopDistance := math.Abs(entryPrice - stopPrice)
		if stopDistance <= 0 {
			return 0, fmt.Errorf("risk_based sizing needs a nonzero stop distance (entry %g stop %g)", entryPrice, stopPrice)
		}
		riskAmount := equity * c.RiskPct / 100
		qty = math.Floor(riskAmount / stopDistance)
		if c.MaxPosPct > 0 && entryPrice > 0 {
			maxQty := math.Floor(equity * c.MaxPosPct / 100 / entryPrice)
			if qty > maxQty {
				qty = maxQty
			}
		}
	}
	qty = roundToTick(qty, c.TickSize)
	minQty := c.MinQty
	if minQty == 0 {
		minQty = c.TickSize
	}
	if qty < minQty {
		return 0, nil
	}
	return qty, nil
}
