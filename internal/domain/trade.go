package domain

import "time"

// Trade is a matched entry/exit pair derived from a fill and its
// originating intent.
type Trade struct {
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Qty        float64   `json:"qty"`
	EntryTs    time.Time `json:"entry_ts"`
	EntryPrice float64   `json:"entry_price"`
	ExitTs     time.Time `json:"exit_ts"`
	ExitPrice  float64   `json:"exit_price"`
	Pnl        float64   `json:"pnl"`
	Reason     string    `json:"reason"`
}

// EquityPoint is one point of the equity curve.
type EquityPoint struct {
	Ts          time.Time `json:"ts"`
	Equity      float64   `json:"equity"`
	DrawdownPct float64   `json:"drawdown_pct"`
}

// LedgerEntry is a monotonic checkpoint of cash at a trade exit.
type LedgerEntry struct {
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Cash      float64   `json:"cash"`
}
