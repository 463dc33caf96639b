package domain

import "time"

// OrderSide is the executable direction of an intent or order leg.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderSideFor maps a signal side to its executable order side.
func OrderSideFor(s SignalSide) OrderSide {
	if s == SignalShort {
		return SideSell
	}
	return SideBuy
}

// Intent is a canonical, deterministic description of a pending order
// derived from an active signal row. All prices are absolute; timestamps
// are UTC instants.
type Intent struct {
	TemplateID       string
	SignalTs         time.Time
	TriggerTs        time.Time
	Symbol           string
	Side             OrderSide
	OCOGroupID       string
	EntryPrice       float64
	StopPrice        float64
	TakeProfitPrice  float64
	OrderValidFromTs *time.Time
	OrderValidToTs   *time.Time
	ExitTs           *time.Time
	ExitReason       string
	StrategyID       string
	StrategyVersion  string

	// Context carries the sig_*/dbg_* columns forwarded from the signal
	// frame, keyed by column name.
	Context map[string]Cell
}

// IntentFrame is the ordered intent stream for one run. ContextColumns is
// the sorted union of context column names; the canonical serializer
// renders them in this order for every row.
type IntentFrame struct {
	ContextColumns []string
	Intents        []Intent
}

// Len returns the number of intents.
func (f *IntentFrame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Intents)
}
