package domain

import "time"

// FillReason explains why the fill model emitted a fill.
type FillReason string

const (
	FillSignal     FillReason = "signal_fill"
	FillStopHit    FillReason = "stop_hit"
	FillTakeProfit FillReason = "take_profit_hit"
	FillSessionEnd FillReason = "session_end"
)

// Fill is the outcome of matching one intent against the bars snapshot.
// fill_ts always coincides with a bar in the snapshot and fill_price lies
// within that bar's [low, high].
type Fill struct {
	TemplateID string     `json:"template_id"`
	Symbol     string     `json:"symbol"`
	FillTs     time.Time  `json:"fill_ts"`
	FillPrice  float64    `json:"fill_price"`
	Reason     FillReason `json:"reason"`
}

// FillFrame is the ordered fill stream for one run. Order follows the
// intent stream order.
type FillFrame struct {
	Fills []Fill
}

// Len returns the number of fills.
func (f *FillFrame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Fills)
}
