package gates

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

// Severity ranks an SLA violation.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityWarning Severity = "WARNING"
)

// Violation is one failed SLA check.
type Violation struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// SLARequest describes one data-quality check.
type SLARequest struct {
	Bars          *domain.BarFrame
	StrategyID    string
	BaseTimeframe timeframe.Timeframe
	LookbackBars  int
	// RequiresConsecutiveBars makes gap-based completeness FATAL;
	// strategies comparing adjacent bars opt in through the registry.
	RequiresConsecutiveBars bool
}

// SLAResult is persisted verbatim as sla_check.json.
type SLAResult struct {
	StrategyID    string      `json:"strategy_id"`
	BaseTimeframe string      `json:"base_timeframe"`
	LookbackBars  int         `json:"lookback_bars"`
	RowCount      int         `json:"row_count"`
	Violations    []Violation `json:"violations"`
}

// Passed reports whether no FATAL violation fired.
func (r *SLAResult) Passed() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityFatal {
			return false
		}
	}
	return true
}

// FatalNames lists the fatal violation names in order.
func (r *SLAResult) FatalNames() []string {
	var out []string
	for _, v := range r.Violations {
		if v.Severity == SeverityFatal {
			out = append(out, v.Name)
		}
	}
	return out
}

const ratioCompletenessFloor = 0.99

// businessDayFraction approximates trading days per calendar day. It is a
// deliberate approximation; do not tighten it without a real exchange
// calendar.
const businessDayFraction = 0.7

// CheckSLA runs the data-quality battery over the loaded snapshot.
func CheckSLA(req SLARequest) *SLAResult {
	res := &SLAResult{
		StrategyID:    req.StrategyID,
		BaseTimeframe: req.BaseTimeframe.String(),
		LookbackBars:  req.LookbackBars,
		RowCount:      req.Bars.Len(),
	}

	res.Violations = append(res.Violations, checkNaN(req.Bars)...)
	res.Violations = append(res.Violations, checkOHLCRange(req.Bars)...)
	res.Violations = append(res.Violations, checkDupes(req.Bars)...)
	res.Violations = append(res.Violations, checkGapCompleteness(req)...)
	res.Violations = append(res.Violations, checkRatioCompleteness(req)...)

	if len(res.Violations) > 0 {
		log.Warn().Str("strategy", req.StrategyID).Int("violations", len(res.Violations)).
			Strs("fatal", res.FatalNames()).Msg("sla gate violations")
	}
	return res
}

func checkNaN(frame *domain.BarFrame) []Violation {
	bad := 0
	for _, b := range frame.Bars {
		if math.IsNaN(b.Open) || math.IsNaN(b.High) || math.IsNaN(b.Low) || math.IsNaN(b.Close) {
			bad++
		}
	}
	if bad == 0 {
		return nil
	}
	return []Violation{{
		Name:     "no_nan_ohlc",
		Severity: SeverityFatal,
		Message:  fmt.Sprintf("%d rows with NaN in open/high/low/close", bad),
	}}
}

// checkOHLCRange enforces low <= min(open, close) and high >= max(open,
// close) on every row. A bar violating its own range would let the fill
// model price an order outside what the market actually traded.
func checkOHLCRange(frame *domain.BarFrame) []Violation {
	bad := 0
	var first string
	for _, b := range frame.Bars {
		lo, hi := b.Open, b.Open
		if b.Close < lo {
			lo = b.Close
		}
		if b.Close > hi {
			hi = b.Close
		}
		if b.Low > lo || b.High < hi {
			if bad == 0 {
				first = fmt.Sprintf("%s open=%g high=%g low=%g close=%g",
					b.Ts.UTC().Format(time.RFC3339), b.Open, b.High, b.Low, b.Close)
			}
			bad++
		}
	}
	if bad == 0 {
		return nil
	}
	return []Violation{{
		Name:     "ohlc_range",
		Severity: SeverityFatal,
		Message:  fmt.Sprintf("%d rows with open/close outside [low, high] (first: %s)", bad, first),
	}}
}

func checkDupes(frame *domain.BarFrame) []Violation {
	dupes := 0
	for i := 1; i < frame.Len(); i++ {
		if frame.Bars[i].Ts.Equal(frame.Bars[i-1].Ts) {
			dupes++
		}
	}
	if dupes == 0 {
		return nil
	}
	return []Violation{{
		Name:     "no_dupe_index",
		Severity: SeverityFatal,
		Message:  fmt.Sprintf("%d duplicate timestamps", dupes),
	}}
}

// checkGapCompleteness verifies that the last lookback_bars rows sit on a
// hole-free RTH grid. Only strategies that require consecutive bars turn
// this fatal; for everyone else the tail grid is irrelevant.
func checkGapCompleteness(req SLARequest) []Violation {
	if !req.RequiresConsecutiveBars || req.LookbackBars <= 0 {
		return nil
	}
	name := strings.ToLower(req.BaseTimeframe.String()) + "_completeness"
	if req.Bars.Len() < req.LookbackBars {
		return []Violation{{
			Name:     name,
			Severity: SeverityFatal,
			Message: fmt.Sprintf("insufficient data: %d bars, need %d for the gap check",
				req.Bars.Len(), req.LookbackBars),
		}}
	}
	loc, err := timeframe.MarketLocation()
	if err != nil {
		return []Violation{{Name: name, Severity: SeverityFatal, Message: err.Error()}}
	}

	tail := req.Bars.Bars[req.Bars.Len()-req.LookbackBars:]
	present := make(map[int64]struct{}, len(tail))
	for _, b := range tail {
		present[b.Ts.UTC().Unix()] = struct{}{}
	}
	expected := timeframe.ExpectedRTHGrid(tail[0].Ts, tail[len(tail)-1].Ts, req.BaseTimeframe.Minutes(), loc)
	var missing []time.Time
	for _, ts := range expected {
		if _, ok := present[ts.Unix()]; !ok {
			missing = append(missing, ts)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return []Violation{{
		Name:     name,
		Severity: SeverityFatal,
		Message: fmt.Sprintf("%d expected RTH bars missing in the last %d bars (first: %s)",
			len(missing), req.LookbackBars, missing[0].Format(time.RFC3339)),
	}}
}

// checkRatioCompleteness compares actual row count against the expected
// count over the visible span using the business-day approximation. Never
// fatal on its own.
func checkRatioCompleteness(req SLARequest) []Violation {
	first, ok := req.Bars.First()
	if !ok {
		return nil
	}
	last, _ := req.Bars.Last()
	calendarDays := int(last.Ts.Sub(first.Ts).Hours()/24) + 1
	if calendarDays <= 0 {
		return nil
	}
	perDay, err := timeframe.BarsPerDay(req.BaseTimeframe.Minutes(), timeframe.SessionRTH)
	if err != nil {
		return nil
	}
	expected := int(math.Ceil(businessDayFraction*float64(calendarDays))) * perDay
	if expected == 0 {
		return nil
	}
	ratio := float64(req.Bars.Len()) / float64(expected)
	if ratio >= ratioCompletenessFloor {
		return nil
	}
	return []Violation{{
		Name:     "ratio_completeness",
		Severity: SeverityWarning,
		Message: fmt.Sprintf("completeness %.2f%% below %.0f%% (%d of ~%d expected bars)",
			ratio*100, ratioCompletenessFloor*100, req.Bars.Len(), expected),
	}}
}
