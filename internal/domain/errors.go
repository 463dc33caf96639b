package domain

import (
	"fmt"
	"strings"
	"time"
)

// ConfigError reports a missing or malformed runtime configuration.
type ConfigError struct {
	Missing []string
	Reason  string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("runtime config invalid: missing %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("runtime config invalid: %s", e.Reason)
}

// TimeframeError reports an unsupported or malformed timeframe input.
type TimeframeError struct {
	Timeframe string
	Reason    string
}

func (e *TimeframeError) Error() string {
	return fmt.Sprintf("timeframe %q: %s", e.Timeframe, e.Reason)
}

// MissingHistoricalDataError means the producer-built file for a
// (symbol, timeframe) is absent or the requested window sliced to zero
// rows. The message names the expected file and the remediation so a UI
// can surface it directly.
type MissingHistoricalDataError struct {
	Symbol       string
	Timeframe    string
	ExpectedPath string
	Window       string
	Remediation  string
}

func (e *MissingHistoricalDataError) Error() string {
	msg := fmt.Sprintf("missing historical data for %s %s: expected %s", e.Symbol, e.Timeframe, e.ExpectedPath)
	if e.Window != "" {
		msg += fmt.Sprintf(" covering %s", e.Window)
	}
	if e.Remediation != "" {
		msg += "; " + e.Remediation
	}
	return msg
}

// SnapshotError reports an unreadable or malformed bars snapshot.
type SnapshotError struct {
	Path   string
	Reason string
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("bars snapshot %s: %s", e.Path, e.Reason)
}

// StrategyNotFoundError reports an unknown strategy id.
type StrategyNotFoundError struct {
	StrategyID string
	Known      []string
}

func (e *StrategyNotFoundError) Error() string {
	return fmt.Sprintf("unknown strategy %q (registered: %s)", e.StrategyID, strings.Join(e.Known, ", "))
}

// StrategyVersionError reports a strategy that does not provide the
// requested contract version.
type StrategyVersionError struct {
	StrategyID string
	Version    string
}

func (e *StrategyVersionError) Error() string {
	return fmt.Sprintf("strategy %q has no schema version %q", e.StrategyID, e.Version)
}

// SignalFrameContractError reports schema-contract violations found while
// validating a strategy's signal frame.
type SignalFrameContractError struct {
	StrategyID string
	Version    string
	Violations []string
}

func (e *SignalFrameContractError) Error() string {
	return fmt.Sprintf("signal frame contract violated for %s@%s: %s",
		e.StrategyID, e.Version, strings.Join(e.Violations, "; "))
}

// IntentContractError reports a fatal defect while projecting signals into
// intents, e.g. a side without an OCO group.
type IntentContractError struct {
	TemplateID string
	Reason     string
}

func (e *IntentContractError) Error() string {
	if e.TemplateID != "" {
		return fmt.Sprintf("intent contract violated for template %s: %s", e.TemplateID, e.Reason)
	}
	return fmt.Sprintf("intent contract violated: %s", e.Reason)
}

// FillModelError reports an unusable fill-model input, e.g. an empty bars
// snapshot.
type FillModelError struct {
	Reason string
}

func (e *FillModelError) Error() string {
	return fmt.Sprintf("fill model: %s", e.Reason)
}

// HistoryGuardError means runtime-history code attempted to operate under
// the backtest parquet tree.
type HistoryGuardError struct {
	Path     string
	DataRoot string
}

func (e *HistoryGuardError) Error() string {
	return fmt.Sprintf("runtime history path %s is inside the backtest data root %s", e.Path, e.DataRoot)
}

// ProducerError reports a failed or refusing producer ensure call.
type ProducerError struct {
	URL        string
	StatusCode int
	Status     string
	GapsAfter  int
	Reason     string
	Cause      error
}

func (e *ProducerError) Error() string {
	msg := fmt.Sprintf("producer %s: %s", e.URL, e.Reason)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	return msg
}

func (e *ProducerError) Unwrap() error { return e.Cause }

// GapRange is a half-open data gap surfaced by gates and history checks.
type GapRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
