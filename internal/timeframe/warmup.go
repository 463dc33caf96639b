package timeframe

import (
	"fmt"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

// SessionMode selects the per-day minute budget used by the warmup
// calculator and the expected-grid generator.
type SessionMode string

const (
	SessionRTH SessionMode = "rth"
	SessionRaw SessionMode = "raw"
)

const (
	rthMinutesPerDay = 390
	rawMinutesPerDay = 1440
)

// SessionMinutes returns the minutes per session day for the mode.
func SessionMinutes(mode SessionMode) (int, error) {
	switch mode {
	case SessionRTH:
		return rthMinutesPerDay, nil
	case SessionRaw:
		return rawMinutesPerDay, nil
	default:
		return 0, &domain.TimeframeError{Timeframe: string(mode), Reason: "unknown session mode (want rth or raw)"}
	}
}

// BarsPerDay returns max(1, floor(minutes_per_session / timeframe_minutes)).
func BarsPerDay(tfMinutes int, mode SessionMode) (int, error) {
	if tfMinutes <= 0 {
		return 0, &domain.TimeframeError{Timeframe: fmt.Sprintf("%dm", tfMinutes), Reason: "timeframe minutes must be positive"}
	}
	sessionMinutes, err := SessionMinutes(mode)
	if err != nil {
		return 0, err
	}
	perDay := sessionMinutes / tfMinutes
	if perDay < 1 {
		perDay = 1
	}
	return perDay, nil
}

// WarmupDays converts an indicator warmup in bars to whole calendar days:
// ceil(required_warmup_bars / bars_per_day).
func WarmupDays(requiredWarmupBars, tfMinutes int, mode SessionMode) (int, error) {
	if requiredWarmupBars < 0 {
		return 0, &domain.TimeframeError{
			Timeframe: fmt.Sprintf("%dm", tfMinutes),
			Reason:    fmt.Sprintf("warmup bars must be >= 0, got %d", requiredWarmupBars),
		}
	}
	perDay, err := BarsPerDay(tfMinutes, mode)
	if err != nil {
		return 0, err
	}
	return (requiredWarmupBars + perDay - 1) / perDay, nil
}
