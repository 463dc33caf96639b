// Package timeframe holds the timeframe and trading-session math shared by
// the fetcher, the gates, and the intent generator.
package timeframe

import (
	"fmt"
	"strings"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

// Timeframe is a supported bar interval code.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	H1  Timeframe = "H1"
	D1  Timeframe = "D1"
)

var minutesByTimeframe = map[Timeframe]int{
	M1:  1,
	M5:  5,
	M15: 15,
	H1:  60,
	D1:  1440,
}

// Parse normalizes and validates a timeframe code.
func Parse(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := minutesByTimeframe[tf]; !ok {
		return "", &domain.TimeframeError{Timeframe: s, Reason: "unsupported (want M1, M5, M15, H1 or D1)"}
	}
	return tf, nil
}

// Minutes returns the bar interval in minutes.
func (tf Timeframe) Minutes() int { return minutesByTimeframe[tf] }

// IsIntraday reports whether the timeframe is finer than one day.
func (tf Timeframe) IsIntraday() bool { return tf != D1 }

// DerivedDir is the producer's directory name for this timeframe under
// {data_root}/derived.
func (tf Timeframe) DerivedDir() string {
	if tf == D1 {
		return "tf_d1"
	}
	return fmt.Sprintf("tf_m%d", tf.Minutes())
}

// String returns the timeframe code.
func (tf Timeframe) String() string { return string(tf) }
