package gates

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

// rthSessionBars builds a full M5 regular-hours session on Monday
// 2025-12-15 (78 bars).
func rthSessionBars(t *testing.T) *domain.BarFrame {
	t.Helper()
	loc, err := timeframe.MarketLocation()
	require.NoError(t, err)
	day := time.Date(2025, 12, 15, 12, 0, 0, 0, time.UTC)
	grid := timeframe.ExpectedRTHGrid(day, day.Add(24*time.Hour), 5, loc)
	require.NotEmpty(t, grid)

	f := &domain.BarFrame{Symbol: "APP", Timeframe: "M5"}
	for _, ts := range grid {
		f.Bars = append(f.Bars, domain.Bar{Ts: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10})
	}
	return f
}

func TestCheckSLA_CleanSnapshotPasses(t *testing.T) {
	res := CheckSLA(SLARequest{
		Bars: rthSessionBars(t), StrategyID: "test_strat",
		BaseTimeframe: timeframe.M5, LookbackBars: 20, RequiresConsecutiveBars: true,
	})
	assert.True(t, res.Passed())
	assert.Empty(t, res.Violations)
	assert.Equal(t, 78, res.RowCount)
}

func TestCheckSLA_NaNOHLCIsFatal(t *testing.T) {
	frame := rthSessionBars(t)
	frame.Bars[3].Close = math.NaN()

	res := CheckSLA(SLARequest{Bars: frame, StrategyID: "test_strat", BaseTimeframe: timeframe.M5})
	assert.False(t, res.Passed())
	assert.Contains(t, res.FatalNames(), "no_nan_ohlc")
}

func TestCheckSLA_CloseOutsideBarRangeIsFatal(t *testing.T) {
	frame := rthSessionBars(t)
	// A close above the bar's high would produce a fill priced outside
	// what the market traded.
	frame.Bars[7].Close = 150

	res := CheckSLA(SLARequest{Bars: frame, StrategyID: "test_strat", BaseTimeframe: timeframe.M5})
	assert.False(t, res.Passed())
	assert.Contains(t, res.FatalNames(), "ohlc_range")
}

func TestCheckSLA_LowAboveOpenIsFatal(t *testing.T) {
	frame := rthSessionBars(t)
	frame.Bars[12].Low = frame.Bars[12].Open + 0.5

	res := CheckSLA(SLARequest{Bars: frame, StrategyID: "test_strat", BaseTimeframe: timeframe.M5})
	assert.Contains(t, res.FatalNames(), "ohlc_range")
}

func TestCheckSLA_DuplicateTimestampsAreFatal(t *testing.T) {
	frame := rthSessionBars(t)
	frame.Bars[4].Ts = frame.Bars[3].Ts

	res := CheckSLA(SLARequest{Bars: frame, StrategyID: "test_strat", BaseTimeframe: timeframe.M5})
	assert.Contains(t, res.FatalNames(), "no_dupe_index")
}

func TestCheckSLA_TailGapFatalOnlyForConsecutiveStrategies(t *testing.T) {
	frame := rthSessionBars(t)
	// Punch a hole into the lookback tail.
	frame.Bars = append(frame.Bars[:70], frame.Bars[71:]...)

	withReq := CheckSLA(SLARequest{
		Bars: frame, StrategyID: "test_strat",
		BaseTimeframe: timeframe.M5, LookbackBars: 20, RequiresConsecutiveBars: true,
	})
	assert.Contains(t, withReq.FatalNames(), "m5_completeness")

	withoutReq := CheckSLA(SLARequest{
		Bars: frame, StrategyID: "test_strat",
		BaseTimeframe: timeframe.M5, LookbackBars: 20,
	})
	assert.True(t, withoutReq.Passed())
}

func TestCheckSLA_InsufficientLookbackIsFatal(t *testing.T) {
	frame := rthSessionBars(t)
	frame.Bars = frame.Bars[:10]

	res := CheckSLA(SLARequest{
		Bars: frame, StrategyID: "test_strat",
		BaseTimeframe: timeframe.M5, LookbackBars: 20, RequiresConsecutiveBars: true,
	})
	require.False(t, res.Passed())
	assert.Contains(t, res.Violations[0].Message, "insufficient data")
}

func TestCheckSLA_SparseSpanWarnsButPasses(t *testing.T) {
	// Ten bars spread over ten calendar days is far below the expected
	// density; the ratio check warns without blocking.
	f := &domain.BarFrame{Symbol: "APP", Timeframe: "M5"}
	start := time.Date(2025, 12, 1, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		f.Bars = append(f.Bars, domain.Bar{Ts: start.AddDate(0, 0, i), Open: 100, High: 101, Low: 99, Close: 100, Volume: 10})
	}

	res := CheckSLA(SLARequest{Bars: f, StrategyID: "test_strat", BaseTimeframe: timeframe.M5})
	assert.True(t, res.Passed())
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "ratio_completeness", res.Violations[0].Name)
	assert.Equal(t, SeverityWarning, res.Violations[0].Severity)
}
