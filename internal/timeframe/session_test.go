package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMarketLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := MarketLocation()
	require.NoError(t, err)
	return loc
}

func TestExpectedRTHGrid_FullDayM5(t *testing.T) {
	loc := mustMarketLocation(t)
	// Monday 2025-12-15, 09:30 ET == 14:30 UTC (EST).
	first := time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC)
	last := time.Date(2025, 12, 15, 20, 55, 0, 0, time.UTC)

	grid := ExpectedRTHGrid(first, last, 5, loc)
	require.Len(t, grid, 78)
	assert.Equal(t, first, grid[0])
	assert.Equal(t, last, grid[len(grid)-1])
}

func TestExpectedRTHGrid_SkipsWeekend(t *testing.T) {
	loc := mustMarketLocation(t)
	// Friday 2025-12-12 15:55 ET through Monday 2025-12-15 09:35 ET.
	first := time.Date(2025, 12, 12, 20, 55, 0, 0, time.UTC)
	last := time.Date(2025, 12, 15, 14, 35, 0, 0, time.UTC)

	grid := ExpectedRTHGrid(first, last, 5, loc)
	// Friday 15:55 + Monday 09:30 and 09:35. Nothing on Sat/Sun.
	require.Len(t, grid, 3)
	assert.Equal(t, time.Friday, grid[0].In(loc).Weekday())
	assert.Equal(t, time.Monday, grid[1].In(loc).Weekday())
}

func TestInRTH(t *testing.T) {
	loc := mustMarketLocation(t)
	tests := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"open bar", time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC), true},
		{"last bar before close", time.Date(2025, 12, 15, 20, 55, 0, 0, time.UTC), true},
		{"close boundary excluded", time.Date(2025, 12, 15, 21, 0, 0, 0, time.UTC), false},
		{"premarket", time.Date(2025, 12, 15, 13, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2025, 12, 13, 15, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InRTH(tt.ts, loc))
		})
	}
}

func TestSessionEnd(t *testing.T) {
	loc := mustMarketLocation(t)

	// Mid-session signal resolves to the same day's close, 16:00 ET == 21:00 UTC.
	ts := time.Date(2025, 12, 15, 15, 0, 0, 0, time.UTC)
	end, err := SessionEnd(ts, loc, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 15, 21, 0, 0, 0, time.UTC), end)

	// A signal after the close rolls to the next weekday.
	ts = time.Date(2025, 12, 12, 22, 30, 0, 0, time.UTC) // Friday post-close
	end, err = SessionEnd(ts, loc, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 15, 21, 0, 0, 0, time.UTC), end)

	// An explicit filter window overrides the default close.
	ts = time.Date(2025, 12, 15, 15, 0, 0, 0, time.UTC)
	end, err = SessionEnd(ts, loc, []SessionWindow{{Start: "09:30", End: "12:00"}})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 15, 17, 0, 0, 0, time.UTC), end)
}

func TestMarketDayAndDayStartUTC(t *testing.T) {
	loc := mustMarketLocation(t)

	// 00:30 UTC is still the previous market day in New York.
	ts := time.Date(2025, 12, 16, 0, 30, 0, 0, time.UTC)
	day := MarketDay(ts, loc)
	assert.Equal(t, 15, day.Day())

	start := DayStartUTC(ts)
	assert.Equal(t, time.Date(2025, 12, 16, 0, 0, 0, 0, time.UTC), start)
}
