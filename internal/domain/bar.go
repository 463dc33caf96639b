package domain

import (
	"sort"
	"time"
)

// Bar is a single OHLCV observation. Timestamps are UTC instants.
type Bar struct {
	Ts     time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// BarFrame is an in-memory OHLCV table, sorted ascending by timestamp.
// It is read-only after load; pipeline stages never mutate a snapshot.
type BarFrame struct {
	Symbol    string
	Timeframe string
	Bars      []Bar
}

// Len returns the number of bars.
func (f *BarFrame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Bars)
}

// First returns the earliest bar, or false when the frame is empty.
func (f *BarFrame) First() (Bar, bool) {
	if f.Len() == 0 {
		return Bar{}, false
	}
	return f.Bars[0], true
}

// Last returns the latest bar, or false when the frame is empty.
func (f *BarFrame) Last() (Bar, bool) {
	if f.Len() == 0 {
		return Bar{}, false
	}
	return f.Bars[len(f.Bars)-1], true
}

// At returns the bar whose timestamp equals ts exactly.
func (f *BarFrame) At(ts time.Time) (Bar, bool) {
	i := sort.Search(f.Len(), func(i int) bool {
		return !f.Bars[i].Ts.Before(ts)
	})
	if i < f.Len() && f.Bars[i].Ts.Equal(ts) {
		return f.Bars[i], true
	}
	return Bar{}, false
}

// FloorAt returns the latest bar whose timestamp is <= ts.
func (f *BarFrame) FloorAt(ts time.Time) (Bar, bool) {
	i := sort.Search(f.Len(), func(i int) bool {
		return f.Bars[i].Ts.After(ts)
	})
	if i == 0 {
		return Bar{}, false
	}
	return f.Bars[i-1], true
}

// Slice returns the bars within [start, end] inclusive as a new frame
// sharing the backing array.
func (f *BarFrame) Slice(start, end time.Time) *BarFrame {
	lo := sort.Search(f.Len(), func(i int) bool {
		return !f.Bars[i].Ts.Before(start)
	})
	hi := sort.Search(f.Len(), func(i int) bool {
		return f.Bars[i].Ts.After(end)
	})
	return &BarFrame{Symbol: f.Symbol, Timeframe: f.Timeframe, Bars: f.Bars[lo:hi]}
}

// SortAscending orders bars by timestamp in place. Load paths call this
// once so that every downstream consumer can rely on monotonic order.
func (f *BarFrame) SortAscending() {
	sort.SliceStable(f.Bars, func(i, j int) bool {
		return f.Bars[i].Ts.Before(f.Bars[j].Ts)
	})
}
