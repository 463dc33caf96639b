package fills

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

func gridBars(start time.Time, n int) *domain.BarFrame {
	f := &domain.BarFrame{Symbol: "APP", Timeframe: "M5"}
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * 5 * time.Minute)
		f.Bars = append(f.Bars, domain.Bar{
			Ts: ts, Open: 100, High: 101, Low: 99, Close: 100 + float64(i), Volume: 10,
		})
	}
	return f
}

func intentAt(ts time.Time, templateID string) domain.Intent {
	return domain.Intent{
		TemplateID: templateID, SignalTs: ts, TriggerTs: ts,
		Symbol: "APP", Side: domain.SideBuy, OCOGroupID: templateID + "-OCO",
		EntryPrice: 100.5, StopPrice: 99.5, TakeProfitPrice: 102.5,
	}
}

var gridStart = time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC)

func TestGenerate_FillsAtSignalBarClose(t *testing.T) {
	bars := gridBars(gridStart, 4)
	intents := &domain.IntentFrame{Intents: []domain.Intent{
		intentAt(gridStart, "T-1"),
		intentAt(gridStart.Add(10*time.Minute), "T-2"),
	}}

	out, err := Generate(intents, bars)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	assert.Equal(t, "T-1", out.Fills[0].TemplateID)
	assert.True(t, out.Fills[0].FillTs.Equal(gridStart))
	assert.Equal(t, 100.0, out.Fills[0].FillPrice)
	assert.Equal(t, domain.FillSignal, out.Fills[0].Reason)

	assert.Equal(t, 102.0, out.Fills[1].FillPrice)
}

func TestGenerate_OffGridIntentIsRejected(t *testing.T) {
	bars := gridBars(gridStart, 4)
	intents := &domain.IntentFrame{Intents: []domain.Intent{
		intentAt(gridStart.Add(2*time.Minute), "T-1"),
		intentAt(gridStart.Add(5*time.Minute), "T-2"),
	}}

	out, err := Generate(intents, bars)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "T-2", out.Fills[0].TemplateID)
}

func TestGenerate_EmptyBarsIsFatal(t *testing.T) {
	intents := &domain.IntentFrame{Intents: []domain.Intent{intentAt(gridStart, "T-1")}}
	_, err := Generate(intents, &domain.BarFrame{})
	var modelErr *domain.FillModelError
	require.ErrorAs(t, err, &modelErr)
}

func TestGenerate_EmptyIntentsYieldsStableHash(t *testing.T) {
	bars := gridBars(gridStart, 1)
	out, err := Generate(&domain.IntentFrame{}, bars)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())

	h1, err := Hash(out)
	require.NoError(t, err)
	h2, err := Hash(&domain.FillFrame{})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestCanonicalCSV_Shape(t *testing.T) {
	bars := gridBars(gridStart, 1)
	out, err := Generate(&domain.IntentFrame{Intents: []domain.Intent{intentAt(gridStart, "T-1")}}, bars)
	require.NoError(t, err)

	data, err := CanonicalCSV(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "template_id,symbol,fill_ts,fill_price,reason", lines[0])
	assert.Equal(t, "T-1,APP,2025-12-15T14:30:00Z,100,signal_fill", lines[1])
}
