package intent

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

func testSchema() *domain.SignalSchema {
	return &domain.SignalSchema{
		StrategyID:  "test_strat",
		StrategyTag: "TST",
		Version:     "1.0.0",
		Columns: []domain.ColumnSpec{
			{Name: "timestamp", Dtype: domain.DtypeTimestamp, Kind: domain.KindBase},
			{Name: "sig_score", Dtype: domain.DtypeFloat, Nullable: true, Kind: domain.KindStrategy},
			{Name: "dbg_note", Dtype: domain.DtypeString, Nullable: true, Kind: domain.KindStrategy},
			{Name: "sig_long", Dtype: domain.DtypeBool, Kind: domain.KindStrategy},
		},
	}
}

func activeRow(ts time.Time, templateID string, side domain.SignalSide) domain.SignalRow {
	entry, stop, take := 100.5, 99.5, 102.5
	return domain.SignalRow{
		Ts: ts, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10,
		Symbol: "APP", Timeframe: "M5",
		SignalSide: &side, SignalReason: "pattern",
		EntryPrice: &entry, StopPrice: &stop, TakeProfitPrice: &take,
		TemplateID: templateID, OCOGroupID: templateID + "-OCO",
		Extra: map[string]domain.Cell{
			"sig_score": domain.FloatCell(0.75),
			"dbg_note":  domain.StringCell("n"),
			"sig_long":  domain.BoolCell(side == domain.SignalLong),
		},
	}
}

func frameWith(rows ...domain.SignalRow) *domain.SignalFrame {
	return &domain.SignalFrame{Schema: testSchema(), Rows: rows}
}

// 2025-12-15 is a Monday; 14:30 UTC is the 09:30 ET open under EST.
var mondayOpen = time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC)

func TestGenerate_CanonicalOrderAndSessionEnd(t *testing.T) {
	// Rows deliberately out of canonical order.
	frame := frameWith(
		activeRow(mondayOpen.Add(10*time.Minute), "T-3", domain.SignalLong),
		activeRow(mondayOpen, "T-2", domain.SignalLong),
		activeRow(mondayOpen, "T-1", domain.SignalShort),
	)
	out, err := Generate(frame, Config{StrategyID: "test_strat", StrategyVersion: "1.0.0"})
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	assert.Equal(t, "T-1", out.Intents[0].TemplateID)
	assert.Equal(t, "T-2", out.Intents[1].TemplateID)
	assert.Equal(t, "T-3", out.Intents[2].TemplateID)
	assert.Equal(t, domain.SideSell, out.Intents[0].Side)

	// session_end default: 16:00 ET on the signal day, 21:00 UTC under EST.
	sessionClose := time.Date(2025, 12, 15, 21, 0, 0, 0, time.UTC)
	require.NotNil(t, out.Intents[0].OrderValidToTs)
	assert.True(t, out.Intents[0].OrderValidToTs.Equal(sessionClose))
	assert.True(t, out.Intents[0].OrderValidFromTs.Equal(mondayOpen))
}

func TestGenerate_ValidityPolicies(t *testing.T) {
	frame := frameWith(activeRow(mondayOpen, "T-1", domain.SignalLong))

	fixed, err := Generate(frame, Config{
		OrderValidityPolicy: ValidityFixedMinutes, FixedValidMinutes: 45, TimeframeMinutes: 5,
	})
	require.NoError(t, err)
	assert.True(t, fixed.Intents[0].OrderValidToTs.Equal(mondayOpen.Add(45*time.Minute)))

	oneBar, err := Generate(frame, Config{
		OrderValidityPolicy: ValidityOneBar, TimeframeMinutes: 5,
	})
	require.NoError(t, err)
	assert.True(t, oneBar.Intents[0].OrderValidToTs.Equal(mondayOpen.Add(5*time.Minute)))

	nextBar, err := Generate(frame, Config{
		ValidFromPolicy: ValidFromNextBar, TimeframeMinutes: 5,
	})
	require.NoError(t, err)
	assert.True(t, nextBar.Intents[0].OrderValidFromTs.Equal(mondayOpen.Add(5*time.Minute)))
}

func TestGenerate_PolicyValidation(t *testing.T) {
	frame := frameWith(activeRow(mondayOpen, "T-1", domain.SignalLong))

	_, err := Generate(frame, Config{OrderValidityPolicy: "forever"})
	var contract *domain.IntentContractError
	require.ErrorAs(t, err, &contract)

	_, err = Generate(frame, Config{OrderValidityPolicy: ValidityFixedMinutes})
	require.ErrorAs(t, err, &contract)
	assert.Contains(t, contract.Error(), "positive minute budget")

	_, err = Generate(frame, Config{OrderValidityPolicy: ValidityOneBar})
	require.ErrorAs(t, err, &contract)
	assert.Contains(t, contract.Error(), "timeframe minutes")
}

func TestGenerate_MissingOCOGroupIsFatal(t *testing.T) {
	row := activeRow(mondayOpen, "T-1", domain.SignalLong)
	row.OCOGroupID = ""
	_, err := Generate(frameWith(row), Config{})
	var contract *domain.IntentContractError
	require.ErrorAs(t, err, &contract)
	assert.Equal(t, "T-1", contract.TemplateID)
}

func TestGenerate_ContextColumnsSorted(t *testing.T) {
	out, err := Generate(frameWith(activeRow(mondayOpen, "T-1", domain.SignalLong)), Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{"dbg_note", "sig_long", "sig_score"}, out.ContextColumns)
}

func TestHash_InputOrderInsensitive(t *testing.T) {
	a := frameWith(
		activeRow(mondayOpen, "T-1", domain.SignalLong),
		activeRow(mondayOpen.Add(5*time.Minute), "T-2", domain.SignalLong),
	)
	b := frameWith(
		activeRow(mondayOpen.Add(5*time.Minute), "T-2", domain.SignalLong),
		activeRow(mondayOpen, "T-1", domain.SignalLong),
	)
	fa, err := Generate(a, Config{})
	require.NoError(t, err)
	fb, err := Generate(b, Config{})
	require.NoError(t, err)

	ha, err := Hash(fa)
	require.NoError(t, err)
	hb, err := Hash(fb)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestCanonicalCSV_EmptyFrameIsStable(t *testing.T) {
	empty := &domain.IntentFrame{}
	h1, err := Hash(empty)
	require.NoError(t, err)
	h2, err := Hash(&domain.IntentFrame{})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	data, err := CanonicalCSV(empty)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "template_id,signal_ts,trigger_ts_utc,symbol,side"))
}

func TestCanonicalCSV_TimestampsAreUTC(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	out, err := Generate(frameWith(activeRow(mondayOpen.In(berlin), "T-1", domain.SignalLong)), Config{})
	require.NoError(t, err)

	data, err := CanonicalCSV(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2025-12-15T14:30:00Z")
	assert.NotContains(t, string(data), "+01:00")
}
