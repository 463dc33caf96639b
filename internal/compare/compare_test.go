package compare

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const intentHeader = "template_id,signal_ts,trigger_ts_utc,symbol,side,oco_group_id,entry_price,stop_price,take_profit_price,order_valid_from_ts,order_valid_to_ts,exit_ts,exit_reason,strategy_id,strategy_version\n"

func writeRun(t *testing.T, intents, fills, trades string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events_intent.csv"), []byte(intents), 0o644))
	if fills != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "fills.csv"), []byte(fills), 0o644))
	}
	if trades != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "trades.csv"), []byte(trades), 0o644))
	}
	return dir
}

func intentRow(template, ts, side, entry string) string {
	return template + "," + ts + "," + ts + ",APP," + side + "," + template + "-OCO," +
		entry + ",99.5,102.5,,,,," + "test_strat,1.0.0\n"
}

func TestCompare_IdenticalRuns(t *testing.T) {
	intents := intentHeader +
		intentRow("T-1", "2025-12-15T14:30:00Z", "BUY", "100.5") +
		intentRow("T-2", "2025-12-15T14:35:00Z", "SELL", "101.5")
	fills := "template_id,symbol,fill_ts,fill_price,reason\n" +
		"T-1,APP,2025-12-15T14:30:00Z,100.5,signal_fill\n"
	trades := "symbol,side,qty,entry_ts,entry_price,exit_ts,exit_price,pnl,reason\n" +
		"APP,BUY,1,2025-12-15T14:30:00Z,100.5,2025-12-15T15:30:00Z,102.5,2,take_profit_hit\n"

	a := writeRun(t, intents, fills, trades)
	b := writeRun(t, intents, fills, trades)

	rep, err := Compare(a, b)
	require.NoError(t, err)
	assert.Len(t, rep.Common, 2)
	assert.Zero(t, rep.DivergedCount)
	assert.Empty(t, rep.OnlyA)
	assert.Empty(t, rep.OnlyB)
	assert.Equal(t, 1, rep.FillsA)
	assert.Equal(t, 1, rep.TradesB)
	assert.Equal(t, "signal_fill", rep.Common[0].FillReason[0])
	assert.Equal(t, "take_profit_hit", rep.Common[0].ExitReason[1])
}

func TestCompare_PriceDivergence(t *testing.T) {
	a := writeRun(t, intentHeader+intentRow("T-1", "2025-12-15T14:30:00Z", "BUY", "100.5"), "", "")
	b := writeRun(t, intentHeader+intentRow("T-1", "2025-12-15T14:30:00Z", "BUY", "100.75"), "", "")

	rep, err := Compare(a, b)
	require.NoError(t, err)
	require.Len(t, rep.Common, 1)
	assert.Equal(t, 1, rep.DivergedCount)
	assert.True(t, rep.Common[0].Divergent)

	md := rep.Markdown()
	assert.Contains(t, md, "Divergent intents")
	assert.Contains(t, md, "entry_price")
}

func TestCompare_SubToleranceDeltaIsEqual(t *testing.T) {
	a := writeRun(t, intentHeader+intentRow("T-1", "2025-12-15T14:30:00Z", "BUY", "100.5"), "", "")
	b := writeRun(t, intentHeader+intentRow("T-1", "2025-12-15T14:30:00Z", "BUY", "100.5000000001"), "", "")

	rep, err := Compare(a, b)
	require.NoError(t, err)
	assert.Zero(t, rep.DivergedCount)
}

func TestCompare_AsymmetricIntents(t *testing.T) {
	a := writeRun(t, intentHeader+
		intentRow("T-1", "2025-12-15T14:30:00Z", "BUY", "100.5")+
		intentRow("T-2", "2025-12-15T14:35:00Z", "BUY", "100.5"), "", "")
	b := writeRun(t, intentHeader+
		intentRow("T-1", "2025-12-15T14:30:00Z", "BUY", "100.5")+
		intentRow("T-9", "2025-12-15T14:40:00Z", "SELL", "100.5"), "", "")

	rep, err := Compare(a, b)
	require.NoError(t, err)
	assert.Len(t, rep.Common, 1)
	require.Len(t, rep.OnlyA, 1)
	require.Len(t, rep.OnlyB, 1)
	assert.Contains(t, rep.OnlyA[0], "14:35:00Z")
	assert.Contains(t, rep.OnlyB[0], "14:40:00Z")

	md := rep.Markdown()
	assert.Contains(t, md, "only in A")
	assert.Contains(t, md, "only in B")
}

func TestCompare_TemplateIDsMayDiffer(t *testing.T) {
	// The join is on (symbol, side, trigger ts); run-local template ids
	// do not have to match.
	a := writeRun(t, intentHeader+intentRow("T-1", "2025-12-15T14:30:00Z", "BUY", "100.5"), "", "")
	b := writeRun(t, intentHeader+intentRow("X-7", "2025-12-15T14:30:00Z", "BUY", "100.5"), "", "")

	rep, err := Compare(a, b)
	require.NoError(t, err)
	require.Len(t, rep.Common, 1)
	assert.Equal(t, "T-1", rep.Common[0].TemplateA)
	assert.Equal(t, "X-7", rep.Common[0].TemplateB)
}

func TestWriteArtifacts(t *testing.T) {
	a := writeRun(t, intentHeader+intentRow("T-1", "2025-12-15T14:30:00Z", "BUY", "100.5"), "", "")
	b := writeRun(t, intentHeader+intentRow("T-1", "2025-12-15T14:30:00Z", "BUY", "100.6"), "", "")

	rep, err := Compare(a, b)
	require.NoError(t, err)

	out := t.TempDir()
	require.NoError(t, rep.WriteArtifacts(out))
	md, err := os.ReadFile(filepath.Join(out, "compare_report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "Run comparison")

	common, err := os.ReadFile(filepath.Join(out, "compare_common.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(common), "entry_price_a")
	assert.Contains(t, string(common), "true")
}

func TestCompare_MissingIntentFileErrors(t *testing.T) {
	a := writeRun(t, intentHeader, "", "")
	_, err := Compare(a, t.TempDir())
	assert.Error(t, err)
}
