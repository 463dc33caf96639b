package intent

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/fsio"
)

// fixedColumns is the deterministic leading column order of the canonical
// intent CSV. Context columns follow in their sorted order.
var fixedColumns = []string{
	"template_id",
	"signal_ts",
	"trigger_ts_utc",
	"symbol",
	"side",
	"oco_group_id",
	"entry_price",
	"stop_price",
	"take_profit_price",
	"order_valid_from_ts",
	"order_valid_to_ts",
	"exit_ts",
	"exit_reason",
	"strategy_id",
	"strategy_version",
}

func formatPrice(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func formatTs(ts time.Time) string { return ts.UTC().Format(time.RFC3339) }

func formatTsPtr(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return formatTs(*ts)
}

// CanonicalCSV renders the frame in its canonical byte form: fixed column
// order, ISO-8601 UTC timestamps, shortest round-trip floats, rows already
// sorted by the generator. Byte-identical content gives an identical hash.
func CanonicalCSV(f *domain.IntentFrame) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append(append([]string{}, fixedColumns...), f.ContextColumns...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, it := range f.Intents {
		rec := []string{
			it.TemplateID,
			formatTs(it.SignalTs),
			formatTs(it.TriggerTs),
			it.Symbol,
			string(it.Side),
			it.OCOGroupID,
			formatPrice(it.EntryPrice),
			formatPrice(it.StopPrice),
			formatPrice(it.TakeProfitPrice),
			formatTsPtr(it.OrderValidFromTs),
			formatTsPtr(it.OrderValidToTs),
			formatTsPtr(it.ExitTs),
			it.ExitReason,
			it.StrategyID,
			it.StrategyVersion,
		}
		for _, name := range f.ContextColumns {
			rec = append(rec, it.Context[name].Canonical())
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Hash returns the run's intent fingerprint: SHA-256 of the canonical CSV.
// An empty frame hashes its header row, so the empty fingerprint is stable.
func Hash(f *domain.IntentFrame) (string, error) {
	data, err := CanonicalCSV(f)
	if err != nil {
		return "", err
	}
	return fsio.SHA256Bytes(data), nil
}

// WriteCSV persists the canonical CSV as the events_intent artifact.
func WriteCSV(path string, f *domain.IntentFrame) (string, error) {
	data, err := CanonicalCSV(f)
	if err != nil {
		return "", err
	}
	if err := fsio.WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return fsio.SHA256Bytes(data), nil
}
