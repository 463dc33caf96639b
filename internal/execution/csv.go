package execution

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/fsio"
)

// tradeColumns is the fixed snake_case column order of trades.csv.
var tradeColumns = []string{
	"symbol", "side", "qty", "entry_ts", "entry_price", "exit_ts", "exit_price", "pnl", "reason",
}

func fmtF(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func fmtT(ts time.Time) string { return ts.UTC().Format(time.RFC3339) }

// WriteTradesCSV persists trades.csv.
func WriteTradesCSV(path string, trades []domain.Trade) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(tradeColumns); err != nil {
		return err
	}
	for _, t := range trades {
		rec := []string{
			t.Symbol, string(t.Side), fmtF(t.Qty),
			fmtT(t.EntryTs), fmtF(t.EntryPrice),
			fmtT(t.ExitTs), fmtF(t.ExitPrice),
			fmtF(t.Pnl), t.Reason,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return fsio.WriteFileAtomic(path, buf.Bytes())
}

// WriteEquityCSV persists equity_curve.csv.
func WriteEquityCSV(path string, points []domain.EquityPoint) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"ts", "equity", "drawdown_pct"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := w.Write([]string{fmtT(p.Ts), fmtF(p.Equity), fmtF(p.DrawdownPct)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return fsio.WriteFileAtomic(path, buf.Bytes())
}

// WriteLedgerCSV persists portfolio_ledger.csv.
func WriteLedgerCSV(path string, entries []domain.LedgerEntry) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"seq", "timestamp", "cash"}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.Write([]string{strconv.Itoa(e.Seq), fmtT(e.Timestamp), fmtF(e.Cash)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return fsio.WriteFileAtomic(path, buf.Bytes())
}
