// Package evidence cross-checks every trade against the bars snapshot:
// both legs must price inside the range of a real bar, and both must fall
// inside regular trading hours.
package evidence

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/fsio"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

// Status summarizes one trade's proof.
type Status string

const (
	StatusProven  Status = "PROVEN"
	StatusPartial Status = "PARTIAL"
	StatusNoProof Status = "NO_PROOF"
)

// Row is the evidence record for one trade.
type Row struct {
	Symbol             string    `json:"symbol"`
	EntryTs            time.Time `json:"entry_ts"`
	ExitTs             time.Time `json:"exit_ts"`
	EntryExecProven    bool      `json:"entry_exec_proven"`
	ExitExecProven     bool      `json:"exit_exec_proven"`
	RTHCompliant       bool      `json:"rth_compliant"`
	DataSliceIntegrity bool      `json:"data_slice_integrity"`
	Status             Status    `json:"status"`
}

// Check proves each trade leg against the snapshot. The matched bar for a
// leg is the latest bar at or before the leg timestamp; proof means the
// leg price lies in that bar's [low, high].
func Check(trades []domain.Trade, bars *domain.BarFrame) []Row {
	loc, locErr := timeframe.MarketLocation()

	rows := make([]Row, 0, len(trades))
	for _, t := range trades {
		r := Row{
			Symbol:             t.Symbol,
			EntryTs:            t.EntryTs,
			ExitTs:             t.ExitTs,
			DataSliceIntegrity: bars.Len() > 0,
		}
		entryBar, entryOK := bars.FloorAt(t.EntryTs)
		exitBar, exitOK := bars.FloorAt(t.ExitTs)
		if entryOK {
			r.EntryExecProven = entryBar.Low <= t.EntryPrice && t.EntryPrice <= entryBar.High
		}
		if exitOK {
			r.ExitExecProven = exitBar.Low <= t.ExitPrice && t.ExitPrice <= exitBar.High
		}
		if entryOK && exitOK && locErr == nil {
			r.RTHCompliant = timeframe.InRTH(entryBar.Ts, loc) && timeframe.InRTH(exitBar.Ts, loc)
		}
		switch {
		case !entryOK && !exitOK:
			r.Status = StatusNoProof
		case r.EntryExecProven && r.ExitExecProven:
			r.Status = StatusProven
		default:
			r.Status = StatusPartial
		}
		rows = append(rows, r)
	}
	return rows
}

var columns = []string{
	"symbol", "entry_ts", "exit_ts",
	"entry_exec_proven", "exit_exec_proven", "rth_compliant", "data_slice_integrity", "status",
}

// WriteCSV persists trade_evidence.csv.
func WriteCSV(path string, rows []Row) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Symbol,
			r.EntryTs.UTC().Format(time.RFC3339),
			r.ExitTs.UTC().Format(time.RFC3339),
			strconv.FormatBool(r.EntryExecProven),
			strconv.FormatBool(r.ExitExecProven),
			strconv.FormatBool(r.RTHCompliant),
			strconv.FormatBool(r.DataSliceIntegrity),
			string(r.Status),
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
