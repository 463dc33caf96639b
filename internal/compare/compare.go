// Package compare aligns two run directories for forensics: intents are
// joined on (symbol, side, trigger_ts_utc), price deltas surfaced, and
// fills and trades cross-referenced by template id.
package compare

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/CyberForge275/traderunner-sub002/internal/fsio"
)

// PriceTolerance is the delta below which two prices count as equal.
const PriceTolerance = 1e-6

// table is a loosely typed CSV load: header plus rows of column→value.
type table struct {
	columns []string
	rows    []map[string]string
}

func loadCSV(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return &table{}, nil
	}
	t := &table{columns: records[0]}
	for _, rec := range records[1:] {
		row := make(map[string]string, len(t.columns))
		for i, col := range t.columns {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// joinKey is the intent alignment key. trigger_ts_utc falls back to
// signal_ts when a run predates the trigger column.
func joinKey(row map[string]string) string {
	ts := row["trigger_ts_utc"]
	if ts == "" {
		ts = row["signal_ts"]
	}
	return row["symbol"] + "|" + row["side"] + "|" + ts
}

// PriceDelta is one diffed price column on a common intent.
type PriceDelta struct {
	Column string
	A, B   float64
	Delta  float64
}

// CommonIntent is one intent present in both runs.
type CommonIntent struct {
	Key        string
	TemplateA  string
	TemplateB  string
	Deltas     []PriceDelta
	Divergent  bool
	FillReason [2]string
	ExitReason [2]string
	Pnl        [2]string
}

// Report is the full comparison outcome.
type Report struct {
	RunA, RunB    string
	IntentsA      int
	IntentsB      int
	Common        []CommonIntent
	OnlyA         []string
	OnlyB         []string
	FillsA        int
	FillsB        int
	TradesA       int
	TradesB       int
	DivergedCount int
}

var priceColumns = []string{"entry_price", "stop_price", "take_profit_price"}

// Compare loads both run directories and aligns them.
func Compare(runDirA, runDirB string) (*Report, error) {
	intentsA, err := loadCSV(filepath.Join(runDirA, "events_intent.csv"))
	if err != nil {
		return nil, err
	}
	intentsB, err := loadCSV(filepath.Join(runDirB, "events_intent.csv"))
	if err != nil {
		return nil, err
	}

	rep := &Report{
		RunA:     runDirA,
		RunB:     runDirB,
		IntentsA: len(intentsA.rows),
		IntentsB: len(intentsB.rows),
	}

	byKeyB := make(map[string]map[string]string, len(intentsB.rows))
	for _, row := range intentsB.rows {
		byKeyB[joinKey(row)] = row
	}
	fillsA := indexByTemplate(runDirA, "fills.csv", &rep.FillsA)
	fillsB := indexByTemplate(runDirB, "fills.csv", &rep.FillsB)
	tradesA := indexTradesByEntry(runDirA, &rep.TradesA)
	tradesB := indexTradesByEntry(runDirB, &rep.TradesB)

	seenB := make(map[string]bool)
	for _, rowA := range intentsA.rows {
		key := joinKey(rowA)
		rowB, ok := byKeyB[key]
		if !ok {
			rep.OnlyA = append(rep.OnlyA, key)
			continue
		}
		seenB[key] = true

		ci := CommonIntent{Key: key, TemplateA: rowA["template_id"], TemplateB: rowB["template_id"]}
		for _, col := range priceColumns {
			a, aErr := strconv.ParseFloat(rowA[col], 64)
			b, bErr := strconv.ParseFloat(rowB[col], 64)
			if aErr != nil || bErr != nil {
				continue
			}
			d := math.Abs(a - b)
			ci.Deltas = append(ci.Deltas, PriceDelta{Column: col, A: a, B: b, Delta: d})
			if d > PriceTolerance {
				ci.Divergent = true
			}
		}
		if f, ok := fillsA[ci.TemplateA]; ok {
			ci.FillReason[0] = f["reason"]
		}
		if f, ok := fillsB[ci.TemplateB]; ok {
			ci.FillReason[1] = f["reason"]
		}
		if t, ok := tradesA[rowA["symbol"]+"|"+rowA["signal_ts"]]; ok {
			ci.ExitReason[0] = t["reason"]
			ci.Pnl[0] = t["pnl"]
		}
		if t, ok := tradesB[rowB["symbol"]+"|"+rowB["signal_ts"]]; ok {
			ci.ExitReason[1] = t["reason"]
			ci.Pnl[1] = t["pnl"]
		}
		if ci.Divergent {
			rep.DivergedCount++
		}
		rep.Common = append(rep.Common, ci)
	}
	for _, row := range intentsB.rows {
		if key := joinKey(row); !seenB[key] {
			rep.OnlyB = append(rep.OnlyB, key)
		}
	}
	sort.Strings(rep.OnlyA)
	sort.Strings(rep.OnlyB)
	return rep, nil
}

func indexByTemplate(runDir, file string, count *int) map[string]map[string]string {
	t, err := loadCSV(filepath.Join(runDir, file))
	if err != nil {
		return nil
	}
	*count = len(t.rows)
	out := make(map[string]map[string]string, len(t.rows))
	for _, row := range t.rows {
		out[row["template_id"]] = row
	}
	return out
}

// indexTradesByEntry keys trades on (symbol, entry_ts); trades.csv does
// not carry template ids, entry time is the stable correlate.
func indexTradesByEntry(runDir string, count *int) map[string]map[string]string {
	t, err := loadCSV(filepath.Join(runDir, "trades.csv"))
	if err != nil {
		return nil
	}
	*count = len(t.rows)
	out := make(map[string]map[string]string, len(t.rows))
	for _, row := range t.rows {
		out[row["symbol"]+"|"+row["entry_ts"]] = row
	}
	return out
}

// WriteArtifacts renders the markdown report and the common-rows CSV
// into outDir.
func (r *Report) WriteArtifacts(outDir string) error {
	if err := fsio.WriteFileAtomic(filepath.Join(outDir, "compare_report.md"), []byte(r.Markdown())); err != nil {
		return err
	}
	return r.writeCommonCSV(filepath.Join(outDir, "compare_common.csv"))
}

// Markdown renders the human-readable report.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run comparison\n\n")
	fmt.Fprintf(&b, "- run A: `%s` (%d intents, %d fills, %d trades)\n", r.RunA, r.IntentsA, r.FillsA, r.TradesA)
	fmt.Fprintf(&b, "- run B: `%s` (%d intents, %d fills, %d trades)\n", r.RunB, r.IntentsB, r.FillsB, r.TradesB)
	fmt.Fprintf(&b, "- common intents: %d, divergent: %d, only A: %d, only B: %d\n\n",
		len(r.Common), r.DivergedCount, len(r.OnlyA), len(r.OnlyB))

	if r.DivergedCount > 0 {
		fmt.Fprintf(&b, "## Divergent intents (|delta| > %g)\n\n", PriceTolerance)
		fmt.Fprintf(&b, "| key | column | A | B | delta |\n|---|---|---:|---:|---:|\n")
		for _, ci := range r.Common {
			if !ci.Divergent {
				continue
			}
			for _, d := range ci.Deltas {
				if d.Delta > PriceTolerance {
					fmt.Fprintf(&b, "| %s | %s | %g | %g | %g |\n", ci.Key, d.Column, d.A, d.B, d.Delta)
				}
			}
		}
		b.WriteString("\n")
	}
	writeKeyList(&b, "only in A", r.OnlyA)
	writeKeyList(&b, "only in B", r.OnlyB)
	return b.String()
}

func writeKeyList(b *strings.Builder, label string, keys []string) {
	if len(keys) == 0 {
		return
	}
	fmt.Fprintf(b, "## Intents %s\n\n", label)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s\n", k)
	}
	b.WriteString("\n")
}

func (r *Report) writeCommonCSV(path string) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	header := []string{"key", "template_id_a", "template_id_b"}
	for _, col := range priceColumns {
		header = append(header, col+"_a", col+"_b", col+"_delta")
	}
	header = append(header, "fill_reason_a", "fill_reason_b", "exit_reason_a", "exit_reason_b", "pnl_a", "pnl_b", "divergent")
	if err := w.Write(header); err != nil {
		return err
	}
	for _, ci := range r.Common {
		rec := []string{ci.Key, ci.TemplateA, ci.TemplateB}
		deltaByCol := make(map[string]PriceDelta, len(ci.Deltas))
		for _, d := range ci.Deltas {
			deltaByCol[d.Column] = d
		}
		for _, col := range priceColumns {
			d, ok := deltaByCol[col]
			if !ok {
				rec = append(rec, "", "", "")
				continue
			}
			rec = append(rec,
				strconv.FormatFloat(d.A, 'g', -1, 64),
				strconv.FormatFloat(d.B, 'g', -1, 64),
				strconv.FormatFloat(d.Delta, 'g', -1, 64))
		}
		rec = append(rec, ci.FillReason[0], ci.FillReason[1],
			ci.ExitReason[0], ci.ExitReason[1], ci.Pnl[0], ci.Pnl[1],
			strconv.FormatBool(ci.Divergent))
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return fsio.WriteFileAtomic(path, []byte(sb.String()))
}
