package bars

import (
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

// barRow is the physical parquet schema for bar files. Timestamps are
// stored as int64 epoch microseconds UTC so that footer statistics decode
// without logical-type ambiguity.
type barRow struct {
	Timestamp int64   `parquet:"timestamp"`
	Open      float64 `parquet:"open,snappy"`
	High      float64 `parquet:"high,snappy"`
	Low       float64 `parquet:"low,snappy"`
	Close     float64 `parquet:"close,snappy"`
	Volume    int64   `parquet:"volume,snappy"`
}

func toEpochMicros(ts time.Time) int64 { return ts.UTC().UnixMicro() }

func fromEpochMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

// ReadParquet loads a bar file written by this codec (or by the producer,
// which shares the column contract).
func ReadParquet(path string) ([]domain.Bar, error) {
	rows, err := parquet.ReadFile[barRow](path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Bar, len(rows))
	for i, r := range rows {
		out[i] = domain.Bar{
			Ts:     fromEpochMicros(r.Timestamp),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return out, nil
}

// WriteParquet writes bars with the usual temp-file + rename discipline.
func WriteParquet(path string, barsIn []domain.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	rows := make([]barRow, len(barsIn))
	for i, b := range barsIn {
		rows[i] = barRow{
			Timestamp: toEpochMicros(b.Ts),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[barRow](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ParquetMeta is the footer summary the coverage gate reads. It never
// touches row data.
type ParquetMeta struct {
	Rows    int64
	FirstTs time.Time
	LastTs  time.Time
	HasTs   bool
}

// ReadParquetMeta extracts row count and the timestamp column bounds from
// the file footer statistics. When statistics are absent it falls back to
// a full column read.
func ReadParquetMeta(path string) (*ParquetMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, err
	}

	meta := &ParquetMeta{Rows: pf.NumRows()}

	tsColumn := -1
	for i, field := range pf.Schema().Fields() {
		if field.Name() == "timestamp" {
			tsColumn = i
			break
		}
	}
	if tsColumn < 0 || meta.Rows == 0 {
		return meta, nil
	}

	var first, last int64
	seen := false
	for _, rg := range pf.RowGroups() {
		chunk := rg.ColumnChunks()[tsColumn]
		ci, err := chunk.ColumnIndex()
		if err != nil || ci == nil || ci.NumPages() == 0 {
			continue
		}
		for page := 0; page < ci.NumPages(); page++ {
			minV := ci.MinValue(page)
			maxV := ci.MaxValue(page)
			if minV.IsNull() || maxV.IsNull() {
				continue
			}
			lo, hi := minV.Int64(), maxV.Int64()
			if !seen || lo < first {
				first = lo
			}
			if !seen || hi > last {
				last = hi
			}
			seen = true
		}
	}
	if !seen {
		// No page index in the footer; degrade to a column scan.
		rows, err := ReadParquet(path)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return meta, nil
		}
		meta.FirstTs = rows[0].Ts
		meta.LastTs = rows[len(rows)-1].Ts
		for _, b := range rows {
			if b.Ts.Before(meta.FirstTs) {
				meta.FirstTs = b.Ts
			}
			if b.Ts.After(meta.LastTs) {
				meta.LastTs = b.Ts
			}
		}
		meta.HasTs = true
		return meta, nil
	}

	meta.FirstTs = fromEpochMicros(first)
	meta.LastTs = fromEpochMicros(last)
	meta.HasTs = true
	return meta, nil
}
