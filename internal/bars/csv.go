package bars

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

// CanonicalColumns is the bar column order used by every CSV surface.
var CanonicalColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the bar timestamp renderings seen in producer and
// snapshot files and normalizes to UTC. Layouts without an offset are
// interpreted as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// ReadCSV decodes OHLCV bars from r. Headers are case-insensitive; the six
// canonical columns are required, extra columns are ignored.
func ReadCSV(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range CanonicalColumns {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var out []domain.Bar
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bar, err := parseRecord(record, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, bar)
	}
	return out, nil
}

func parseRecord(record []string, idx map[string]int) (domain.Bar, error) {
	field := func(name string) string { return strings.TrimSpace(record[idx[name]]) }

	ts, err := ParseTimestamp(field("timestamp"))
	if err != nil {
		return domain.Bar{}, err
	}
	var prices [4]float64
	for i, name := range []string{"open", "high", "low", "close"} {
		v, err := strconv.ParseFloat(field(name), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("column %s: %w", name, err)
		}
		prices[i] = v
	}
	vol, err := strconv.ParseInt(field("volume"), 10, 64)
	if err != nil {
		// Some producers render volume as a float.
		f, ferr := strconv.ParseFloat(field("volume"), 64)
		if ferr != nil {
			return domain.Bar{}, fmt.Errorf("column volume: %w", err)
		}
		vol = int64(f)
	}
	return domain.Bar{Ts: ts, Open: prices[0], High: prices[1], Low: prices[2], Close: prices[3], Volume: vol}, nil
}

// WriteCSV renders bars in the canonical order: RFC3339 UTC timestamps,
// shortest round-trip floats.
func WriteCSV(w io.Writer, bars []domain.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CanonicalColumns); err != nil {
		return err
	}
	for _, b := range bars {
		record := []string{
			b.Ts.UTC().Format(time.RFC3339),
			strconv.FormatFloat(b.Open, 'g', -1, 64),
			strconv.FormatFloat(b.High, 'g', -1, 64),
			strconv.FormatFloat(b.Low, 'g', -1, 64),
			strconv.FormatFloat(b.Close, 'g', -1, 64),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
