package bars

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/fsio"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

// SnapshotMeta is the JSON sidecar written next to every bars snapshot.
type SnapshotMeta struct {
	MarketTz      string `json:"market_tz"`
	Timeframe     string `json:"timeframe"`
	WarmupDays    int    `json:"warmup_days"`
	LookbackDays  int    `json:"lookback_days"`
	ExecBars      int    `json:"exec_bars"`
	SignalBars    int    `json:"signal_bars"`
	SessionMode   string `json:"session_mode"`
	OptionBSource string `json:"option_b_source"`
	ConsumerOnly  bool   `json:"consumer_only"`
}

// MetaFileName is the sidecar file name inside the run's bars directory.
const MetaFileName = "bars_meta.json"

// FetchRequest describes one snapshot materialization.
type FetchRequest struct {
	Symbol       string
	Timeframe    timeframe.Timeframe
	RequestedEnd time.Time
	LookbackDays int
	WarmupDays   int
	SessionMode  timeframe.SessionMode
	// DestDir is the run's bars/ directory. The fetcher writes only here.
	DestDir string
}

// FetchResult reports what was written.
type FetchResult struct {
	ExecPath       string
	SignalPath     string
	MetaPath       string
	BarsHash       string
	ExecBars       int
	SignalBars     int
	EffectiveStart time.Time
	RequestedEnd   time.Time
	SourcePath     string
}

// Fetcher materializes per-run bar snapshots from the producer-built
// parquet store. Consumer-only: it never talks to the network and never
// falls back to legacy HTTP paths.
type Fetcher struct {
	dataRoot string
}

// NewFetcher builds a fetcher rooted at the producer data root.
func NewFetcher(dataRoot string) *Fetcher {
	return &Fetcher{dataRoot: dataRoot}
}

// ProducerPath is the producer's derived-timeframe file for the pair.
func (f *Fetcher) ProducerPath(symbol string, tf timeframe.Timeframe) string {
	return filepath.Join(f.dataRoot, "derived", tf.DerivedDir(), strings.ToUpper(symbol)+".parquet")
}

const ensureRemediation = "invoke the producer's ensure_timeframe_bars endpoint to materialize it"

// Fetch slices the producer file to the requested window and writes the
// run snapshot plus its metadata sidecar.
func (f *Fetcher) Fetch(req FetchRequest) (*FetchResult, error) {
	if req.SessionMode == "" {
		req.SessionMode = timeframe.SessionRTH
	}
	src := f.ProducerPath(req.Symbol, req.Timeframe)
	if _, err := os.Stat(src); err != nil {
		return nil, &domain.MissingHistoricalDataError{
			Symbol:       strings.ToUpper(req.Symbol),
			Timeframe:    req.Timeframe.String(),
			ExpectedPath: src,
			Remediation:  ensureRemediation,
		}
	}

	if req.Timeframe == timeframe.D1 {
		return f.fetchDaily(req, src)
	}
	return f.fetchIntraday(req, src)
}

func (f *Fetcher) fetchIntraday(req FetchRequest, src string) (*FetchResult, error) {
	requestedStart := timeframe.DayStartUTC(req.RequestedEnd.AddDate(0, 0, -req.LookbackDays))
	effectiveStart := timeframe.DayStartUTC(requestedStart.AddDate(0, 0, -req.WarmupDays))

	rows, err := ReadParquet(src)
	if err != nil {
		return nil, &domain.SnapshotError{Path: src, Reason: err.Error()}
	}
	frame := &domain.BarFrame{Bars: rows}
	frame.SortAscending()
	window := frame.Slice(effectiveStart, req.RequestedEnd)
	if window.Len() == 0 {
		return nil, &domain.MissingHistoricalDataError{
			Symbol:       strings.ToUpper(req.Symbol),
			Timeframe:    req.Timeframe.String(),
			ExpectedPath: src,
			Window: fmt.Sprintf("[%s, %s]",
				effectiveStart.Format(time.RFC3339), req.RequestedEnd.Format(time.RFC3339)),
			Remediation: ensureRemediation,
		}
	}

	res := &FetchResult{
		ExecPath:       filepath.Join(req.DestDir, fmt.Sprintf("bars_exec_%s_rth.parquet", req.Timeframe)),
		SignalPath:     filepath.Join(req.DestDir, fmt.Sprintf("bars_signal_%s_rth.parquet", req.Timeframe)),
		MetaPath:       filepath.Join(req.DestDir, MetaFileName),
		ExecBars:       window.Len(),
		SignalBars:     window.Len(),
		EffectiveStart: effectiveStart,
		RequestedEnd:   req.RequestedEnd,
		SourcePath:     src,
	}
	if err := WriteParquet(res.ExecPath, window.Bars); err != nil {
		return nil, err
	}
	if err := WriteParquet(res.SignalPath, window.Bars); err != nil {
		return nil, err
	}
	if res.BarsHash, err = fsio.SHA256File(res.ExecPath); err != nil {
		return nil, err
	}
	if err := f.writeMeta(req, res); err != nil {
		return nil, err
	}

	log.Info().
		Str("symbol", strings.ToUpper(req.Symbol)).
		Str("timeframe", req.Timeframe.String()).
		Int("exec_bars", res.ExecBars).
		Str("bars_hash", res.BarsHash).
		Msg("bars snapshot written")
	return res, nil
}

// fetchDaily copies the producer's D1 file verbatim.
func (f *Fetcher) fetchDaily(req FetchRequest, src string) (*FetchResult, error) {
	res := &FetchResult{
		ExecPath:     filepath.Join(req.DestDir, "bars_exec_D1_rth.parquet"),
		SignalPath:   filepath.Join(req.DestDir, "bars_signal_D1_rth.parquet"),
		MetaPath:     filepath.Join(req.DestDir, MetaFileName),
		RequestedEnd: req.RequestedEnd,
		SourcePath:   src,
	}
	if err := fsio.CopyFileAtomic(src, res.ExecPath); err != nil {
		return nil, err
	}
	if err := fsio.CopyFileAtomic(src, res.SignalPath); err != nil {
		return nil, err
	}
	meta, err := ReadParquetMeta(res.ExecPath)
	if err != nil {
		return nil, &domain.SnapshotError{Path: res.ExecPath, Reason: err.Error()}
	}
	res.ExecBars = int(meta.Rows)
	res.SignalBars = int(meta.Rows)
	if meta.HasTs {
		res.EffectiveStart = meta.FirstTs
	}
	if res.BarsHash, err = fsio.SHA256File(res.ExecPath); err != nil {
		return nil, err
	}
	if err := f.writeMeta(req, res); err != nil {
		return nil, err
	}

	log.Info().
		Str("symbol", strings.ToUpper(req.Symbol)).
		Str("timeframe", "D1").
		Int("exec_bars", res.ExecBars).
		Msg("daily bars copied verbatim")
	return res, nil
}

func (f *Fetcher) writeMeta(req FetchRequest, res *FetchResult) error {
	return fsio.WriteJSONAtomic(res.MetaPath, SnapshotMeta{
		MarketTz:      timeframe.MarketTimezone,
		Timeframe:     req.Timeframe.String(),
		WarmupDays:    req.WarmupDays,
		LookbackDays:  req.LookbackDays,
		ExecBars:      res.ExecBars,
		SignalBars:    res.SignalBars,
		SessionMode:   string(req.SessionMode),
		OptionBSource: res.SourcePath,
		ConsumerOnly:  true,
	})
}
