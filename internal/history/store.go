// Package history is the pre-paper runtime data plane: an append-only
// local cache of live/replay bars, disjoint from the backtest parquet
// store by a hard guard. Writes are idempotent upserts on the
// (symbol, timeframe, ts_utc) primary key; reads are monotonic by ts.
package history

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/telemetry"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

// Source labels where a cached bar came from.
type Source string

const (
	SourceHistorical Source = "historical"
	SourceWebsocket  Source = "websocket"
	SourceBackfill   Source = "backfill"
)

// Entry is one cached bar.
type Entry struct {
	Symbol     string    `db:"symbol"`
	Timeframe  string    `db:"timeframe"`
	TsUTC      int64     `db:"ts_utc"`
	Open       float64   `db:"open"`
	High       float64   `db:"high"`
	Low        float64   `db:"low"`
	Close      float64   `db:"close"`
	Volume     int64     `db:"volume"`
	MarketTz   string    `db:"market_tz"`
	Source     Source    `db:"source"`
	// InsertedAt is RFC-3339 UTC text; stored as TEXT so the driver
	// round-trips it without declared-type guessing.
	InsertedAt string `db:"inserted_at"`
}

// Ts returns the bar timestamp as a UTC instant.
func (e *Entry) Ts() time.Time { return time.Unix(e.TsUTC, 0).UTC() }

const schema = `
CREATE TABLE IF NOT EXISTS bars (
    symbol      TEXT    NOT NULL,
    timeframe   TEXT    NOT NULL,
    ts_utc      INTEGER NOT NULL,
    open        REAL    NOT NULL,
    high        REAL    NOT NULL,
    low         REAL    NOT NULL,
    close       REAL    NOT NULL,
    volume      INTEGER NOT NULL,
    market_tz   TEXT    NOT NULL,
    source      TEXT    NOT NULL,
    inserted_at TEXT    NOT NULL,
    PRIMARY KEY (symbol, timeframe, ts_utc)
);`

// Store is the SQLite-backed runtime history cache.
type Store struct {
	db   *sqlx.DB
	path string
}

// Open creates or opens the history database at path. The hard guard:
// a path inside backtestDataRoot is rejected with HistoryGuardError, so
// runtime-history writes can never land in the backtest parquet tree.
func Open(path, backtestDataRoot string) (*Store, error) {
	if err := guardPath(path, backtestDataRoot); err != nil {
		return nil, err
	}
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func guardPath(path, backtestDataRoot string) error {
	if backtestDataRoot == "" {
		return nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	absRoot, err := filepath.Abs(backtestDataRoot)
	if err != nil {
		return err
	}
	if absPath == absRoot || strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return &domain.HistoryGuardError{Path: absPath, DataRoot: absRoot}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

const upsertSQL = `
INSERT OR REPLACE INTO bars
    (symbol, timeframe, ts_utc, open, high, low, close, volume, market_tz, source, inserted_at)
VALUES
    (:symbol, :timeframe, :ts_utc, :open, :high, :low, :close, :volume, :market_tz, :source, :inserted_at)`

// Upsert writes entries idempotently: replaying the same bars is a no-op
// apart from inserted_at. Concurrent writers serialize on the database.
func (s *Store) Upsert(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for i := range entries {
		e := &entries[i]
		e.Symbol = strings.ToUpper(e.Symbol)
		if e.MarketTz == "" {
			e.MarketTz = timeframe.MarketTimezone
		}
		if e.InsertedAt == "" {
			e.InsertedAt = now
		}
		if _, err := tx.NamedExec(upsertSQL, e); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert %s %s @%d: %w", e.Symbol, e.Timeframe, e.TsUTC, err)
		}
		telemetry.HistoryRows.WithLabelValues(string(e.Source)).Inc()
	}
	return tx.Commit()
}

// UpsertBars converts domain bars to entries under one source label.
func (s *Store) UpsertBars(symbol, tf string, src Source, bars []domain.Bar) error {
	entries := make([]Entry, len(bars))
	for i, b := range bars {
		entries[i] = Entry{
			Symbol:    symbol,
			Timeframe: tf,
			TsUTC:     b.Ts.UTC().Unix(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			Source:    src,
		}
	}
	return s.Upsert(entries)
}

// CachedRange reports the cached span and row count for a pair.
func (s *Store) CachedRange(symbol, tf string) (first, last time.Time, count int64, err error) {
	var row struct {
		Min   *int64 `db:"min_ts"`
		Max   *int64 `db:"max_ts"`
		Count int64  `db:"n"`
	}
	err = s.db.Get(&row,
		`SELECT MIN(ts_utc) AS min_ts, MAX(ts_utc) AS max_ts, COUNT(*) AS n
		   FROM bars WHERE symbol = ? AND timeframe = ?`,
		strings.ToUpper(symbol), tf)
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	if row.Min != nil {
		first = time.Unix(*row.Min, 0).UTC()
	}
	if row.Max != nil {
		last = time.Unix(*row.Max, 0).UTC()
	}
	return first, last, row.Count, nil
}

// Bars reads the cached window [start, end], monotonic by ts.
func (s *Store) Bars(symbol, tf string, start, end time.Time) ([]Entry, error) {
	var out []Entry
	err := s.db.Select(&out,
		`SELECT symbol, timeframe, ts_utc, open, high, low, close, volume, market_tz, source, inserted_at
		   FROM bars
		  WHERE symbol = ? AND timeframe = ? AND ts_utc BETWEEN ? AND ?
		  ORDER BY ts_utc ASC`,
		strings.ToUpper(symbol), tf, start.UTC().Unix(), end.UTC().Unix())
	return out, err
}
