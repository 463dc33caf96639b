package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SignalSide is the directional label a strategy attaches to a row.
type SignalSide string

const (
	SignalLong  SignalSide = "LONG"
	SignalShort SignalSide = "SHORT"
)

// Dtype is the semantic column type used by schema validation and by the
// canonical serializers.
type Dtype string

const (
	DtypeTimestamp Dtype = "timestamp"
	DtypeFloat     Dtype = "float"
	DtypeInt       Dtype = "int"
	DtypeBool      Dtype = "bool"
	DtypeString    Dtype = "string"
)

// ColumnKind tags where a column comes from in the schema contract.
type ColumnKind string

const (
	KindBase     ColumnKind = "base"
	KindGeneric  ColumnKind = "generic"
	KindStrategy ColumnKind = "strategy"
)

// ColumnSpec describes one signal-frame column.
type ColumnSpec struct {
	Name     string     `json:"name"`
	Dtype    Dtype      `json:"dtype"`
	Nullable bool       `json:"nullable"`
	Kind     ColumnKind `json:"kind"`
}

// SignalSchema is a strategy's versioned signal-frame contract, identified
// by the (strategy_id, strategy_tag, version) triple.
type SignalSchema struct {
	StrategyID  string       `json:"strategy_id"`
	StrategyTag string       `json:"strategy_tag"`
	Version     string       `json:"version"`
	Columns     []ColumnSpec `json:"columns"`
}

// Column returns the spec for name, or false when the schema does not
// declare it.
func (s *SignalSchema) Column(name string) (ColumnSpec, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// StrategyColumns returns the strategy-kind specs in declaration order.
func (s *SignalSchema) StrategyColumns() []ColumnSpec {
	var out []ColumnSpec
	for _, c := range s.Columns {
		if c.Kind == KindStrategy {
			out = append(out, c)
		}
	}
	return out
}

// Fingerprint is the SHA-256 of the column specs sorted by name plus the
// identity triple. It is stable across column declaration order.
func (s *SignalSchema) Fingerprint() string {
	specs := make([]ColumnSpec, len(s.Columns))
	copy(specs, s.Columns)
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s\n", s.StrategyID, s.StrategyTag, s.Version)
	for _, c := range specs {
		fmt.Fprintf(&b, "%s|%s|%t|%s\n", c.Name, c.Dtype, c.Nullable, c.Kind)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Cell is one strategy-owned column value. Valid=false represents a null.
// Exactly one of the value fields is meaningful, selected by Dtype.
type Cell struct {
	Dtype Dtype
	Valid bool
	F     float64
	I     int64
	B     bool
	S     string
	T     time.Time
}

// FloatCell builds a non-null float cell.
func FloatCell(v float64) Cell { return Cell{Dtype: DtypeFloat, Valid: true, F: v} }

// IntCell builds a non-null integer cell.
func IntCell(v int64) Cell { return Cell{Dtype: DtypeInt, Valid: true, I: v} }

// BoolCell builds a non-null boolean cell.
func BoolCell(v bool) Cell { return Cell{Dtype: DtypeBool, Valid: true, B: v} }

// StringCell builds a non-null string cell.
func StringCell(v string) Cell { return Cell{Dtype: DtypeString, Valid: true, S: v} }

// TimeCell builds a non-null timestamp cell, normalized to UTC.
func TimeCell(v time.Time) Cell { return Cell{Dtype: DtypeTimestamp, Valid: true, T: v.UTC()} }

// NullCell builds a null cell of the given dtype.
func NullCell(dt Dtype) Cell { return Cell{Dtype: dt} }

// Canonical renders the cell for the canonical CSV serializers: empty
// string for null, ISO-8601 UTC for timestamps, shortest round-trip form
// for floats.
func (c Cell) Canonical() string {
	if !c.Valid {
		return ""
	}
	switch c.Dtype {
	case DtypeTimestamp:
		return c.T.UTC().Format(time.RFC3339)
	case DtypeFloat:
		return strconv.FormatFloat(c.F, 'g', -1, 64)
	case DtypeInt:
		return strconv.FormatInt(c.I, 10)
	case DtypeBool:
		return strconv.FormatBool(c.B)
	default:
		return c.S
	}
}

// SignalRow is one bar of a signal frame: the base OHLCV projection, the
// generic signal columns, and the strategy-owned extras.
type SignalRow struct {
	Ts              time.Time
	Open            float64
	High            float64
	Low             float64
	Close           float64
	Volume          int64
	Symbol          string
	Timeframe       string
	StrategyID      string
	StrategyVersion string

	SignalSide      *SignalSide
	SignalReason    string
	EntryPrice      *float64
	StopPrice       *float64
	TakeProfitPrice *float64
	TemplateID      string
	OCOGroupID      string
	ExitTs          *time.Time
	ExitReason      string

	// Extra holds the strategy-kind columns (sig_* indicators, dbg_*
	// diagnostics) keyed by column name.
	Extra map[string]Cell
}

// HasSignal reports whether the row carries an active signal side.
func (r *SignalRow) HasSignal() bool { return r.SignalSide != nil }

// SignalFrame is a validated strategy projection over a bars snapshot.
type SignalFrame struct {
	Schema *SignalSchema
	Rows   []SignalRow
}

// ActiveRows returns the rows with a non-null signal side, in frame order.
func (f *SignalFrame) ActiveRows() []SignalRow {
	var out []SignalRow
	for _, r := range f.Rows {
		if r.HasSignal() {
			out = append(out, r)
		}
	}
	return out
}
