package strategy

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

// requiredGenericColumns is the minimum generic set every schema must
// declare.
var requiredGenericColumns = []string{
	"signal_side", "signal_reason", "entry_price", "stop_price", "take_profit_price", "template_id",
}

// BuildSignalFrame invokes the plugin, coerces the strategy-owned columns
// to their declared dtypes, validates the frame against the schema, and
// returns it with the schema fingerprint. Contract violations surface as
// *domain.SignalFrameContractError.
func BuildSignalFrame(p Plugin, version string, bars *domain.BarFrame, params Params) (*domain.SignalFrame, string, error) {
	schema, err := p.Schema(version)
	if err != nil {
		return nil, "", err
	}
	frame, err := p.ExtendSignalFrame(bars, params)
	if err != nil {
		return nil, "", err
	}
	frame.Schema = schema

	violations := validateSchemaShape(schema)
	violations = append(violations, coerceAndValidate(frame)...)
	if len(violations) > 0 {
		return nil, "", &domain.SignalFrameContractError{
			StrategyID: schema.StrategyID,
			Version:    schema.Version,
			Violations: violations,
		}
	}

	fingerprint := schema.Fingerprint()
	log.Info().
		Str("strategy", schema.StrategyID).
		Str("version", schema.Version).
		Str("schema_fingerprint", fingerprint).
		Int("rows", len(frame.Rows)).
		Int("active", len(frame.ActiveRows())).
		Msg("signal frame validated")
	return frame, fingerprint, nil
}

func validateSchemaShape(schema *domain.SignalSchema) []string {
	var violations []string
	for _, name := range requiredGenericColumns {
		if _, ok := schema.Column(name); !ok {
			violations = append(violations, fmt.Sprintf("schema missing required generic column %q", name))
		}
	}
	return violations
}

func coerceAndValidate(frame *domain.SignalFrame) []string {
	var violations []string
	schema := frame.Schema

	for i := range frame.Rows {
		row := &frame.Rows[i]
		if row.Ts.IsZero() {
			violations = append(violations, fmt.Sprintf("row %d: zero timestamp", i))
		}
		row.Ts = row.Ts.UTC()
		if row.Symbol == "" || row.Timeframe == "" || row.StrategyID == "" || row.StrategyVersion == "" {
			violations = append(violations, fmt.Sprintf("row %d: empty base identity column", i))
		}
		if row.SignalSide != nil {
			if *row.SignalSide != domain.SignalLong && *row.SignalSide != domain.SignalShort {
				violations = append(violations, fmt.Sprintf("row %d: signal_side %q not in {LONG, SHORT}", i, *row.SignalSide))
			}
			if row.EntryPrice == nil || row.StopPrice == nil || row.TakeProfitPrice == nil {
				violations = append(violations, fmt.Sprintf("row %d: active signal with null entry/stop/take_profit", i))
			}
			if row.TemplateID == "" {
				violations = append(violations, fmt.Sprintf("row %d: active signal without template_id", i))
			}
		}
		if row.ExitTs != nil {
			ts := row.ExitTs.UTC()
			row.ExitTs = &ts
		}
	}

	for _, spec := range schema.StrategyColumns() {
		violations = append(violations, coerceColumn(frame, spec)...)
	}

	violations = append(violations, validateSideConsistency(frame)...)
	return violations
}

// coerceColumn normalizes every cell of one strategy column to its
// declared dtype. Parse failures become nulls only when the column is
// nullable.
func coerceColumn(frame *domain.SignalFrame, spec domain.ColumnSpec) []string {
	var violations []string
	present := false
	for i := range frame.Rows {
		row := &frame.Rows[i]
		cell, ok := row.Extra[spec.Name]
		if !ok {
			cell = domain.NullCell(spec.Dtype)
		} else {
			present = true
		}
		coerced, err := coerceCell(cell, spec.Dtype)
		if err != nil {
			if spec.Nullable {
				coerced = domain.NullCell(spec.Dtype)
			} else {
				violations = append(violations, fmt.Sprintf("row %d: column %s: %v", i, spec.Name, err))
				continue
			}
		}
		if !coerced.Valid && !spec.Nullable {
			violations = append(violations, fmt.Sprintf("row %d: null in non-nullable column %s", i, spec.Name))
			continue
		}
		if row.Extra == nil {
			row.Extra = make(map[string]domain.Cell)
		}
		row.Extra[spec.Name] = coerced
	}
	if !present && len(frame.Rows) > 0 && !spec.Nullable {
		violations = append(violations, fmt.Sprintf("missing required column %s", spec.Name))
	}
	return violations
}

func coerceCell(c domain.Cell, want domain.Dtype) (domain.Cell, error) {
	if !c.Valid {
		return domain.NullCell(want), nil
	}
	if c.Dtype == want {
		if want == domain.DtypeTimestamp {
			return domain.TimeCell(c.T), nil
		}
		return c, nil
	}
	switch want {
	case domain.DtypeFloat:
		switch c.Dtype {
		case domain.DtypeInt:
			return domain.FloatCell(float64(c.I)), nil
		case domain.DtypeString:
			f, err := strconv.ParseFloat(c.S, 64)
			if err != nil {
				return domain.Cell{}, fmt.Errorf("cannot parse %q as float", c.S)
			}
			return domain.FloatCell(f), nil
		}
	case domain.DtypeInt:
		if c.Dtype == domain.DtypeFloat {
			if c.F != math.Trunc(c.F) {
				return domain.Cell{}, fmt.Errorf("float %g is not integral", c.F)
			}
			return domain.IntCell(int64(c.F)), nil
		}
		if c.Dtype == domain.DtypeString {
			n, err := strconv.ParseInt(c.S, 10, 64)
			if err != nil {
				return domain.Cell{}, fmt.Errorf("cannot parse %q as int", c.S)
			}
			return domain.IntCell(n), nil
		}
	case domain.DtypeBool:
		if c.Dtype == domain.DtypeString {
			b, err := strconv.ParseBool(c.S)
			if err != nil {
				return domain.Cell{}, fmt.Errorf("cannot parse %q as bool", c.S)
			}
			return domain.BoolCell(b), nil
		}
	case domain.DtypeString:
		return domain.StringCell(c.Canonical()), nil
	case domain.DtypeTimestamp:
		if c.Dtype == domain.DtypeString {
			ts, err := time.Parse(time.RFC3339, c.S)
			if err != nil {
				return domain.Cell{}, fmt.Errorf("cannot parse %q as timestamp", c.S)
			}
			return domain.TimeCell(ts), nil
		}
		if c.Dtype == domain.DtypeInt {
			return domain.TimeCell(time.Unix(c.I, 0)), nil
		}
	}
	return domain.Cell{}, fmt.Errorf("cannot coerce %s to %s", c.Dtype, want)
}

// validateSideConsistency enforces the boolean-signal invariants when the
// schema declares sig_long/sig_short columns.
func validateSideConsistency(frame *domain.SignalFrame) []string {
	_, hasLong := frame.Schema.Column("sig_long")
	_, hasShort := frame.Schema.Column("sig_short")
	if !hasLong && !hasShort {
		return nil
	}
	var violations []string
	for i := range frame.Rows {
		row := &frame.Rows[i]
		long := boolCell(row, "sig_long")
		short := boolCell(row, "sig_short")
		if long && short {
			violations = append(violations, fmt.Sprintf("row %d: sig_long and sig_short both true", i))
		}
		switch {
		case row.SignalSide == nil && (long || short):
			violations = append(violations, fmt.Sprintf("row %d: boolean signal set but signal_side is null", i))
		case row.SignalSide != nil && *row.SignalSide == domain.SignalLong && short:
			violations = append(violations, fmt.Sprintf("row %d: signal_side LONG contradicts sig_short", i))
		case row.SignalSide != nil && *row.SignalSide == domain.SignalShort && long:
			violations = append(violations, fmt.Sprintf("row %d: signal_side SHORT contradicts sig_long", i))
		}
	}
	return violations
}

func boolCell(row *domain.SignalRow, name string) bool {
	c, ok := row.Extra[name]
	return ok && c.Valid && c.Dtype == domain.DtypeBool && c.B
}
