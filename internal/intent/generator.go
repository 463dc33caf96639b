// Package intent projects validated signal frames into the canonical,
// content-hashed order-intent stream. The intent CSV is the pipeline's
// first content-addressed artifact and the persisted proof of the signal
// frame, which itself is never written to disk.
package intent

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

// OrderValidityPolicy selects how order_valid_to_ts is derived.
type OrderValidityPolicy string

const (
	ValiditySessionEnd   OrderValidityPolicy = "session_end"
	ValidityFixedMinutes OrderValidityPolicy = "fixed_minutes"
	ValidityOneBar       OrderValidityPolicy = "one_bar"
)

// ValidFromPolicy selects how order_valid_from_ts is derived.
type ValidFromPolicy string

const (
	ValidFromSignalTs ValidFromPolicy = "signal_ts"
	ValidFromNextBar  ValidFromPolicy = "next_bar"
)

// Config parameterizes one generation pass.
type Config struct {
	StrategyID      string
	StrategyVersion string

	OrderValidityPolicy OrderValidityPolicy
	ValidFromPolicy     ValidFromPolicy
	FixedValidMinutes   int
	SessionTimezone     string
	SessionFilter       []timeframe.SessionWindow
	TimeframeMinutes    int
}

func (c *Config) normalize() error {
	if c.OrderValidityPolicy == "" {
		c.OrderValidityPolicy = ValiditySessionEnd
	}
	if c.ValidFromPolicy == "" {
		c.ValidFromPolicy = ValidFromSignalTs
	}
	switch c.OrderValidityPolicy {
	case ValiditySessionEnd, ValidityFixedMinutes, ValidityOneBar:
	default:
		return &domain.IntentContractError{Reason: fmt.Sprintf("unknown order validity policy %q", c.OrderValidityPolicy)}
	}
	switch c.ValidFromPolicy {
	case ValidFromSignalTs, ValidFromNextBar:
	default:
		return &domain.IntentContractError{Reason: fmt.Sprintf("unknown valid-from policy %q", c.ValidFromPolicy)}
	}
	if c.OrderValidityPolicy == ValidityFixedMinutes && c.FixedValidMinutes <= 0 {
		return &domain.IntentContractError{Reason: "fixed_minutes policy needs a positive minute budget"}
	}
	if (c.OrderValidityPolicy != ValiditySessionEnd || c.ValidFromPolicy == ValidFromNextBar) && c.TimeframeMinutes <= 0 {
		return &domain.IntentContractError{Reason: "bar-relative policies need timeframe minutes"}
	}
	if c.SessionTimezone == "" {
		c.SessionTimezone = timeframe.MarketTimezone
	}
	return nil
}

// Generate projects the active rows of frame into a sorted intent stream.
// A row with a side but no OCO group is a fatal contract violation.
func Generate(frame *domain.SignalFrame, cfg Config) (*domain.IntentFrame, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.SessionTimezone)
	if err != nil {
		return nil, &domain.IntentContractError{Reason: fmt.Sprintf("session timezone %q: %v", cfg.SessionTimezone, err)}
	}

	active := frame.ActiveRows()
	out := &domain.IntentFrame{
		ContextColumns: contextColumns(frame.Schema),
		Intents:        make([]domain.Intent, 0, len(active)),
	}
	for _, row := range active {
		if row.OCOGroupID == "" {
			return nil, &domain.IntentContractError{
				TemplateID: row.TemplateID,
				Reason:     "active signal without oco_group_id",
			}
		}
		if row.EntryPrice == nil || row.StopPrice == nil || row.TakeProfitPrice == nil {
			return nil, &domain.IntentContractError{
				TemplateID: row.TemplateID,
				Reason:     "active signal with null entry/stop/take_profit",
			}
		}
		it := domain.Intent{
			TemplateID:      row.TemplateID,
			SignalTs:        row.Ts.UTC(),
			TriggerTs:       row.Ts.UTC(),
			Symbol:          row.Symbol,
			Side:            domain.OrderSideFor(*row.SignalSide),
			OCOGroupID:      row.OCOGroupID,
			EntryPrice:      *row.EntryPrice,
			StopPrice:       *row.StopPrice,
			TakeProfitPrice: *row.TakeProfitPrice,
			ExitReason:      row.ExitReason,
			StrategyID:      cfg.StrategyID,
			StrategyVersion: cfg.StrategyVersion,
			Context:         contextCells(&row, out.ContextColumns),
		}
		if row.ExitTs != nil {
			ts := row.ExitTs.UTC()
			it.ExitTs = &ts
		}

		from := validFrom(row.Ts, cfg)
		it.OrderValidFromTs = &from
		to, err := validTo(row.Ts, cfg, loc)
		if err != nil {
			return nil, err
		}
		it.OrderValidToTs = &to

		out.Intents = append(out.Intents, it)
	}

	sortCanonical(out)
	log.Info().
		Str("strategy", cfg.StrategyID).
		Int("signals", len(active)).
		Int("intents", out.Len()).
		Msg("intent stream generated")
	return out, nil
}

func validFrom(signalTs time.Time, cfg Config) time.Time {
	if cfg.ValidFromPolicy == ValidFromNextBar {
		return signalTs.UTC().Add(time.Duration(cfg.TimeframeMinutes) * time.Minute)
	}
	return signalTs.UTC()
}

func validTo(signalTs time.Time, cfg Config, loc *time.Location) (time.Time, error) {
	switch cfg.OrderValidityPolicy {
	case ValidityFixedMinutes:
		return signalTs.UTC().Add(time.Duration(cfg.FixedValidMinutes) * time.Minute), nil
	case ValidityOneBar:
		return signalTs.UTC().Add(time.Duration(cfg.TimeframeMinutes) * time.Minute), nil
	default:
		end, err := timeframe.SessionEnd(signalTs, loc, cfg.SessionFilter)
		if err != nil {
			return time.Time{}, &domain.IntentContractError{Reason: fmt.Sprintf("session end: %v", err)}
		}
		return end, nil
	}
}

// contextColumns is the sorted union of the schema's sig_/dbg_ columns.
// Sorting here fixes the canonical CSV column order for the whole run.
func contextColumns(schema *domain.SignalSchema) []string {
	if schema == nil {
		return nil
	}
	var names []string
	for _, spec := range schema.StrategyColumns() {
		if strings.HasPrefix(spec.Name, "sig_") || strings.HasPrefix(spec.Name, "dbg_") {
			names = append(names, spec.Name)
		}
	}
	sort.Strings(names)
	return names
}

func contextCells(row *domain.SignalRow, columns []string) map[string]domain.Cell {
	if len(columns) == 0 {
		return nil
	}
	out := make(map[string]domain.Cell, len(columns))
	for _, name := range columns {
		if c, ok := row.Extra[name]; ok {
			out[name] = c
		}
	}
	return out
}

// sortCanonical orders intents by (signal_ts, template_id, side) with a
// stable sort, the contract every hash consumer relies on.
func sortCanonical(f *domain.IntentFrame) {
	sort.SliceStable(f.Intents, func(i, j int) bool {
		a, b := f.Intents[i], f.Intents[j]
		if !a.SignalTs.Equal(b.SignalTs) {
			return a.SignalTs.Before(b.SignalTs)
		}
		if a.TemplateID != b.TemplateID {
			return a.TemplateID < b.TemplateID
		}
		return a.Side < b.Side
	})
}
