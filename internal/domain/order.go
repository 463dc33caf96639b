package domain

import (
	"strings"

	"github.com/google/uuid"
)

// orderLegNamespace is the fixed UUID namespace for deterministic order
// idempotency keys. Changing it invalidates every key ever issued.
var orderLegNamespace = uuid.MustParse("b4f9f0a2-1c8e-49d3-9e61-7a2f5c0d8b13")

// Order is the externally visible record of a single leg. It exists only
// at the external-interface boundary; the pipeline itself trades in
// intents and fills.
type Order struct {
	RunID           string    `json:"run_id"`
	StrategyID      string    `json:"strategy_id"`
	StrategyVersion string    `json:"strategy_version"`
	Symbol          string    `json:"symbol"`
	Side            OrderSide `json:"side"`
	OCOGroupID      string    `json:"oco_group_id"`
	Qty             float64   `json:"qty"`
	IdempotencyKey  string    `json:"idempotency_key"`
}

// OrderIdempotencyKey derives the deterministic key for one order leg from
// (run_id, strategy, strategy_version, symbol, side, oco_group_id).
func OrderIdempotencyKey(runID, strategyID, strategyVersion, symbol string, side OrderSide, ocoGroupID string) string {
	name := strings.Join([]string{
		runID, strategyID, strategyVersion, strings.ToUpper(symbol), string(side), ocoGroupID,
	}, "|")
	return uuid.NewSHA1(orderLegNamespace, []byte(name)).String()
}
