// Package paper translates strategy signals into idempotent order-intent
// requests against an external paper-trading service. The adapter never
// retries; the deterministic idempotency key makes retries at a higher
// layer safe.
package paper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/telemetry"
)

// orderIntentNamespace is the fixed UUID namespace for signal idempotency
// keys. Changing it invalidates every key ever issued.
var orderIntentNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Outcome classifies one submission.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeError     Outcome = "error"
)

// Signal is one order intent to submit.
type Signal struct {
	Symbol    string           `json:"symbol"`
	Side      domain.OrderSide `json:"side"`
	Quantity  float64          `json:"quantity"`
	OrderType string           `json:"order_type"`
	Price     *float64         `json:"price,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Source    string           `json:"source"`
	ClientTag string           `json:"client_tag,omitempty"`
}

// IdempotencyKey derives the deterministic RFC-4122 v5 UUID for a signal
// from (symbol, side, timestamp, source, order_type).
func IdempotencyKey(s Signal) string {
	name := strings.Join([]string{
		strings.ToUpper(s.Symbol),
		string(s.Side),
		s.Timestamp.UTC().Format(time.RFC3339),
		s.Source,
		s.OrderType,
	}, "|")
	return uuid.NewSHA1(orderIntentNamespace, []byte(name)).String()
}

// Result reports one submission.
type Result struct {
	Signal         Signal  `json:"signal"`
	Outcome        Outcome `json:"outcome"`
	IdempotencyKey string  `json:"idempotency_key"`
	StatusCode     int     `json:"status_code,omitempty"`
	Message        string  `json:"message,omitempty"`
}

// Summary tallies a batch.
type Summary struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
}

// Adapter posts order intents to the external service.
type Adapter struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New builds an adapter for the service base URL.
func New(baseURL string, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

type orderIntentBody struct {
	Symbol    string   `json:"symbol"`
	Side      string   `json:"side"`
	Quantity  float64  `json:"quantity"`
	OrderType string   `json:"order_type"`
	Price     *float64 `json:"price,omitempty"`
	ClientTag string   `json:"client_tag,omitempty"`
}

// Submit sends one signal. Validation failures are classified before any
// network traffic happens: a limit order without a price never leaves the
// process.
func (a *Adapter) Submit(ctx context.Context, s Signal) Result {
	res := Result{Signal: s, IdempotencyKey: IdempotencyKey(s)}

	if reason := validate(s); reason != "" {
		res.Outcome = OutcomeSkipped
		res.Message = reason
		telemetry.PaperOrders.WithLabelValues(string(OutcomeSkipped)).Inc()
		log.Warn().Str("symbol", s.Symbol).Str("reason", reason).Msg("paper order skipped pre-send")
		return res
	}

	if err := a.limiter.Wait(ctx); err != nil {
		res.Outcome = OutcomeError
		res.Message = err.Error()
		telemetry.PaperOrders.WithLabelValues(string(OutcomeError)).Inc()
		return res
	}

	body, _ := json.Marshal(orderIntentBody{
		Symbol:    strings.ToUpper(s.Symbol),
		Side:      string(s.Side),
		Quantity:  s.Quantity,
		OrderType: s.OrderType,
		Price:     s.Price,
		ClientTag: s.ClientTag,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/orderintents", bytes.NewReader(body))
	if err != nil {
		res.Outcome = OutcomeError
		res.Message = err.Error()
		telemetry.PaperOrders.WithLabelValues(string(OutcomeError)).Inc()
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", res.IdempotencyKey)

	resp, err := a.http.Do(req)
	if err != nil {
		res.Outcome = OutcomeError
		res.Message = err.Error()
		telemetry.PaperOrders.WithLabelValues(string(OutcomeError)).Inc()
		return res
	}
	defer resp.Body.Close()
	res.StatusCode = resp.StatusCode

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		res.Outcome = OutcomeCreated
	case resp.StatusCode == http.StatusConflict:
		res.Outcome = OutcomeDuplicate
	default:
		res.Outcome = OutcomeError
		res.Message = fmt.Sprintf("http %d", resp.StatusCode)
	}
	telemetry.PaperOrders.WithLabelValues(string(res.Outcome)).Inc()
	return res
}

// SubmitBatch sends each signal once, in order, and tallies outcomes.
func (a *Adapter) SubmitBatch(ctx context.Context, signals []Signal) ([]Result, Summary) {
	results := make([]Result, 0, len(signals))
	var sum Summary
	for _, s := range signals {
		r := a.Submit(ctx, s)
		results = append(results, r)
		switch r.Outcome {
		case OutcomeCreated:
			sum.Created++
		case OutcomeDuplicate:
			sum.Duplicates++
		case OutcomeSkipped:
			sum.Skipped++
		default:
			sum.Errors++
		}
	}
	log.Info().Int("created", sum.Created).Int("duplicates", sum.Duplicates).
		Int("skipped", sum.Skipped).Int("errors", sum.Errors).Msg("paper batch submitted")
	return results, sum
}

func validate(s Signal) string {
	if s.Symbol == "" {
		return "missing symbol"
	}
	if s.Side != domain.SideBuy && s.Side != domain.SideSell {
		return fmt.Sprintf("side %q not in {BUY, SELL}", s.Side)
	}
	if s.Quantity <= 0 {
		return fmt.Sprintf("quantity %g not positive", s.Quantity)
	}
	if s.OrderType == "LMT" && s.Price == nil {
		return "limit order without a price"
	}
	return ""
}
