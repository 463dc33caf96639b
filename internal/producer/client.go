// Package producer is the HTTP client for the market-data producer's
// ensure_timeframe_bars endpoint: the one optional remote call the
// pipeline makes, always before a run begins, never during one.
package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/telemetry"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

// DefaultTimeout bounds the ensure call.
const DefaultTimeout = 180 * time.Second

// EnsureRequest is the wire body for ensure_timeframe_bars.
type EnsureRequest struct {
	Symbol           string                    `json:"symbol"`
	TimeframeMinutes int                       `json:"timeframe_minutes"`
	StartDate        string                    `json:"start_date"`
	EndDate          string                    `json:"end_date"`
	SessionTimezone  string                    `json:"session_timezone"`
	SessionMode      string                    `json:"session_mode"`
	SessionFilter    []timeframe.SessionWindow `json:"session_filter,omitempty"`
	DataRoot         string                    `json:"data_root,omitempty"`
}

// EnsureResponse is the producer's reply.
type EnsureResponse struct {
	Status     string `json:"status"`
	GapsBefore int    `json:"gaps_before"`
	GapsAfter  int    `json:"gaps_after"`
}

// Client talks to one producer base URL with a circuit breaker and a
// client-side rate limit.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *cb.CircuitBreaker
	limiter *rate.Limiter
}

// New builds a client. A zero timeout falls back to DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	settings := cb.Settings{Name: "producer-ensure"}
	settings.Interval = 60 * time.Second
	settings.Timeout = 60 * time.Second
	settings.ReadyToTrip = func(counts cb.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: cb.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(1), 2),
	}
}

// Ensure asks the producer to materialize the derived timeframe over the
// window. A healthy reply with gaps_after > 0 still refuses the pipeline:
// the producer could not close every hole.
func (c *Client) Ensure(ctx context.Context, req EnsureRequest) (*EnsureResponse, error) {
	if req.SessionTimezone == "" {
		req.SessionTimezone = timeframe.MarketTimezone
	}
	if req.SessionMode == "" {
		req.SessionMode = string(timeframe.SessionRTH)
	}
	url := c.baseURL + "/ensure_timeframe_bars"

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.ProducerError{URL: url, Reason: "rate limiter", Cause: err}
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.post(ctx, url, req)
	})
	if err != nil {
		telemetry.ProducerRequests.WithLabelValues("error").Inc()
		if pe, ok := err.(*domain.ProducerError); ok {
			return nil, pe
		}
		return nil, &domain.ProducerError{URL: url, Reason: err.Error(), Cause: err}
	}
	resp := out.(*EnsureResponse)

	if resp.Status != "ok" && resp.Status != "backfilled" {
		telemetry.ProducerRequests.WithLabelValues("refused").Inc()
		return resp, &domain.ProducerError{
			URL: url, Status: resp.Status,
			Reason: fmt.Sprintf("unexpected status %q", resp.Status),
		}
	}
	if resp.GapsAfter > 0 {
		telemetry.ProducerRequests.WithLabelValues("gaps_remain").Inc()
		return resp, &domain.ProducerError{
			URL: url, Status: resp.Status, GapsAfter: resp.GapsAfter,
			Reason: fmt.Sprintf("%d gaps remain after backfill", resp.GapsAfter),
		}
	}
	telemetry.ProducerRequests.WithLabelValues("ok").Inc()
	log.Info().Str("symbol", req.Symbol).Int("gaps_before", resp.GapsBefore).
		Str("status", resp.Status).Msg("producer ensure complete")
	return resp, nil
}

func (c *Client) post(ctx context.Context, url string, req EnsureRequest) (*EnsureResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &domain.ProducerError{
			URL: url, StatusCode: httpResp.StatusCode,
			Reason: fmt.Sprintf("http %d: %s", httpResp.StatusCode, truncate(data, 200)),
		}
	}
	var resp EnsureResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &domain.ProducerError{URL: url, Reason: "malformed response body", Cause: err}
	}
	return &resp, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// EnsureBars implements the coverage gate's Backfiller hook.
func (c *Client) EnsureBars(ctx context.Context, symbol string, tf timeframe.Timeframe, start, end time.Time) error {
	_, err := c.Ensure(ctx, EnsureRequest{
		Symbol:           symbol,
		TimeframeMinutes: tf.Minutes(),
		StartDate:        start.UTC().Format("2006-01-02"),
		EndDate:          end.UTC().Format("2006-01-02"),
	})
	return err
}
