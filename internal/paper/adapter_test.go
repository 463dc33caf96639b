package paper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

func testSignal(sym string, ts time.Time) Signal {
	return Signal{
		Symbol:    sym,
		Side:      domain.SideBuy,
		Quantity:  10,
		OrderType: "MKT",
		Timestamp: ts,
		Source:    "breakout_v1",
	}
}

// intentService remembers every Idempotency-Key it has seen and answers
// 409 on replays, mirroring the external service's contract.
func intentService(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	var seen sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/orderintents", r.URL.Path)
		key := r.Header.Get("Idempotency-Key")
		require.NotEmpty(t, key)
		if _, dup := seen.LoadOrStore(key, true); dup {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestIdempotencyKey_Deterministic(t *testing.T) {
	ts := time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC)
	a := IdempotencyKey(testSignal("APP", ts))
	b := IdempotencyKey(testSignal("app", ts))
	assert.Equal(t, a, b, "key is case-insensitive on symbol")
	assert.Len(t, a, 36)

	other := IdempotencyKey(testSignal("APP", ts.Add(5*time.Minute)))
	assert.NotEqual(t, a, other)

	shifted := testSignal("APP", ts.In(time.FixedZone("EST", -5*3600)))
	assert.Equal(t, a, IdempotencyKey(shifted), "key normalizes to UTC")
}

func TestSubmitBatch_ReplayedBatchIsAllDuplicates(t *testing.T) {
	srv, _ := intentService(t)
	a := New(srv.URL, 5*time.Second)
	ts := time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC)
	signals := []Signal{testSignal("APP", ts), testSignal("MSFT", ts)}

	_, first := a.SubmitBatch(context.Background(), signals)
	assert.Equal(t, Summary{Created: 2}, first)

	results, second := a.SubmitBatch(context.Background(), signals)
	assert.Equal(t, Summary{Duplicates: 2}, second)
	for _, r := range results {
		assert.Equal(t, OutcomeDuplicate, r.Outcome)
		assert.Equal(t, http.StatusConflict, r.StatusCode)
	}
}

func TestSubmit_LimitOrderWithoutPriceNeverLeavesProcess(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := testSignal("APP", time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC))
	s.OrderType = "LMT"

	res := New(srv.URL, 5*time.Second).Submit(context.Background(), s)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Contains(t, res.Message, "without a price")
	assert.Zero(t, hits)

	px := 100.5
	s.Price = &px
	res = New(srv.URL, 5*time.Second).Submit(context.Background(), s)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, 1, hits)
}

func TestSubmit_ValidationSkips(t *testing.T) {
	a := New("http://127.0.0.1:0", time.Second)
	ts := time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC)

	s := testSignal("", ts)
	assert.Equal(t, OutcomeSkipped, a.Submit(context.Background(), s).Outcome)

	s = testSignal("APP", ts)
	s.Side = "HOLD"
	res := a.Submit(context.Background(), s)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Contains(t, res.Message, `"HOLD"`)

	s = testSignal("APP", ts)
	s.Quantity = 0
	assert.Equal(t, OutcomeSkipped, a.Submit(context.Background(), s).Outcome)
}

func TestSubmit_ServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res := New(srv.URL, 5*time.Second).Submit(context.Background(),
		testSignal("APP", time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC)))
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Equal(t, "http 502", res.Message)
}
