package producer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

func ensureServer(t *testing.T, handler func(EnsureRequest) (int, EnsureResponse)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/ensure_timeframe_bars", r.URL.Path)
		var req EnsureRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, resp := handler(req)
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEnsure_OkFillsSessionDefaults(t *testing.T) {
	var seen EnsureRequest
	srv := ensureServer(t, func(req EnsureRequest) (int, EnsureResponse) {
		seen = req
		return http.StatusOK, EnsureResponse{Status: "ok"}
	})

	c := New(srv.URL, 5*time.Second)
	resp, err := c.Ensure(context.Background(), EnsureRequest{
		Symbol: "APP", TimeframeMinutes: 5,
		StartDate: "2025-12-01", EndDate: "2025-12-12",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, timeframe.MarketTimezone, seen.SessionTimezone)
	assert.Equal(t, string(timeframe.SessionRTH), seen.SessionMode)
}

func TestEnsure_BackfilledIsAccepted(t *testing.T) {
	srv := ensureServer(t, func(EnsureRequest) (int, EnsureResponse) {
		return http.StatusOK, EnsureResponse{Status: "backfilled", GapsBefore: 4}
	})

	resp, err := New(srv.URL, 5*time.Second).Ensure(context.Background(), EnsureRequest{Symbol: "APP"})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.GapsBefore)
}

func TestEnsure_RemainingGapsRefuse(t *testing.T) {
	srv := ensureServer(t, func(EnsureRequest) (int, EnsureResponse) {
		return http.StatusOK, EnsureResponse{Status: "backfilled", GapsAfter: 2}
	})

	_, err := New(srv.URL, 5*time.Second).Ensure(context.Background(), EnsureRequest{Symbol: "APP"})
	require.Error(t, err)
	var pe *domain.ProducerError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.GapsAfter)
	assert.Contains(t, pe.Reason, "gaps remain")
}

func TestEnsure_UnexpectedStatusRefuses(t *testing.T) {
	srv := ensureServer(t, func(EnsureRequest) (int, EnsureResponse) {
		return http.StatusOK, EnsureResponse{Status: "degraded"}
	})

	_, err := New(srv.URL, 5*time.Second).Ensure(context.Background(), EnsureRequest{Symbol: "APP"})
	var pe *domain.ProducerError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Reason, `"degraded"`)
}

func TestEnsure_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, 5*time.Second).Ensure(context.Background(), EnsureRequest{Symbol: "APP"})
	var pe *domain.ProducerError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusInternalServerError, pe.StatusCode)
}

func TestEnsure_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, 5*time.Second).Ensure(context.Background(), EnsureRequest{Symbol: "APP"})
	var pe *domain.ProducerError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Reason, "malformed")
}

func TestEnsure_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	for i := 0; i < 3; i++ {
		_, err := c.Ensure(context.Background(), EnsureRequest{Symbol: "APP"})
		require.Error(t, err)
	}
	// Fourth call trips on the open breaker without reaching the server.
	_, err := c.Ensure(context.Background(), EnsureRequest{Symbol: "APP"})
	var pe *domain.ProducerError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Reason, "circuit breaker is open")
}

func TestEnsureBars_FormatsWindowAsDates(t *testing.T) {
	var seen EnsureRequest
	srv := ensureServer(t, func(req EnsureRequest) (int, EnsureResponse) {
		seen = req
		return http.StatusOK, EnsureResponse{Status: "ok"}
	})

	c := New(srv.URL, 5*time.Second)
	err := c.EnsureBars(context.Background(), "APP", timeframe.M5,
		time.Date(2025, 12, 1, 14, 30, 0, 0, time.UTC),
		time.Date(2025, 12, 12, 21, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-12-01", seen.StartDate)
	assert.Equal(t, "2025-12-12", seen.EndDate)
	assert.Equal(t, 5, seen.TimeframeMinutes)
}
