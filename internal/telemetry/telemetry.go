// Package telemetry holds the process-wide prometheus collectors exposed
// by the monitor server. Counters are cheap enough to keep registered
// even in headless runs that never serve /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts terminated runs by final status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traderunner_runs_total",
		Help: "Terminated pipeline runs by final status",
	}, []string{"status"})

	// StepsTotal counts step events by name and status.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traderunner_steps_total",
		Help: "Pipeline step events by step name and status",
	}, []string{"step", "status"})

	// StageDuration observes wall time per pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "traderunner_stage_duration_seconds",
		Help:    "Wall-clock duration per pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"stage"})

	// ProducerRequests counts ensure-bars calls by outcome.
	ProducerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traderunner_producer_requests_total",
		Help: "Producer ensure_timeframe_bars requests by outcome",
	}, []string{"outcome"})

	// PaperOrders counts paper order submissions by outcome.
	PaperOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traderunner_paper_orders_total",
		Help: "Paper-trading order intents by outcome",
	}, []string{"outcome"})

	// HistoryRows counts runtime-history upserts by source.
	HistoryRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traderunner_history_rows_total",
		Help: "Runtime-history bar upserts by source",
	}, []string{"source"})
)
