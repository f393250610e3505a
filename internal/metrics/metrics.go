// Package metrics exposes the Prometheus instrumentation the orchestrator
// emits: queue depth, quota usage, worker loop outcomes, and circuit
// breaker state for the remote video platform and home-automation clients.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth reports the number of pending queue rows by item type.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ytthumbs_queue_depth",
		Help: "Number of pending queue rows, by item type.",
	}, []string{"type"})

	// QueueClaims counts claimed queue items by type and terminal outcome.
	QueueClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytthumbs_queue_claims_total",
		Help: "Queue items claimed by the worker, by type and outcome.",
	}, []string{"type", "outcome"})

	// WorkerLoopIterations counts worker loop iterations by what happened.
	WorkerLoopIterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytthumbs_worker_loop_total",
		Help: "Worker loop iterations, by result (claimed, idle, quota_sleep).",
	}, []string{"result"})

	// QuotaUsed reports the current day's cumulative quota cost.
	QuotaUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytthumbs_quota_used",
		Help: "Cumulative remote-platform quota cost used today.",
	})

	// QuotaExhaustedSleeps counts how many times the worker slept to the
	// next quota reset boundary.
	QuotaExhaustedSleeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytthumbs_quota_exhausted_sleeps_total",
		Help: "Number of times the worker slept until the next quota reset.",
	})

	// RemoteCalls counts remote-platform calls by method and outcome.
	RemoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytthumbs_remote_calls_total",
		Help: "Remote video-platform API calls, by method and outcome.",
	}, []string{"method", "outcome"})

	// SearchCacheLookups counts search-pipeline cache lookups by source and hit/miss.
	SearchCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytthumbs_cache_lookups_total",
		Help: "Cache lookups performed before issuing a remote search, by source and result.",
	}, []string{"source", "result"})

	// CircuitBreakerState reports gobreaker state (0=closed,1=half-open,2=open) per breaker.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ytthumbs_circuit_breaker_state",
		Help: "Circuit breaker state by name (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})

	// CircuitBreakerTransitions counts state transitions.
	CircuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytthumbs_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions, by name, from-state, and to-state.",
	}, []string{"name", "from", "to"})

	// PollerTicks counts playback poller ticks by outcome.
	PollerTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytthumbs_poller_ticks_total",
		Help: "Playback poller ticks, by outcome (skipped, cooldown, cache_hit, enqueued, error).",
	}, []string{"outcome"})

	// PollerConsecutiveFailures reports the poller's current failure streak.
	PollerConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytthumbs_poller_consecutive_failures",
		Help: "Current consecutive failure count for the playback poller.",
	})
)
