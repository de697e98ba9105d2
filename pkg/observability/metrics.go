// Package observability holds the Prometheus metrics for the coordinator.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. A nil
// *Collector is valid and records nothing, so components can treat metrics
// as optional.
type Collector struct {
	registry *prometheus.Registry

	planExecutions *prometheus.CounterVec
	planDuration   *prometheus.HistogramVec
	stepRetries    prometheus.Counter

	breakerTransitions *prometheus.CounterVec
	reasoningCalls     *prometheus.CounterVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	planExecutions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_executions_total",
			Help:      "Total number of executed plans by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	planDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_duration_seconds",
			Help:      "Plan execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	stepRetries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Total number of step retry attempts",
		},
	)

	breakerTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)

	reasoningCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoning_calls_total",
			Help:      "Calls issued to the reasoning service by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
	)

	cacheMisses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
	)

	registry.MustRegister(
		planExecutions,
		planDuration,
		stepRetries,
		breakerTransitions,
		reasoningCalls,
		cacheHits,
		cacheMisses,
	)

	return &Collector{
		registry:           registry,
		planExecutions:     planExecutions,
		planDuration:       planDuration,
		stepRetries:        stepRetries,
		breakerTransitions: breakerTransitions,
		reasoningCalls:     reasoningCalls,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
	}
}

// Handler returns the HTTP handler exposing this collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordPlanExecution records one finished plan.
func (c *Collector) RecordPlanExecution(kind, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.planExecutions.WithLabelValues(kind, status).Inc()
	c.planDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStepRetry records one retry attempt.
func (c *Collector) RecordStepRetry() {
	if c == nil {
		return
	}
	c.stepRetries.Inc()
}

// RecordBreakerTransition records a circuit breaker state change.
func (c *Collector) RecordBreakerTransition(from, to string) {
	if c == nil {
		return
	}
	c.breakerTransitions.WithLabelValues(from, to).Inc()
}

// RecordReasoningCall records one call that reached the reasoning service.
func (c *Collector) RecordReasoningCall(kind, status string) {
	if c == nil {
		return
	}
	c.reasoningCalls.WithLabelValues(kind, status).Inc()
}

// RecordCacheHit records a response or projection cache hit.
func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}
