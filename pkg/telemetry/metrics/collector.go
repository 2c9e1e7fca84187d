// Package metrics exposes Prometheus metrics for the evaluation pipeline:
// decision counts, evaluation latency, blocked actions per policy, and
// snapshot reload counts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector manages Prometheus metric registration and recording for all
// components.
//
// # Thread Safety
//
// All recording methods are safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	policyBlocksTotal  *prometheus.CounterVec
	dedupHitsTotal     prometheus.Counter
	overridesTotal     prometheus.Counter
	snapshotReloads    *prometheus.CounterVec
	policiesLoaded     prometheus.Gauge
}

// NewCollector creates a metrics collector over the given registry. A nil
// registry gets a fresh private one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ganymede",
			Name:      "evaluations_total",
			Help:      "Action evaluations by decision and effective mode.",
		}, []string{"decision", "mode"}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ganymede",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating a single action.",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
		}),
		policyBlocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ganymede",
			Name:      "policy_blocks_total",
			Help:      "Blocking verdicts by policy and mode.",
		}, []string{"policy_id", "mode"}),
		dedupHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ganymede",
			Name:      "dedup_hits_total",
			Help:      "Evaluations replayed from the idempotency cache.",
		}),
		overridesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ganymede",
			Name:      "overrides_total",
			Help:      "Evaluations bypassed by operator override.",
		}),
		snapshotReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ganymede",
			Name:      "snapshot_reloads_total",
			Help:      "Policy snapshot reloads by outcome.",
		}, []string{"outcome"}),
		policiesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ganymede",
			Name:      "policies_loaded",
			Help:      "Policies in the current snapshot.",
		}),
	}

	registry.MustRegister(
		c.evaluationsTotal,
		c.evaluationDuration,
		c.policyBlocksTotal,
		c.dedupHitsTotal,
		c.overridesTotal,
		c.snapshotReloads,
		c.policiesLoaded,
	)

	return c
}

// RecordEvaluation records one completed evaluation.
func (c *Collector) RecordEvaluation(decision, mode string, duration time.Duration) {
	c.evaluationsTotal.WithLabelValues(decision, mode).Inc()
	c.evaluationDuration.Observe(duration.Seconds())
}

// RecordPolicyBlock records a blocking verdict from one policy.
func (c *Collector) RecordPolicyBlock(policyID, mode string) {
	c.policyBlocksTotal.WithLabelValues(policyID, mode).Inc()
}

// RecordDedupHit records an idempotency cache replay.
func (c *Collector) RecordDedupHit() {
	c.dedupHitsTotal.Inc()
}

// RecordOverride records an operator bypass.
func (c *Collector) RecordOverride() {
	c.overridesTotal.Inc()
}

// RecordSnapshotReload records a policy reload attempt. Outcome is
// "success" or "failure".
func (c *Collector) RecordSnapshotReload(outcome string) {
	c.snapshotReloads.WithLabelValues(outcome).Inc()
}

// SetPoliciesLoaded sets the current snapshot's policy count.
func (c *Collector) SetPoliciesLoaded(n int) {
	c.policiesLoaded.Set(float64(n))
}

// Handler returns the HTTP handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
