// Package metrics exposes engine and API measurements as Prometheus
// collectors on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/engine"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

const namespace = "bizflow"

// Collector implements engine.Observer.
type Collector struct {
	registry        *prometheus.Registry
	events          *prometheus.CounterVec
	rulesMatched    *prometheus.CounterVec
	lookupFailures  *prometheus.CounterVec
	actions         *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
	consumedMessage *prometheus.CounterVec
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector registers all collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Trigger events accepted by the engine.",
		}, []string{"type"}),
		rulesMatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_matched_total",
			Help:      "Rules selected for execution.",
		}, []string{"type"}),
		lookupFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_lookup_failures_total",
			Help:      "Rule store reads that failed and were treated as zero matches.",
		}, []string{"type"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Action dispatches by outcome.",
		}, []string{"type", "outcome"}),
		actionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Time spent in action handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"route"}),
		consumedMessage: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nats_messages_total",
			Help:      "Event messages consumed from NATS by outcome.",
		}, []string{"outcome"}),
	}
}

// EventReceived implements engine.Observer.
func (c *Collector) EventReceived(t ir.TriggerType) {
	c.events.WithLabelValues(string(t)).Inc()
}

// RulesMatched implements engine.Observer.
func (c *Collector) RulesMatched(t ir.TriggerType, n int) {
	c.rulesMatched.WithLabelValues(string(t)).Add(float64(n))
}

// LookupFailed implements engine.Observer.
func (c *Collector) LookupFailed(t ir.TriggerType) {
	c.lookupFailures.WithLabelValues(string(t)).Inc()
}

// ActionFinished implements engine.Observer.
func (c *Collector) ActionFinished(t ir.ActionType, success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.actions.WithLabelValues(string(t), outcome).Inc()
	c.actionDuration.WithLabelValues(string(t)).Observe(d.Seconds())
}

// RateLimited counts a rejected request on route.
func (c *Collector) RateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

// MessageConsumed counts a NATS event message; outcome is "emitted" or
// "dropped".
func (c *Collector) MessageConsumed(outcome string) {
	c.consumedMessage.WithLabelValues(outcome).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
