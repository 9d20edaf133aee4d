// Package metrics defines the service's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "landing_api"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	webhookEvents   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	httpDuration    *prometheus.HistogramVec
	relayAttempts   *prometheus.CounterVec
	relayDuration   prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Stripe webhook deliveries by event type and outcome.",
		}, []string{"type", "outcome"}),
		webhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_apply_duration_seconds",
			Help:      "Time spent applying verified webhook events.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		relayAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contact_relay_attempts_total",
			Help:      "Contact form relay attempts by result.",
		}, []string{"result"}),
		relayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "contact_relay_duration_seconds",
			Help:      "Latency of calls to the form relay endpoint.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{m.webhookEvents, m.webhookDuration, m.httpDuration, m.relayAttempts, m.relayDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveWebhook counts one delivery. eventType is empty for deliveries rejected
// before the event could be decoded.
func (m *Metrics) ObserveWebhook(eventType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
	if d > 0 {
		m.webhookDuration.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveRelay records one relay attempt; result is "relayed" or "error".
func (m *Metrics) ObserveRelay(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.relayAttempts.WithLabelValues(result).Inc()
	if d > 0 {
		m.relayDuration.Observe(d.Seconds())
	}
}
