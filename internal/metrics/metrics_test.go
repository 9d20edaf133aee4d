package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveWebhook("customer.subscription.updated", "applied", 5*time.Millisecond)
	m.ObserveWebhook("customer.subscription.updated", "applied", 0)
	m.ObserveWebhook("", "invalid_signature", 0)
	m.ObserveRelay("error", time.Millisecond)
	m.ObserveRequest("POST", "/api/contact", 201, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("customer.subscription.updated", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("unknown", "invalid_signature")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayAttempts.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.httpDuration))
}

func TestMetricsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveWebhook("x", "y", time.Second)
		m.ObserveRequest("GET", "/", 200, time.Second)
		m.ObserveRelay("relayed", time.Second)
	})
}
