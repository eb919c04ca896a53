package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records processing outcomes for inbound provider webhooks.
type WebhookMetrics struct {
	duration  *prometheus.HistogramVec
	processed *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "webhook_processing_seconds",
		Help:      "Duration of webhook processing in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_processed_total",
		Help:      "Processed webhook deliveries by provider and outcome.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(duration, processed)
	return &WebhookMetrics{duration: duration, processed: processed}
}

// ObserveProcessing records one delivery for the provider.
func (w *WebhookMetrics) ObserveProcessing(provider, outcome string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(provider)).Observe(duration.Seconds())
	w.processed.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}
