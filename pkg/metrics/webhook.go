package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records the outcome of payment webhook deliveries.
type WebhookMetrics struct {
	processed *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_processed",
		Help: "Webhook events that were fully processed.",
	}, []string{"provider", "event_type"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_skipped",
		Help: "Webhook events skipped as duplicates or unhandled types.",
	}, []string{"provider", "event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_failed",
		Help: "Webhook events that failed processing.",
	}, []string{"provider", "event_type"})
	reg.MustRegister(processed, skipped, failed)
	return &WebhookMetrics{
		processed: processed,
		skipped:   skipped,
		failed:    failed,
	}
}

// IncProcessed increments the processed counter for the provider and event type.
func (w *WebhookMetrics) IncProcessed(provider, eventType string) {
	if w == nil || w.processed == nil {
		return
	}
	w.processed.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Inc()
}

// IncSkipped increments the skipped counter for the provider and event type.
func (w *WebhookMetrics) IncSkipped(provider, eventType string) {
	if w == nil || w.skipped == nil {
		return
	}
	w.skipped.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Inc()
}

// IncFailed increments the failed counter for the provider and event type.
func (w *WebhookMetrics) IncFailed(provider, eventType string) {
	if w == nil || w.failed == nil {
		return
	}
	w.failed.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Inc()
}
