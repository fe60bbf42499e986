// Package metrics exposes the Prometheus instrumentation for the
// orchestration core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered for one server instance.
type Metrics struct {
	PaymentsTotal      *prometheus.CounterVec
	WebhookEventsTotal *prometheus.CounterVec
	RetriesTotal       *prometheus.CounterVec
	InitiateDuration   *prometheus.HistogramVec
}

// New registers the collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PaymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paycore_payments_total",
			Help: "Payment attempts by provider and final create outcome.",
		}, []string{"provider", "outcome"}),
		WebhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paycore_webhook_events_total",
			Help: "Webhook deliveries by provider and handling result.",
		}, []string{"provider", "result"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paycore_initiate_retries_total",
			Help: "Retried initiate calls by provider.",
		}, []string{"provider"}),
		InitiateDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paycore_initiate_duration_seconds",
			Help:    "Wall time of provider initiate calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}
}

// ObserveInitiate records one initiate call's duration.
func (m *Metrics) ObserveInitiate(provider string, start time.Time) {
	m.InitiateDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}
