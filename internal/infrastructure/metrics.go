package infrastructure

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	UpstreamRequests *prometheus.CounterVec
	StreamEvents     *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total requests to the remote BI backend by path and status.",
			}, []string{"path", "status"}),
			StreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_events_total",
				Help:      "Total event-stream payloads by parsed type.",
			}, []string{"type"}),
			MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Total outgoing WhatsApp messages by outcome.",
			}, []string{"outcome"}),
		}

		prometheus.MustRegister(
			metricsInstance.UpstreamRequests,
			metricsInstance.StreamEvents,
			metricsInstance.MessagesSent,
		)
	})
	return metricsInstance
}
