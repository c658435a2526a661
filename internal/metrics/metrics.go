// Package metrics exposes Prometheus instrumentation for the survey core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the survey pipeline counters. A nil *Metrics is a valid
// no-op recorder.
type Metrics struct {
	triggersFired       *prometheus.CounterVec
	notificationsShown  *prometheus.CounterVec
	responsesDelivered  *prometheus.CounterVec
	malformedEvents     prometheus.Counter
	catalogLoadFailures prometheus.Counter
}

// New creates the metric set on its own registry and returns both.
func New() (*Metrics, *prometheus.Registry) {
	m := &Metrics{
		triggersFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsepoll_triggers_fired_total",
			Help: "Total periodic trigger firings by sensor.",
		}, []string{"sensor"}),
		notificationsShown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsepoll_notifications_shown_total",
			Help: "Total survey notifications shown by sensor.",
		}, []string{"sensor"}),
		responsesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsepoll_responses_delivered_total",
			Help: "Total response outcomes delivered to the sink, by sensor.",
		}, []string{"sensor"}),
		malformedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulsepoll_malformed_events_total",
			Help: "Total response flows dropped due to unparsable event payloads.",
		}),
		catalogLoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulsepoll_catalog_load_failures_total",
			Help: "Total sensor catalog load failures.",
		}),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		m.triggersFired,
		m.notificationsShown,
		m.responsesDelivered,
		m.malformedEvents,
		m.catalogLoadFailures,
	)
	return m, registry
}

// TriggerFired counts one firing for a sensor.
func (m *Metrics) TriggerFired(sensorID string) {
	if m == nil {
		return
	}
	m.triggersFired.WithLabelValues(sensorID).Inc()
}

// NotificationShown counts one shown notification for a sensor.
func (m *Metrics) NotificationShown(sensorID string) {
	if m == nil {
		return
	}
	m.notificationsShown.WithLabelValues(sensorID).Inc()
}

// ResponseDelivered counts one delivered outcome for a sensor.
func (m *Metrics) ResponseDelivered(sensorID string) {
	if m == nil {
		return
	}
	m.responsesDelivered.WithLabelValues(sensorID).Inc()
}

// MalformedEvent counts one silently dropped response flow.
func (m *Metrics) MalformedEvent() {
	if m == nil {
		return
	}
	m.malformedEvents.Inc()
}

// CatalogLoadFailure counts one catalog load failure.
func (m *Metrics) CatalogLoadFailure() {
	if m == nil {
		return
	}
	m.catalogLoadFailures.Inc()
}

// Handler returns the exposition handler for a registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
