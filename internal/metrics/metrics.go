// README: Prometheus collectors for dispatch, billing, and fan-out activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates the engine's operational metrics.
type Collector struct {
	registry *prometheus.Registry

	requestsCreated prometheus.Counter
	assignments     *prometheus.CounterVec
	unassigned      *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	ordersSettled   prometheus.Counter
	connections     prometheus.Gauge
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		requestsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_requests_created_total",
			Help: "Total number of emergency requests recorded",
		}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_assignments_total",
			Help: "Total number of successful responder assignments",
		}, []string{"category"}),
		unassigned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_unassigned_total",
			Help: "Total number of dispatch attempts that found no candidate",
		}, []string{"reason"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_events_published_total",
			Help: "Total number of events fanned out to live subscribers",
		}, []string{"type"}),
		ordersSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_orders_settled_total",
			Help: "Total number of orders settled on request completion",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifeline_live_connections",
			Help: "Current number of live websocket connections",
		}),
	}
	registry.MustRegister(
		c.requestsCreated, c.assignments, c.unassigned,
		c.eventsPublished, c.ordersSettled, c.connections,
	)
	return c
}

func (c *Collector) RecordRequestCreated() {
	c.requestsCreated.Inc()
}

func (c *Collector) RecordAssignment(category string) {
	c.assignments.WithLabelValues(category).Inc()
}

func (c *Collector) RecordUnassigned(reason string) {
	c.unassigned.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordEventPublished(eventType string) {
	c.eventsPublished.WithLabelValues(eventType).Inc()
}

func (c *Collector) RecordOrdersSettled(n int) {
	c.ordersSettled.Add(float64(n))
}

func (c *Collector) ConnectionsChanged(delta int) {
	c.connections.Add(float64(delta))
}

// Handler serves the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
