// Package metrics declares the Prometheus collectors for the broker side of
// the service.  HTTP collectors live with the HTTP middleware.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auth_events_handled_total", Help: "Inbound events by outcome (ack, requeue, reject)"},
		[]string{"event", "outcome"},
	)
	EventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_event_duration_seconds",
			Help:    "Time spent handling one inbound event",
			Buckets: prometheus.DefBuckets,
		}, []string{"event"},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auth_events_published_total", Help: "Outbound events by result (ok, error)"},
		[]string{"event", "result"},
	)
	BrokerConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "auth_broker_connected", Help: "1 while the broker connection is up"},
	)
	BrokerConnectFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "auth_broker_connect_failures_total", Help: "Failed broker connection attempts"},
	)
	BrokerDisconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "auth_broker_disconnects_total", Help: "Lost broker connections"},
	)
)

func init() {
	prometheus.MustRegister(EventsHandled, EventDuration, EventsPublished,
		BrokerConnected, BrokerConnectFailures, BrokerDisconnects)
}
