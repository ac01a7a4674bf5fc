// Package metrics holds the Prometheus instrumentation for the hub runtime.
//
// All collectors live on a private registry so tests can construct
// independent instances. Recorder methods are nil-safe: a nil *Metrics
// simply records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graylogic_hass"

// Metrics contains the runtime's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// ServiceCalls counts socket-dispatched service calls by domain/service.
	ServiceCalls *prometheus.CounterVec

	// EntityUpdates counts state updates ingested by the entity cache.
	EntityUpdates prometheus.Counter

	// RegistryUpdates counts debounced entity registry notifications.
	RegistryUpdates prometheus.Counter

	// BootstrapAttempts counts bulk entity fetch attempts.
	BootstrapAttempts prometheus.Counter

	// SocketConnected is 1 while the hub socket is connected.
	SocketConnected prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ServiceCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "call_proxy",
				Name:      "service_call_total",
				Help:      "Service calls dispatched over the socket",
			},
			[]string{"domain", "service"},
		),
		EntityUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entity",
			Name:      "updates_total",
			Help:      "Entity state updates ingested",
		}),
		RegistryUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entity",
			Name:      "registry_updates_total",
			Help:      "Debounced entity registry update notifications",
		}),
		BootstrapAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "fetch_attempts_total",
			Help:      "Bulk entity fetch attempts",
		}),
		SocketConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "connected",
			Help:      "1 while the hub socket is connected",
		}),
	}

	m.registry.MustRegister(
		m.ServiceCalls,
		m.EntityUpdates,
		m.RegistryUpdates,
		m.BootstrapAttempts,
		m.SocketConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncServiceCall records one socket-dispatched service call.
func (m *Metrics) IncServiceCall(domain, service string) {
	if m == nil {
		return
	}
	m.ServiceCalls.WithLabelValues(domain, service).Inc()
}

// IncEntityUpdate records one ingested entity update.
func (m *Metrics) IncEntityUpdate() {
	if m == nil {
		return
	}
	m.EntityUpdates.Inc()
}

// IncRegistryUpdate records one debounced registry notification.
func (m *Metrics) IncRegistryUpdate() {
	if m == nil {
		return
	}
	m.RegistryUpdates.Inc()
}

// IncBootstrapAttempt records one bulk entity fetch attempt.
func (m *Metrics) IncBootstrapAttempt() {
	if m == nil {
		return
	}
	m.BootstrapAttempts.Inc()
}

// SetSocketConnected updates the socket connection gauge.
func (m *Metrics) SetSocketConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.SocketConnected.Set(1)
		return
	}
	m.SocketConnected.Set(0)
}
