// Package metrics exposes prometheus collectors for remote commands, debug
// channel traffic and network interception.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/remoteerr"
)

// Metrics groups every collector of the driver. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	commandDuration *prometheus.HistogramVec
	commandErrors   *prometheus.CounterVec
	debugCommands   *prometheus.CounterVec
	interceptions   *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "remote_driver",
			Name:      "command_duration_seconds",
			Help:      "Latency of remote driver commands.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command", "dialect"}),
		commandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remote_driver",
			Name:      "command_errors_total",
			Help:      "Failed remote driver commands by error kind.",
		}, []string{"command", "kind"}),
		debugCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remote_driver",
			Name:      "debug_commands_total",
			Help:      "Commands sent over the debugging channel.",
		}, []string{"method", "outcome"}),
		interceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remote_driver",
			Name:      "interceptions_total",
			Help:      "Intercepted network events by disposition.",
		}, []string{"disposition"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "remote_driver",
			Name:      "active_sessions",
			Help:      "Remote sessions currently open.",
		}),
	}

	m.registry.MustRegister(
		m.commandDuration,
		m.commandErrors,
		m.debugCommands,
		m.interceptions,
		m.activeSessions,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collectors in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one remote command round trip.
func (m *Metrics) ObserveCommand(command, dialect string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.commandDuration.WithLabelValues(command, dialect).Observe(elapsed.Seconds())
	if err != nil {
		kind := string(remoteerr.KindOf(err))
		if kind == "" {
			kind = "other"
		}
		m.commandErrors.WithLabelValues(command, kind).Inc()
	}
}

// ObserveDebugCommand records one debugging channel command.
func (m *Metrics) ObserveDebugCommand(method string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.debugCommands.WithLabelValues(method, outcome).Inc()
}

// RecordDisposition counts how an intercepted event was resolved.
func (m *Metrics) RecordDisposition(disposition string) {
	if m == nil {
		return
	}
	m.interceptions.WithLabelValues(disposition).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
