// File: control/metrics.go
// Package control
// Author: momentics <momentics@gmail.com>
//
// MetricsRegistry exports session/server counters via
// github.com/prometheus/client_golang, the dependency linchenxuan-asura
// declares in go.mod (metrics/types.go defines its own aggregation
// policy abstraction, but nothing in that repo actually wires the
// client_golang dependency to a collector) — this gives it the concrete
// exporter use that repo never provides.
package control

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/netreactor/api"
)

// MetricsRegistry wraps the per-server counters/gauges surfaced to
// Prometheus scrapers, mirroring the fields of api.Metrics.
type MetricsRegistry struct {
	Sessions       prometheus.Gauge
	BytesSent      prometheus.Counter
	BytesReceived  prometheus.Counter
	ErrorsObserved prometheus.Counter
}

// NewMetricsRegistry constructs and registers a MetricsRegistry under
// reg, with metric names prefixed by namespace (typically the server or
// service name, e.g. "ws_echo").
func NewMetricsRegistry(reg prometheus.Registerer, namespace string) *MetricsRegistry {
	m := &MetricsRegistry{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected sessions.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to the network.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total bytes read from the network.",
		}),
		ErrorsObserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors reported through onError sinks.",
		}),
	}
	reg.MustRegister(m.Sessions, m.BytesSent, m.BytesReceived, m.ErrorsObserved)
	return m
}

// Observe applies a point-in-time api.Metrics snapshot to the registry's
// gauges/counters. BytesSent/BytesReceived are treated as monotonic
// totals: the caller is expected to pass cumulative counts, matching
// api.Metrics' own field semantics.
func (m *MetricsRegistry) Observe(snapshot api.Metrics, prevSent, prevRecv uint64) {
	m.Sessions.Set(float64(snapshot.Sessions))
	if snapshot.BytesSent > prevSent {
		m.BytesSent.Add(float64(snapshot.BytesSent - prevSent))
	}
	if snapshot.BytesReceived > prevRecv {
		m.BytesReceived.Add(float64(snapshot.BytesReceived - prevRecv))
	}
}

// IncError increments the error counter; called from an onError sink.
func (m *MetricsRegistry) IncError() {
	m.ErrorsObserved.Inc()
}
