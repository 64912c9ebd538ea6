// Package metrics holds the Prometheus instruments for the refresh cycle and
// the streaming hub. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics groups every collector on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	RefreshCycles   *prometheus.CounterVec
	RefreshSkipped  prometheus.Counter
	RefreshDuration prometheus.Histogram
	AircraftVisible prometheus.Gauge
	StreamClients   prometheus.Gauge
	StreamDropped   prometheus.Counter
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RefreshCycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "skyfeed_refresh_cycles_total",
			Help: "Refresh cycles by result",
		}, []string{"result"}),
		RefreshSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "skyfeed_refresh_skipped_total",
			Help: "Ticks skipped because a cycle was still running or fired too early",
		}),
		RefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "skyfeed_refresh_duration_seconds",
			Help:    "Duration of refresh cycles (fetch through publish)",
			Buckets: prometheus.DefBuckets,
		}),
		AircraftVisible: f.NewGauge(prometheus.GaugeOpts{
			Name: "skyfeed_aircraft_visible",
			Help: "Aircraft in the current rolling dataset",
		}),
		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "skyfeed_stream_clients",
			Help: "Connected websocket clients",
		}),
		StreamDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "skyfeed_stream_dropped_total",
			Help: "Stream messages dropped because a buffer was full",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records one finished refresh cycle.
func (m *Metrics) ObserveCycle(d time.Duration, err error, visible int) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(d.Seconds())
	if err != nil {
		m.RefreshCycles.WithLabelValues(ResultError).Inc()
		return
	}
	m.RefreshCycles.WithLabelValues(ResultSuccess).Inc()
	m.AircraftVisible.Set(float64(visible))
}

// SkippedCycle records a tick that did not start a cycle.
func (m *Metrics) SkippedCycle() {
	if m == nil {
		return
	}
	m.RefreshSkipped.Inc()
}

// SetStreamClients records the current websocket client count.
func (m *Metrics) SetStreamClients(n int) {
	if m == nil {
		return
	}
	m.StreamClients.Set(float64(n))
}

// DroppedMessage records a stream message that could not be queued.
func (m *Metrics) DroppedMessage() {
	if m == nil {
		return
	}
	m.StreamDropped.Inc()
}
