package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for hlfb-sentinel.
type Metrics struct {
	registry                 *prometheus.Registry
	cycleDurationSeconds     prometheus.Histogram
	axisState                *prometheus.GaugeVec
	fleetReady               *prometheus.GaugeVec
	transitionsTotal         *prometheus.CounterVec
	alertsTotal              *prometheus.CounterVec
	sampleErrorsTotal        prometheus.Counter
	lastSuccessfulCycleGauge prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		cycleDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hlfb_sentinel_cycle_duration_seconds",
			Help:    "Duration of polling cycles in seconds.",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		axisState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hlfb_sentinel_axis_state",
			Help: "1 for the current lifecycle state of each axis, 0 otherwise.",
		}, []string{"machine", "axis", "state"}),
		fleetReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hlfb_sentinel_fleet_ready",
			Help: "1 when every axis is enabled.",
		}, []string{"machine"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlfb_sentinel_axis_transitions_total",
			Help: "Total axis state transitions by target state.",
		}, []string{"machine", "axis", "state"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlfb_sentinel_alerts_total",
			Help: "Total alerts emitted by machine and severity.",
		}, []string{"machine", "severity"}),
		sampleErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hlfb_sentinel_sample_errors_total",
			Help: "Total hardware sampling failures.",
		}),
		lastSuccessfulCycleGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hlfb_sentinel_last_successful_cycle_timestamp",
			Help: "Unix timestamp of the last successful cycle.",
		}),
	}

	registry.MustRegister(
		m.cycleDurationSeconds,
		m.axisState,
		m.fleetReady,
		m.transitionsTotal,
		m.alertsTotal,
		m.sampleErrorsTotal,
		m.lastSuccessfulCycleGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycleDuration records the duration of a completed cycle.
func (m *Metrics) ObserveCycleDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.cycleDurationSeconds.Observe(duration.Seconds())
}

// SetAxisState marks current as the active state of an axis among states.
func (m *Metrics) SetAxisState(machine, axis, current string, states []string) {
	if m == nil {
		return
	}
	for _, state := range states {
		value := 0.0
		if state == current {
			value = 1
		}
		m.axisState.WithLabelValues(machine, axis, state).Set(value)
	}
}

// SetFleetReady records the readiness verdict.
func (m *Metrics) SetFleetReady(machine string, ready bool) {
	if m == nil {
		return
	}
	value := 0.0
	if ready {
		value = 1
	}
	m.fleetReady.WithLabelValues(machine).Set(value)
}

// IncTransitions increments the transition counter for an axis.
func (m *Metrics) IncTransitions(machine, axis, state string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(machine, axis, state).Inc()
}

// IncAlertsTotal increments the alerts counter for the given machine/severity.
func (m *Metrics) IncAlertsTotal(machine string, severity string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(machine, severity).Inc()
}

// IncSampleErrors increments the sampling error counter.
func (m *Metrics) IncSampleErrors() {
	if m == nil {
		return
	}
	m.sampleErrorsTotal.Inc()
}

// SetLastSuccessfulCycleTimestamp sets the last successful cycle time.
func (m *Metrics) SetLastSuccessfulCycleTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulCycleGauge.Set(float64(t.Unix()))
}
