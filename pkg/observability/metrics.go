// Package observability provides Prometheus metrics for the disk
// ejection engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eject_disks"

// Metrics holds every Prometheus metric the engine exports. Uses a custom
// registry (not the global DefaultRegisterer) so a process embedding this
// engine more than once never panics on duplicate registration.
type Metrics struct {
	registry *prometheus.Registry

	ejectOpsTotal    *prometheus.CounterVec
	ejectOpsDuration *prometheus.HistogramVec

	enumerationsTotal    prometheus.Counter
	enumerationDuration  prometheus.Histogram
	ejectableVolumeCount prometheus.Gauge

	diagnoseOpsTotal   prometheus.Counter
	blockingProcesses  prometheus.Histogram
	circuitBreakerTrip *prometheus.CounterVec
}

// NewMetrics builds a Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		ejectOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "eject_operations_total",
				Help:      "Total number of eject/unmount operations by method and status",
			},
			[]string{"method", "status"},
		),
		ejectOpsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "eject_operation_duration_seconds",
				Help:      "Duration of eject/unmount operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		enumerationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enumerations_total",
			Help:      "Total number of volume enumeration passes",
		}),
		enumerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enumeration_duration_seconds",
			Help:      "Duration of volume enumeration passes in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ejectableVolumeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ejectable_volume_count",
			Help:      "Number of volumes found eligible for ejection on the last enumeration",
		}),
		diagnoseOpsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnose_operations_total",
			Help:      "Total number of blocking-process diagnose operations",
		}),
		blockingProcesses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "blocking_processes_found",
			Help:      "Number of blocking processes found per diagnose call",
			Buckets:   []float64{0, 1, 2, 4, 8, 16},
		}),
		circuitBreakerTrip: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of times a per-device circuit breaker changed state",
			},
			[]string{"whole_disk_bsd", "state"},
		),
	}

	reg.MustRegister(
		m.ejectOpsTotal,
		m.ejectOpsDuration,
		m.enumerationsTotal,
		m.enumerationDuration,
		m.ejectableVolumeCount,
		m.diagnoseOpsTotal,
		m.blockingProcesses,
		m.circuitBreakerTrip,
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEjectOp records the outcome of one unmount/eject/detach call.
func (m *Metrics) RecordEjectOp(method string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.ejectOpsTotal.WithLabelValues(method, status).Inc()
	m.ejectOpsDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordEnumeration records one enumeration pass and its result count.
func (m *Metrics) RecordEnumeration(count int, duration time.Duration) {
	m.enumerationsTotal.Inc()
	m.enumerationDuration.Observe(duration.Seconds())
	m.ejectableVolumeCount.Set(float64(count))
}

// RecordDiagnose records one diagnoser call and how many processes it found.
func (m *Metrics) RecordDiagnose(blockingCount int) {
	m.diagnoseOpsTotal.Inc()
	m.blockingProcesses.Observe(float64(blockingCount))
}

// RecordCircuitBreakerStateChange records a per-device breaker transition.
func (m *Metrics) RecordCircuitBreakerStateChange(wholeDiskBSD, state string) {
	m.circuitBreakerTrip.WithLabelValues(wholeDiskBSD, state).Inc()
}
