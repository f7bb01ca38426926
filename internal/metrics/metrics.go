// Package metrics exposes prometheus instrumentation for the HTTP surface
// and the processing workers on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sentiq"

// Metrics carries every collector the service registers.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge

	uploadsTotal *prometheus.CounterVec
	uploadBytes  prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "status"},
	)
	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "record_process_total",
			Help:      "Total processed records by outcome.",
		},
		[]string{"outcome"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "record_process_duration_seconds",
			Help:      "Record processing duration in seconds by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "record_process_in_flight",
			Help:      "Number of in-flight record processing jobs.",
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Accepted uploads by dedup outcome.",
		},
		[]string{"outcome"},
	)
	uploadBytes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "upload_bytes_total",
			Help:      "Total payload bytes ingested before deduplication.",
		},
	)

	registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		processTotal,
		processDuration,
		processInFlight,
		uploadsTotal,
		uploadBytes,
	)

	return &Metrics{
		registry:            registry,
		httpRequestsTotal:   httpRequestsTotal,
		httpRequestDuration: httpRequestDuration,
		processTotal:        processTotal,
		processDuration:     processDuration,
		processInFlight:     processInFlight,
		uploadsTotal:        uploadsTotal,
		uploadBytes:         uploadBytes,
	}
}

// Handler serves the registry in prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveUpload records one accepted upload.
func (m *Metrics) ObserveUpload(duplicate bool, sizeBytes int64) {
	if m == nil {
		return
	}
	outcome := "new"
	if duplicate {
		outcome = "duplicate"
	}
	m.uploadsTotal.WithLabelValues(outcome).Inc()
	m.uploadBytes.Add(float64(sizeBytes))
}

// JobStarted implements worker.Observer.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.processInFlight.Inc()
}

// JobFinished implements worker.Observer.
func (m *Metrics) JobFinished(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.processInFlight.Dec()

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.processTotal.WithLabelValues(outcome).Inc()
	m.processDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
