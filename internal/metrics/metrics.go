// Package metrics holds the Prometheus collectors of the converter.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "statement_converter"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ModelCalls       *prometheus.CounterVec
	ModelLatency     *prometheus.HistogramVec
	FileOutcomes     *prometheus.CounterVec
	Conversions      *prometheus.CounterVec
	TransactionsSeen prometheus.Counter
	JobsInFlight     prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Generative model calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ModelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Generative model call latency by kind.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"kind"}),
		FileOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_outcomes_total",
			Help:      "Per-file processing outcomes by final status.",
		}, []string{"status"}),
		Conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Conversion runs by outcome.",
		}, []string{"outcome"}),
		TransactionsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_extracted_total",
			Help:      "Transactions extracted across all conversions.",
		}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Conversion jobs currently running.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ModelCalls,
			m.ModelLatency,
			m.FileOutcomes,
			m.Conversions,
			m.TransactionsSeen,
			m.JobsInFlight,
			m.HTTPRequests,
		)
	}
	return m
}

// ObserveModelCall records one model call.
func (m *Metrics) ObserveModelCall(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ModelCalls.WithLabelValues(kind, outcome).Inc()
	m.ModelLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// FileOutcome records the final status of one file.
func (m *Metrics) FileOutcome(status string) {
	if m == nil {
		return
	}
	m.FileOutcomes.WithLabelValues(status).Inc()
}

// Conversion records a finished conversion and its transaction count.
func (m *Metrics) Conversion(outcome string, transactions int) {
	if m == nil {
		return
	}
	m.Conversions.WithLabelValues(outcome).Inc()
	m.TransactionsSeen.Add(float64(transactions))
}

// JobStarted and JobFinished track running conversion jobs.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.JobsInFlight.Inc()
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.JobsInFlight.Dec()
}

// HTTPRequest records one API request. route is the matched mux pattern.
func (m *Metrics) HTTPRequest(method, route string, code int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
