// Package telemetry exposes operational metrics of the auditor as Prometheus collectors.
package telemetry

import (
	"time"

	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gap_auditor"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	auditRuns              *prometheus.CounterVec
	auditDuration          prometheus.Histogram
	workloadsAudited       prometheus.Counter
	gapViolations          *prometheus.CounterVec
	recommendationDuration *prometheus.HistogramVec
	recommendationInFlight prometheus.Gauge
	cacheLookups           *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		auditRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_runs_total",
			Help:      "Audit runs by result.",
		}, []string{"result"}),
		auditDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_duration_seconds",
			Help:      "Wall time of complete audit runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		workloadsAudited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workloads_audited_total",
			Help:      "Workloads compared against their recommendation.",
		}),
		gapViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gap_violations_total",
			Help:      "Container resources whose gap exceeded the threshold.",
		}, []string{"resource"}),
		recommendationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recommendation_request_duration_seconds",
			Help:      "Latency of recommendation engine calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		recommendationInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recommendation_requests_in_flight",
			Help:      "Recommendation engine calls currently running.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendation_cache_lookups_total",
			Help:      "Recommendation cache lookups by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.auditRuns,
		m.auditDuration,
		m.workloadsAudited,
		m.gapViolations,
		m.recommendationDuration,
		m.recommendationInFlight,
		m.cacheLookups,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveAudit records a finished audit run
func (m *Metrics) ObserveAudit(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.auditRuns.WithLabelValues(result(err)).Inc()
	m.auditDuration.Observe(d.Seconds())
}

// ObserveWorkload records one audited workload and its violations
func (m *Metrics) ObserveWorkload(entries []models.GapEntry) {
	if m == nil {
		return
	}
	m.workloadsAudited.Inc()
	for _, e := range entries {
		for kind, r := range e.PerResource {
			if r.Exceeds {
				m.gapViolations.WithLabelValues(string(kind)).Inc()
			}
		}
	}
}

// StartRecommendation marks a recommendation call as in flight. The returned
// func must be called with the call's error when it completes.
func (m *Metrics) StartRecommendation() func(error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	m.recommendationInFlight.Inc()
	return func(err error) {
		m.recommendationInFlight.Dec()
		m.recommendationDuration.WithLabelValues(result(err)).Observe(time.Since(start).Seconds())
	}
}

// ObserveCacheLookup records a recommendation cache hit or miss
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}
