package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAudit(nil, time.Second)
		m.ObserveWorkload([]models.GapEntry{{}})
		m.StartRecommendation()(errors.New("boom"))
		m.ObserveCacheLookup(true)
	})
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAudit(nil, time.Second)
	m.ObserveAudit(errors.New("upstream"), time.Second)
	m.ObserveWorkload([]models.GapEntry{{
		PerResource: map[models.ResourceKind]models.GapResult{
			models.ResourceCPU:    {Exceeds: true},
			models.ResourceMemory: {Exceeds: false},
		},
	}})
	done := m.StartRecommendation()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recommendationInFlight))
	done(nil)
	m.ObserveCacheLookup(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditRuns.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditRuns.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workloadsAudited))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gapViolations.WithLabelValues("cpu")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.gapViolations.WithLabelValues("memory")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.recommendationInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
}
