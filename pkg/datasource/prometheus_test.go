package datasource

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	results  map[string]model.Value
	err      error
	queries  []string
	ranges   []v1.Range
	warnings v1.Warnings
}

func (f *fakeQuerier) Query(ctx context.Context, query string, ts time.Time, opts ...v1.Option) (model.Value, v1.Warnings, error) {
	f.queries = append(f.queries, query)
	return model.Vector{}, nil, f.err
}

func (f *fakeQuerier) QueryRange(ctx context.Context, query string, r v1.Range, opts ...v1.Option) (model.Value, v1.Warnings, error) {
	f.queries = append(f.queries, query)
	f.ranges = append(f.ranges, r)
	if f.err != nil {
		return nil, nil, f.err
	}
	for prefix, v := range f.results {
		if strings.HasPrefix(query, prefix) {
			return v, f.warnings, nil
		}
	}
	return model.Matrix{}, f.warnings, nil
}

func series(pod, container string, values ...float64) *model.SampleStream {
	s := &model.SampleStream{
		Metric: model.Metric{"pod": model.LabelValue(pod), "container": model.LabelValue(container)},
	}
	for i, v := range values {
		s.Values = append(s.Values, model.SamplePair{
			Timestamp: model.TimeFromUnix(int64(1700000000 + i*300)),
			Value:     model.SampleValue(v),
		})
	}
	return s
}

func TestContainerUsage(t *testing.T) {
	q := &fakeQuerier{results: map[string]model.Value{
		"rate(container_cpu_usage_seconds_total": model.Matrix{
			series("api-7d9f8b-abcde", "web", 0.1, 0.2),
			series("api-7d9f8b-fghij", "web", 0.3),
			series("api-7d9f8b-abcde", "envoy", 0.05),
		},
		"container_memory_working_set_bytes": model.Matrix{
			series("api-7d9f8b-abcde", "web", 104857600),
			series("api-7d9f8b-abcde", "", 1),
		},
	}}
	src := NewPrometheusSourceFromAPI(q, 0, logr.Discard())

	usage, err := src.ContainerUsage(context.Background(), "prod", "api-[a-z0-9]+-[a-z0-9]+", 14*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, usage, 2)

	assert.Equal(t, "envoy", usage[0].Container)
	assert.Empty(t, usage[0].Memory)
	assert.InDelta(t, 50, usage[0].CPU[0].Value, 1e-9)

	web := usage[1]
	assert.Equal(t, "web", web.Container)
	require.Len(t, web.CPU, 3)
	assert.InDelta(t, 300, web.CPU[2].Value, 1e-9)
	require.Len(t, web.Memory, 1)
	assert.Equal(t, 104857600.0, web.Memory[0].Value)

	require.Len(t, q.queries, 2)
	assert.Contains(t, q.queries[0], `namespace="prod"`)
	assert.Contains(t, q.queries[0], `pod=~"api-[a-z0-9]+-[a-z0-9]+"`)
	assert.Contains(t, q.queries[1], `container!="POD"`)
	assert.Equal(t, DefaultStep, q.ranges[0].Step)
	assert.Equal(t, 14*24*time.Hour, q.ranges[0].End.Sub(q.ranges[0].Start))
}

func TestContainerUsageLongWindowWidensStep(t *testing.T) {
	q := &fakeQuerier{}
	src := NewPrometheusSourceFromAPI(q, time.Minute, logr.Discard())

	_, err := src.ContainerUsage(context.Background(), "prod", "db-[0-9]+", 30*24*time.Hour)
	require.NoError(t, err)

	step := q.ranges[0].Step
	assert.Greater(t, step, time.Minute)
	assert.LessOrEqual(t, int64(30*24*time.Hour/step), int64(maxPoints))
}

func TestContainerUsageQuotesRegex(t *testing.T) {
	q := &fakeQuerier{}
	src := NewPrometheusSourceFromAPI(q, 0, logr.Discard())

	_, err := src.ContainerUsage(context.Background(), "prod", `web\.v2-[0-9]+`, time.Hour)
	require.NoError(t, err)

	assert.Contains(t, q.queries[0], `pod=~"web\\.v2-[0-9]+"`)
}

func TestContainerUsageErrors(t *testing.T) {
	t.Run("query failure", func(t *testing.T) {
		q := &fakeQuerier{err: errors.New("connection refused")}
		src := NewPrometheusSourceFromAPI(q, 0, logr.Discard())

		_, err := src.ContainerUsage(context.Background(), "prod", "api", time.Hour)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CPU query failed")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("unexpected result type", func(t *testing.T) {
		q := &fakeQuerier{results: map[string]model.Value{"rate(": model.Vector{}}}
		src := NewPrometheusSourceFromAPI(q, 0, logr.Discard())

		_, err := src.ContainerUsage(context.Background(), "prod", "api", time.Hour)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected result type")
	})

	t.Run("non positive window", func(t *testing.T) {
		src := NewPrometheusSourceFromAPI(&fakeQuerier{}, 0, logr.Discard())

		_, err := src.ContainerUsage(context.Background(), "prod", "api", 0)
		assert.Error(t, err)
	})
}

func TestIsAvailable(t *testing.T) {
	assert.True(t, NewPrometheusSourceFromAPI(&fakeQuerier{}, 0, logr.Discard()).IsAvailable(context.Background()))

	down := &fakeQuerier{err: errors.New("down")}
	assert.False(t, NewPrometheusSourceFromAPI(down, 0, logr.Discard()).IsAvailable(context.Background()))
}
