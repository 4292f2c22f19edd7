package datasource

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// Querier is the subset of the Prometheus HTTP API the source uses
type Querier interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...v1.Option) (model.Value, v1.Warnings, error)
	QueryRange(ctx context.Context, query string, r v1.Range, opts ...v1.Option) (model.Value, v1.Warnings, error)
}

type PrometheusSource struct {
	client Querier
	step   time.Duration
	log    logr.Logger
	now    func() time.Time
}

func NewPrometheusSource(cfg Config, log logr.Logger) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{
		Address: cfg.PrometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return NewPrometheusSourceFromAPI(v1.NewAPI(client), cfg.Step, log), nil
}

// NewPrometheusSourceFromAPI wraps an existing API client
func NewPrometheusSourceFromAPI(client Querier, step time.Duration, log logr.Logger) *PrometheusSource {
	if step <= 0 {
		step = DefaultStep
	}
	return &PrometheusSource{
		client: client,
		step:   step,
		log:    log,
		now:    time.Now,
	}
}

// ContainerUsage fetches CPU rate and memory working set history for every
// container of the matching pods. Containers are returned sorted by name.
func (p *PrometheusSource) ContainerUsage(ctx context.Context, namespace, podPattern string, window time.Duration) ([]models.ContainerUsage, error) {
	if window <= 0 {
		return nil, fmt.Errorf("time window must be positive, got %s", window)
	}

	end := p.now()
	r := v1.Range{
		Start: end.Add(-window),
		End:   end,
		Step:  p.stepFor(window),
	}
	selector := containerSelector(namespace, podPattern)

	cpuQuery := fmt.Sprintf(`rate(container_cpu_usage_seconds_total%s[5m])`, selector)
	cpu, err := p.queryRange(ctx, cpuQuery, r)
	if err != nil {
		return nil, fmt.Errorf("CPU query failed: %w", err)
	}

	memQuery := fmt.Sprintf(`container_memory_working_set_bytes%s`, selector)
	mem, err := p.queryRange(ctx, memQuery, r)
	if err != nil {
		return nil, fmt.Errorf("memory query failed: %w", err)
	}

	byContainer := make(map[string]*models.ContainerUsage)
	usageFor := func(name string) *models.ContainerUsage {
		u, ok := byContainer[name]
		if !ok {
			u = &models.ContainerUsage{Container: name}
			byContainer[name] = u
		}
		return u
	}
	for name, samples := range cpu {
		u := usageFor(name)
		for _, s := range samples {
			// cores to millicores
			u.CPU = append(u.CPU, models.Sample{Timestamp: s.Timestamp, Value: s.Value * 1000})
		}
	}
	for name, samples := range mem {
		u := usageFor(name)
		u.Memory = append(u.Memory, samples...)
	}

	usage := make([]models.ContainerUsage, 0, len(byContainer))
	for _, u := range byContainer {
		usage = append(usage, *u)
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].Container < usage[j].Container })

	p.log.V(1).Info("Fetched container usage",
		"namespace", namespace,
		"pods", podPattern,
		"window", window.String(),
		"step", r.Step.String(),
		"containers", len(usage))
	return usage, nil
}

func (p *PrometheusSource) queryRange(ctx context.Context, query string, r v1.Range) (map[string][]models.Sample, error) {
	p.log.V(2).Info("Prometheus range query", "query", query,
		"start", r.Start.Format(time.RFC3339), "end", r.End.Format(time.RFC3339))

	result, warnings, err := p.client.QueryRange(ctx, query, r)
	if err != nil {
		return nil, fmt.Errorf("prometheus query failed: %w", err)
	}
	if len(warnings) > 0 {
		p.log.Info("Prometheus returned warnings", "query", query, "warnings", warnings)
	}

	return parseMatrix(result)
}

// parseMatrix groups the samples of a range query result by container label.
// Series of several pods of one container are merged.
func parseMatrix(result model.Value) (map[string][]models.Sample, error) {
	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type: %T", result)
	}

	samples := make(map[string][]models.Sample)
	for _, series := range matrix {
		container := string(series.Metric["container"])
		if container == "" {
			continue
		}
		for _, value := range series.Values {
			samples[container] = append(samples[container], models.Sample{
				Timestamp: value.Timestamp.Time(),
				Value:     float64(value.Value),
			})
		}
	}
	return samples, nil
}

func (p *PrometheusSource) stepFor(window time.Duration) time.Duration {
	step := p.step
	if points := window / step; points > maxPoints {
		step = window / maxPoints
	}
	return step
}

func containerSelector(namespace, podPattern string) string {
	return fmt.Sprintf(`{namespace=%s,pod=~%s,container!="",container!="POD"}`,
		strconv.Quote(namespace), strconv.Quote(podPattern))
}

func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", p.now())
	return err == nil
}

func (p *PrometheusSource) Name() string {
	return "Prometheus"
}
