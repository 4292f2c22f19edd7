package recommender

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/go-logr/logr"
	"github.com/opscart/k8s-gap-auditor/pkg/analyzer"
	"github.com/opscart/k8s-gap-auditor/pkg/datasource"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/opscart/k8s-gap-auditor/pkg/quantity"
	"github.com/prometheus/common/model"
)

// ErrInvalidWindow is returned for time windows that are not Prometheus
// durations ("1d", "48h", "2w") or are not positive
var ErrInvalidWindow = errors.New("invalid time window")

const (
	DefaultCPUPercentile       = 95.0
	DefaultMemoryBufferPercent = 15.0
)

// Config tunes the simple strategy
type Config struct {
	// CPUPercentile of the CPU usage rate becomes the CPU request
	CPUPercentile float64
	// MemoryBufferPercent is added on top of peak memory usage
	MemoryBufferPercent float64
}

func DefaultConfig() Config {
	return Config{
		CPUPercentile:       DefaultCPUPercentile,
		MemoryBufferPercent: DefaultMemoryBufferPercent,
	}
}

// SimpleStrategy recommends requests from usage history: the CPU request is a
// percentile of the usage rate and the memory request and limit are the peak
// working set plus a buffer. No CPU limit is recommended.
type SimpleStrategy struct {
	source datasource.DataSource
	cfg    Config
	log    logr.Logger
}

func NewSimpleStrategy(source datasource.DataSource, cfg Config, log logr.Logger) *SimpleStrategy {
	if cfg.CPUPercentile <= 0 {
		cfg.CPUPercentile = DefaultCPUPercentile
	}
	if cfg.MemoryBufferPercent < 0 {
		cfg.MemoryBufferPercent = 0
	}
	return &SimpleStrategy{source: source, cfg: cfg, log: log}
}

// Recommend returns one recommendation per container that has usage history.
// Containers without samples are left out.
func (s *SimpleStrategy) Recommend(ctx context.Context, namespace, workload string, kind models.WorkloadKind, window string) ([]models.Recommendation, error) {
	d, err := ParseWindow(window)
	if err != nil {
		return nil, err
	}
	pattern, err := PodPattern(kind, workload)
	if err != nil {
		return nil, err
	}

	usage, err := s.source.ContainerUsage(ctx, namespace, pattern, d)
	if err != nil {
		return nil, fmt.Errorf("%s usage query failed: %w", s.source.Name(), err)
	}

	log := s.log.WithValues("namespace", namespace, "workload", workload, "type", kind)
	recs := make([]models.Recommendation, 0, len(usage))
	for _, u := range usage {
		rec, ok, err := s.recommendContainer(u)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.V(1).Info("No usage samples, skipping container", "container", u.Container)
			continue
		}
		log.V(1).Info("Recommendation",
			"container", u.Container,
			"cpu", rec.Requests[models.ResourceCPU].Raw,
			"memory", rec.Requests[models.ResourceMemory].Raw,
			"cpuPattern", analyzer.AnalyzeUsagePattern(u.CPU).Type,
			"samples", rec.Samples)
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *SimpleStrategy) recommendContainer(u models.ContainerUsage) (models.Recommendation, bool, error) {
	rec := models.Recommendation{
		Container: u.Container,
		Requests:  models.ResourceList{},
		Limits:    models.ResourceList{},
	}

	if cpu, err := analyzer.Percentile(u.CPU, s.cfg.CPUPercentile); err == nil {
		q, err := quantity.New(models.ResourceCPU, math.Ceil(math.Max(cpu, 0)))
		if err != nil {
			return rec, false, err
		}
		rec.Requests[models.ResourceCPU] = q
		rec.Samples = len(u.CPU)
	} else if !errors.Is(err, analyzer.ErrNoSamples) {
		return rec, false, err
	}

	if peak, err := analyzer.Peak(u.Memory); err == nil {
		mib := math.Max(peak, 0) / (1024 * 1024) * (1 + s.cfg.MemoryBufferPercent/100)
		q, err := quantity.New(models.ResourceMemory, math.Ceil(mib))
		if err != nil {
			return rec, false, err
		}
		rec.Requests[models.ResourceMemory] = q
		rec.Limits[models.ResourceMemory] = q
		if len(u.Memory) > rec.Samples {
			rec.Samples = len(u.Memory)
		}
	}

	return rec, len(rec.Requests) > 0, nil
}

// ParseWindow parses a Prometheus duration such as "14d", "48h" or "2w"
func ParseWindow(window string) (time.Duration, error) {
	d, err := model.ParseDuration(window)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidWindow, window, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w %q: must be positive", ErrInvalidWindow, window)
	}
	return time.Duration(d), nil
}

// PodPattern returns the regular expression matching the pod names of a
// workload: "<name>-<hash>-<hash>" for deployments and "<name>-<ordinal>" for
// statefulsets.
func PodPattern(kind models.WorkloadKind, name string) (string, error) {
	quoted := regexp.QuoteMeta(name)
	switch kind {
	case models.WorkloadDeployment:
		return quoted + "-[a-z0-9]+-[a-z0-9]+", nil
	case models.WorkloadStatefulSet:
		return quoted + "-[0-9]+", nil
	}
	return "", fmt.Errorf("unsupported workload type %q", kind)
}
