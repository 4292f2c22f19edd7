package auditor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/opscart/k8s-gap-auditor/pkg/telemetry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ClusterAPI lists namespaces and workloads from the orchestration API
type ClusterAPI interface {
	ListNamespaces(ctx context.Context) ([]string, error)
	// ListWorkloads returns deployments followed by statefulsets, with the
	// current resources of their containers already extracted.
	ListWorkloads(ctx context.Context, namespace string) ([]models.WorkloadDescriptor, error)
}

// RecommendationEngine produces recommended requests per container of a workload.
// window is a duration string such as "14d" and is passed through unparsed.
type RecommendationEngine interface {
	Recommend(ctx context.Context, namespace, workload string, kind models.WorkloadKind, window string) ([]models.Recommendation, error)
}

// FailureMode decides what an audit run does when a workload cannot be audited
type FailureMode string

const (
	// FailFast aborts the run and returns the first error
	FailFast FailureMode = "fail-fast"
	// CollectAndContinue records the failure in the report and keeps going
	CollectAndContinue FailureMode = "continue"
)

// ParseFailureMode validates a failure mode name
func ParseFailureMode(s string) (FailureMode, error) {
	switch FailureMode(s) {
	case FailFast, CollectAndContinue:
		return FailureMode(s), nil
	}
	return "", fmt.Errorf("unknown failure mode %q (want %q or %q)", s, FailFast, CollectAndContinue)
}

const DefaultTimeWindow = "14d"

// Options tunes an Auditor
type Options struct {
	TimeWindow                 string
	Workers                    int
	MaxInFlightRecommendations int
	CallTimeout                time.Duration
	FailureMode                FailureMode
}

// DefaultOptions returns the options used when a field is left zero
func DefaultOptions() Options {
	return Options{
		TimeWindow:                 DefaultTimeWindow,
		Workers:                    4,
		MaxInFlightRecommendations: 2,
		CallTimeout:                30 * time.Second,
		FailureMode:                FailFast,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TimeWindow == "" {
		o.TimeWindow = d.TimeWindow
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.MaxInFlightRecommendations <= 0 {
		o.MaxInFlightRecommendations = d.MaxInFlightRecommendations
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = d.CallTimeout
	}
	if o.FailureMode == "" {
		o.FailureMode = d.FailureMode
	}
	return o
}

// Auditor compares declared container requests with recommendations across namespaces
type Auditor struct {
	cluster  ClusterAPI
	engine   RecommendationEngine
	opts     Options
	log      logr.Logger
	metrics  *telemetry.Metrics
	inflight *semaphore.Weighted
}

// New creates an Auditor. Zero-valued options fall back to DefaultOptions.
func New(cluster ClusterAPI, engine RecommendationEngine, opts Options) *Auditor {
	opts = opts.withDefaults()
	return &Auditor{
		cluster:  cluster,
		engine:   engine,
		opts:     opts,
		log:      logr.Discard(),
		inflight: semaphore.NewWeighted(int64(opts.MaxInFlightRecommendations)),
	}
}

// WithLogger sets the logger used for progress and diagnostics
func (a *Auditor) WithLogger(log logr.Logger) *Auditor {
	a.log = log
	return a
}

// WithMetrics sets the collectors the auditor reports into
func (a *Auditor) WithMetrics(m *telemetry.Metrics) *Auditor {
	a.metrics = m
	return a
}

// Options returns the effective options
func (a *Auditor) Options() Options {
	return a.opts
}

// ListNamespaces returns every namespace of the cluster
func (a *Auditor) ListNamespaces(ctx context.Context) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	namespaces, err := a.cluster.ListNamespaces(callCtx)
	if err != nil {
		return nil, classify(OpListNamespaces, "", "", err)
	}
	return namespaces, nil
}

// ListWorkloadsWithCurrentResources returns the deployments and statefulsets of
// a namespace with the declared resources of each container.
func (a *Auditor) ListWorkloadsWithCurrentResources(ctx context.Context, namespace string) ([]models.WorkloadDescriptor, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	workloads, err := a.cluster.ListWorkloads(callCtx, namespace)
	if err != nil {
		return nil, classify(OpListWorkloads, namespace, "", err)
	}
	return workloads, nil
}

// GetRecommendations returns the recommendation engine's per-container
// requests and limits for a workload. An empty window uses the configured one.
func (a *Auditor) GetRecommendations(ctx context.Context, namespace, workload string, kind models.WorkloadKind, window string) ([]models.Recommendation, error) {
	if window == "" {
		window = a.opts.TimeWindow
	}

	if err := a.inflight.Acquire(ctx, 1); err != nil {
		return nil, classify(OpRecommend, namespace, workload, err)
	}
	defer a.inflight.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	done := a.metrics.StartRecommendation()
	recs, err := a.engine.Recommend(callCtx, namespace, workload, kind, window)
	done(err)
	if err != nil {
		return nil, classify(OpRecommend, namespace, workload, err)
	}
	return recs, nil
}

// AuditGaps audits every namespace of the cluster
func (a *Auditor) AuditGaps(ctx context.Context, threshold models.GapThreshold) (*models.GapReport, error) {
	namespaces, err := a.ListNamespaces(ctx)
	if err != nil {
		a.metrics.ObserveAudit(err, 0)
		return nil, err
	}
	return a.Audit(ctx, namespaces, threshold)
}

type workloadResult struct {
	entries    []models.GapEntry
	compared   int
	unmatched  int
	containers int
	err        error
}

// Audit compares current requests with recommendations for every workload of
// the given namespaces and returns the containers whose gap exceeds threshold.
// Entries are ordered by namespace, then workload as listed, then container.
func (a *Auditor) Audit(ctx context.Context, namespaces []string, threshold models.GapThreshold) (report *models.GapReport, err error) {
	start := time.Now()
	defer func() {
		a.metrics.ObserveAudit(err, time.Since(start))
	}()

	report = &models.GapReport{
		RunID:       uuid.NewString(),
		GeneratedAt: start.UTC(),
		Threshold:   threshold,
		TimeWindow:  a.opts.TimeWindow,
		Entries:     []models.GapEntry{},
	}
	log := a.log.WithValues("run", report.RunID)
	log.Info("Starting gap audit",
		"namespaces", len(namespaces),
		"cpuThreshold", threshold.CPUPercent,
		"memoryThreshold", threshold.MemoryPercent,
		"window", a.opts.TimeWindow,
		"failureMode", a.opts.FailureMode)

	var workloads []models.WorkloadDescriptor
	for _, ns := range namespaces {
		listed, err := a.ListWorkloadsWithCurrentResources(ctx, ns)
		if err != nil {
			if a.opts.FailureMode == FailFast {
				log.Error(err, "Listing workloads failed, aborting audit", "namespace", ns)
				return nil, err
			}
			log.Error(err, "Listing workloads failed, skipping namespace", "namespace", ns)
			report.Failures = append(report.Failures, models.WorkloadFailure{Namespace: ns, Error: err.Error()})
			continue
		}
		log.V(1).Info("Listed workloads", "namespace", ns, "count", len(listed))
		workloads = append(workloads, listed...)
	}

	results := make([]workloadResult, len(workloads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)

	for i, w := range workloads {
		i, w := i, w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := a.auditWorkload(gctx, w, threshold)
			if res.err != nil && a.opts.FailureMode == FailFast {
				return res.err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error(err, "Audit aborted")
		return nil, err
	}

	report.Stats.Namespaces = len(namespaces)
	report.Stats.Workloads = len(workloads)
	for i, res := range results {
		report.Stats.Containers += res.containers
		report.Stats.ContainersCompared += res.compared
		report.Stats.ContainersUnmatched += res.unmatched
		if res.err != nil {
			w := workloads[i]
			report.Failures = append(report.Failures, models.WorkloadFailure{
				Namespace:    w.Namespace,
				Workload:     w.Name,
				WorkloadType: w.Kind,
				Error:        res.err.Error(),
			})
			continue
		}
		report.Entries = append(report.Entries, res.entries...)
	}

	log.Info("Gap audit finished",
		"workloads", report.Stats.Workloads,
		"compared", report.Stats.ContainersCompared,
		"gaps", len(report.Entries),
		"failures", len(report.Failures),
		"duration", time.Since(start).String())
	return report, nil
}

func (a *Auditor) auditWorkload(ctx context.Context, w models.WorkloadDescriptor, threshold models.GapThreshold) workloadResult {
	res := workloadResult{containers: len(w.Containers)}
	log := a.log.WithValues("namespace", w.Namespace, "workload", w.Name, "type", w.Kind)

	recs, err := a.GetRecommendations(ctx, w.Namespace, w.Name, w.Kind, a.opts.TimeWindow)
	if err != nil {
		log.Error(err, "Fetching recommendations failed")
		res.err = err
		return res
	}

	cmp, err := compareWorkload(w, recs, threshold)
	if err != nil {
		log.Error(err, "Comparing workload failed")
		res.err = err
		return res
	}
	for _, name := range cmp.unmatched {
		log.V(1).Info("No recommendation for container, skipping", "container", name)
	}

	a.metrics.ObserveWorkload(cmp.entries)
	res.entries = cmp.entries
	res.compared = cmp.compared
	res.unmatched = len(cmp.unmatched)
	return res
}
