package recommender

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/opscart/k8s-gap-auditor/pkg/cache"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/opscart/k8s-gap-auditor/pkg/telemetry"
	"golang.org/x/sync/singleflight"
)

// Engine produces recommendations for a workload
type Engine interface {
	Recommend(ctx context.Context, namespace, workload string, kind models.WorkloadKind, window string) ([]models.Recommendation, error)
}

// Cache stores recommendations by workload and window
type Cache interface {
	Get(ctx context.Context, key cache.Key) ([]models.Recommendation, bool, error)
	Set(ctx context.Context, key cache.Key, recs []models.Recommendation) error
}

// CachingEngine serves recommendations from a cache and collapses concurrent
// requests for the same key into one call to the wrapped engine.
// Cache failures are logged and never fail a request.
type CachingEngine struct {
	next    Engine
	cache   Cache
	group   singleflight.Group
	metrics *telemetry.Metrics
	log     logr.Logger
}

func NewCachingEngine(next Engine, c Cache, metrics *telemetry.Metrics, log logr.Logger) *CachingEngine {
	return &CachingEngine{next: next, cache: c, metrics: metrics, log: log}
}

func (e *CachingEngine) Recommend(ctx context.Context, namespace, workload string, kind models.WorkloadKind, window string) ([]models.Recommendation, error) {
	key := cache.Key{Namespace: namespace, Workload: workload, Kind: kind, Window: window}

	recs, hit, err := e.cache.Get(ctx, key)
	if err != nil {
		e.log.Error(err, "Recommendation cache read failed", "key", key.String())
	}
	e.metrics.ObserveCacheLookup(hit)
	if hit {
		e.log.V(2).Info("Recommendation cache hit", "key", key.String())
		return recs, nil
	}

	ch := e.group.DoChan(key.String(), func() (interface{}, error) {
		recs, err := e.next.Recommend(ctx, namespace, workload, kind, window)
		if err != nil {
			return nil, err
		}
		if err := e.cache.Set(ctx, key, recs); err != nil {
			e.log.Error(err, "Recommendation cache write failed", "key", key.String())
		}
		return recs, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.Recommendation), nil
	}
}
