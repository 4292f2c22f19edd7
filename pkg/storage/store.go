package storage

import (
	"context"
	"time"

	"github.com/opscart/k8s-gap-auditor/pkg/cache"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
)

// Store persists recommendations between runs so that repeated audits do not
// query Prometheus again while a cached result is fresh
type Store interface {
	Get(ctx context.Context, key cache.Key) ([]models.Recommendation, bool, error)
	Set(ctx context.Context, key cache.Key, recs []models.Recommendation) error
	// Purge deletes expired entries and returns how many were removed
	Purge(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	URL string
	TTL time.Duration
}
