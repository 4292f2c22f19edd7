package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opscart/k8s-gap-auditor/pkg/models"
)

// Key identifies the recommendations of one workload over one time window
type Key struct {
	Namespace string
	Workload  string
	Kind      models.WorkloadKind
	Window    string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Namespace, k.Kind.APIName(), k.Workload, k.Window)
}

// MemoryCache caches recommendations in process to reduce Prometheus queries
type MemoryCache struct {
	data  map[Key]*cacheEntry
	ttl   time.Duration
	mutex sync.RWMutex
	now   func() time.Time
}

type cacheEntry struct {
	recs      []models.Recommendation
	expiresAt time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		data: make(map[Key]*cacheEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key Key) ([]models.Recommendation, bool, error) {
	c.mutex.RLock()
	entry, exists := c.data[key]
	c.mutex.RUnlock()
	if !exists {
		return nil, false, nil
	}

	if c.now().After(entry.expiresAt) {
		c.mutex.Lock()
		// re-check, another goroutine may have refreshed the entry
		if current, ok := c.data[key]; ok && current == entry {
			delete(c.data, key)
		}
		c.mutex.Unlock()
		return nil, false, nil
	}

	return entry.recs, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key Key, recs []models.Recommendation) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = &cacheEntry{
		recs:      recs,
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

// size returns the number of entries, expired ones included
func (c *MemoryCache) size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}
