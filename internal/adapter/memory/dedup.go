package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/couchcryptid/surf-ingest-service/internal/observability"
)

// BuoyUpserter is the write side of a buoy store.
type BuoyUpserter interface {
	UpsertBuoySamples(ctx context.Context, samples []domain.BuoySample) error
}

// DedupBuoyStore wraps a buoy store with an LRU of recently written sample
// keys. Portus returns overlapping windows on every run, so most samples are
// already stored; those are dropped before reaching the backend.
type DedupBuoyStore struct {
	inner   BuoyUpserter
	cache   *lruSet
	metrics *observability.Metrics
}

// NewDedupBuoyStore creates a dedup decorator remembering up to maxEntries keys.
func NewDedupBuoyStore(inner BuoyUpserter, maxEntries int, metrics *observability.Metrics) *DedupBuoyStore {
	return &DedupBuoyStore{
		inner:   inner,
		cache:   newLRUSet(maxEntries),
		metrics: metrics,
	}
}

func (d *DedupBuoyStore) UpsertBuoySamples(ctx context.Context, samples []domain.BuoySample) error {
	fresh := make([]domain.BuoySample, 0, len(samples))
	for _, s := range samples {
		if d.cache.contains(s.Key()) {
			d.metrics.DedupLookups.WithLabelValues("hit").Inc()
			continue
		}
		d.metrics.DedupLookups.WithLabelValues("miss").Inc()
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := d.inner.UpsertBuoySamples(ctx, fresh); err != nil {
		return err
	}
	// Only remember keys once the backend accepted them so failed writes are retried.
	for _, s := range fresh {
		d.cache.add(s.Key())
	}
	return nil
}

// lruSet is a thread-safe LRU set of string keys. The front of order is the
// most recently used key.
type lruSet struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List
	entries    map[string]*list.Element
}

func newLRUSet(maxEntries int) *lruSet {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruSet{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruSet) contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.MoveToFront(e)
	return true
}

func (c *lruSet) add(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.order.MoveToFront(e)
		return
	}
	c.entries[key] = c.order.PushFront(key)

	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(string))
	}
}

func (c *lruSet) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
