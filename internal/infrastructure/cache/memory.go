package cache

import (
	"context"
	"sync"
	"time"

	"github.com/adot20/product-search-backend/internal/domain"
)

// DefaultTTL is the freshness window for a cached product record.
const DefaultTTL = time.Hour

// Options configures a product store.
type Options struct {
	TTL             time.Duration
	CleanupInterval time.Duration    // zero disables the background sweep
	Now             func() time.Time // nil means time.Now
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type entryKey struct {
	query string
	site  domain.SiteID
}

// cacheItem represents a single stored record with its write time
type cacheItem struct {
	record   domain.ProductRecord
	storedAt time.Time
}

// MemoryStore is a thread-safe in-memory product cache with TTL support
type MemoryStore struct {
	data  map[entryKey]cacheItem
	mutex sync.RWMutex

	ttl  time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(opts Options) *MemoryStore {
	opts = opts.withDefaults()
	store := &MemoryStore{
		data: make(map[entryKey]cacheItem),
		ttl:  opts.TTL,
		now:  opts.Now,
		stop: make(chan struct{}),
	}

	if opts.CleanupInterval > 0 {
		go store.cleanupExpired(opts.CleanupInterval)
	}

	return store
}

// Get returns a copy of the record stored for (query, site) if it is younger than the TTL
func (c *MemoryStore) Get(ctx context.Context, query string, site domain.SiteID) (*domain.ProductRecord, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[entryKey{query, site}]
	if !exists || !c.fresh(item) {
		return nil, domain.ErrCacheMiss
	}

	record := item.record
	return &record, nil
}

// Put stores a copy of record, replacing any existing entry for the key
func (c *MemoryStore) Put(ctx context.Context, query string, site domain.SiteID, record *domain.ProductRecord) error {
	if record == nil {
		return nil
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[entryKey{query, site}] = cacheItem{
		record:   *record,
		storedAt: c.now(),
	}
	return nil
}

// Purge removes every expired entry and reports how many were dropped
func (c *MemoryStore) Purge(ctx context.Context) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for key, item := range c.data {
		if !c.fresh(item) {
			delete(c.data, key)
			removed++
		}
	}
	return removed, nil
}

// Size returns the current number of entries, expired ones included
func (c *MemoryStore) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Close stops the background sweep. It is safe to call more than once.
func (c *MemoryStore) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

// fresh treats an entry exactly TTL old as expired.
func (c *MemoryStore) fresh(item cacheItem) bool {
	return c.now().Sub(item.storedAt) < c.ttl
}

// cleanupExpired removes expired entries from the store periodically
func (c *MemoryStore) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			_, _ = c.Purge(context.Background())
		}
	}
}
