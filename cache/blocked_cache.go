// Package cache memoises dashboard responses in-process. Nothing here is
// durable: the system's only state beyond the appliance session is a short
// TTL-bound copy of the last aggregation.
package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/piwatch/api"
)

const blockedKey = "blocked"

// BlockedCache holds the aggregated blocked list for a short TTL so a burst
// of dashboard tabs polling at once cannot stampede the appliance.
type BlockedCache struct {
	cache *ttlcache.Cache[string, []api.BlockedEntry]
	ttl   time.Duration
}

// NewBlockedCache creates the cache with automatic expiry cleanup.
func NewBlockedCache(ttl time.Duration) *BlockedCache {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []api.BlockedEntry](ttl),
		ttlcache.WithDisableTouchOnHit[string, []api.BlockedEntry](),
	)

	go cache.Start()

	return &BlockedCache{cache: cache, ttl: ttl}
}

// TTLForPoll derives the cache TTL from the dashboard's client polling
// interval: half the poll period, never below one second, so cached data is
// always fresher than the UI refresh.
func TTLForPoll(poll time.Duration) time.Duration {
	ttl := poll / 2
	if ttl < time.Second {
		ttl = time.Second
	}

	return ttl
}

// Get returns the cached list and whether it was present.
func (b *BlockedCache) Get() ([]api.BlockedEntry, bool) {
	item := b.cache.Get(blockedKey)
	if item == nil {
		return nil, false
	}

	return item.Value(), true
}

// Set stores the aggregated list for the configured TTL.
func (b *BlockedCache) Set(entries []api.BlockedEntry) {
	b.cache.Set(blockedKey, entries, b.ttl)
}

// Invalidate drops the cached list so the next read hits the appliance.
func (b *BlockedCache) Invalidate() {
	b.cache.Delete(blockedKey)
}

// Close stops the cleanup goroutine.
func (b *BlockedCache) Close() {
	b.cache.Stop()
}
