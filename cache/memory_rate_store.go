package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryRateStore implements RateStore using ttlcache.
type MemoryRateStore struct {
	cache *ttlcache.Cache[string, RateEntry]
}

// NewMemoryRateStore creates an in-memory rate store whose entries expire
// after ttl.
func NewMemoryRateStore(ttl time.Duration) *MemoryRateStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, RateEntry](ttl),
		ttlcache.WithDisableTouchOnHit[string, RateEntry](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryRateStore{cache: cache}
}

// Set implements RateStore.Set.
func (s *MemoryRateStore) Set(_ context.Context, entry *RateEntry) error {
	s.cache.Set(RateKey(entry.From, entry.To), *entry, ttlcache.DefaultTTL)
	return nil
}

// Get implements RateStore.Get.
func (s *MemoryRateStore) Get(_ context.Context, from, to string) (*RateEntry, bool, error) {
	item := s.cache.Get(RateKey(from, to))
	if item == nil || item.IsExpired() {
		return nil, false, nil
	}
	entry := item.Value()
	return &entry, true, nil
}

// Clear removes all rates from the cache.
func (s *MemoryRateStore) Clear(_ context.Context) error {
	s.cache.DeleteAll()
	return nil
}

// Len counts the cached rates.
func (s *MemoryRateStore) Len() int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemoryRateStore) Close() error {
	s.cache.Stop()
	return nil
}

var _ RateStore = (*MemoryRateStore)(nil)
