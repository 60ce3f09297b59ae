package cache

import (
	"context"
	"strings"
	"time"
)

// RateEntry is a cached exchange rate.
type RateEntry struct {
	From      string    `redis:"from"`
	To        string    `redis:"to"`
	Rate      float64   `redis:"rate"`
	FetchedAt time.Time `redis:"fetchedAt"`
}

// RateStore caches exchange rates for a fixed TTL.
type RateStore interface {
	Set(ctx context.Context, entry *RateEntry) error
	// Get returns (nil, false, nil) on a miss.
	Get(ctx context.Context, from, to string) (*RateEntry, bool, error)
	Clear(ctx context.Context) error
	Close() error
}

// RateKey is the cache key of a currency pair.
func RateKey(from, to string) string {
	return strings.ToUpper(from) + "_" + strings.ToUpper(to)
}
