package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/fxapi/cache"
)

// RateStore implements cache.RateStore using Redis hashes.
type RateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRateStore creates a new [RateStore] instance
func NewRateStore(client *redis.Client, prefix string, ttl time.Duration) *RateStore {
	return &RateStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RateStore) redisKey(key string) string {
	return fmt.Sprintf("%s:rate:%s", r.prefix, key)
}

// Set stores the rate and lets Redis expire it after the TTL.
func (r *RateStore) Set(ctx context.Context, entry *cache.RateEntry) error {
	key := r.redisKey(cache.RateKey(entry.From, entry.To))

	fields := map[string]any{
		"from":       entry.From,
		"to":         entry.To,
		"rate":       strconv.FormatFloat(entry.Rate, 'f', -1, 64),
		"fetched_at": entry.FetchedAt.Unix(),
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set rate in Redis: %w", err)
	}
	return nil
}

// Get retrieves a cached rate.
func (r *RateStore) Get(ctx context.Context, from, to string) (*cache.RateEntry, bool, error) {
	res, err := r.client.HGetAll(ctx, r.redisKey(cache.RateKey(from, to))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get rate from Redis: %w", err)
	}
	if len(res) == 0 {
		return nil, false, nil
	}

	rate, err := strconv.ParseFloat(res["rate"], 64)
	if err != nil {
		log.Warn().Err(err).Str("pair", cache.RateKey(from, to)).Msg("Discarding unparsable cached rate")
		return nil, false, nil
	}
	fetchedAt, _ := strconv.ParseInt(res["fetched_at"], 10, 64)

	return &cache.RateEntry{
		From:      res["from"],
		To:        res["to"],
		Rate:      rate,
		FetchedAt: time.Unix(fetchedAt, 0).UTC(),
	}, true, nil
}

// Clear removes all rates under the prefix.
func (r *RateStore) Clear(ctx context.Context) error {
	pattern := r.redisKey("*")
	var cursor uint64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan rate keys: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete rate keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close closes the underlying client.
func (r *RateStore) Close() error {
	return r.client.Close()
}

var _ cache.RateStore = (*RateStore)(nil)
