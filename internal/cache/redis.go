package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keys
const (
	MonthSummaryKeyFmt = "summary:%s"
	ReportsPrefix      = "reports:"
)

// MonthSummaryTTL also covers ledgers edited by hand outside the app.
const MonthSummaryTTL = 10 * time.Minute

var client *redis.Client

// Init connects to Redis. On failure the client stays nil and every helper
// below becomes a no-op, so the app runs without a cache.
func Init(addr, password string, db int) error {
	if addr == "" {
		client = nil
		return nil
	}
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		client = nil
		return err
	}
	client = c
	return nil
}

// GetClient returns the Redis client, nil when caching is off.
func GetClient() *redis.Client {
	return client
}

func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}

// GetCached returns cached data for a key
func GetCached(ctx context.Context, key string) ([]byte, bool) {
	if client == nil {
		return nil, false
	}
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetCached stores data with a TTL
func SetCached(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if client == nil {
		return
	}
	client.Set(ctx, key, data, ttl)
}

// GetJSON decodes a cached value into dest.
func GetJSON(ctx context.Context, key string, dest any) bool {
	data, ok := GetCached(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if client == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	SetCached(ctx, key, data, ttl)
}

// InvalidatePattern removes all keys matching a glob pattern
func InvalidatePattern(ctx context.Context, pattern string) {
	if client == nil {
		return
	}
	var keys []string
	iter := client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if iter.Err() == nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// InvalidateKeys removes specific cache keys
func InvalidateKeys(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	client.Del(ctx, keys...)
}

// MonthSummaryKey is keyed by the ledger stem, e.g. summary:2024_03.
func MonthSummaryKey(periodKey string) string {
	return fmt.Sprintf(MonthSummaryKeyFmt, periodKey)
}

// InvalidateMonth clears caches derived from one ledger.
// Called when: SetQuantity, CreateLedger, Sync, send session finalized
func InvalidateMonth(ctx context.Context, periodKey string) {
	InvalidateKeys(ctx, MonthSummaryKey(periodKey))
	InvalidatePattern(ctx, ReportsPrefix+"*")
}

// InvalidateRosterCaches clears everything that shows customer names or counts.
// Called when: add, edit, delete, undo
func InvalidateRosterCaches(ctx context.Context) {
	InvalidatePattern(ctx, "summary:*")
	InvalidatePattern(ctx, ReportsPrefix+"*")
}

// IsHealthy returns true if Redis connection is working
func IsHealthy(ctx context.Context) bool {
	if client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}
