package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"attenddash/internal/observability"
)

// Redis wraps the redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts; snapshot cache misses must
// not stall a dashboard load.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

const snapshotKeyPrefix = "attendance:snapshot:"

// SnapshotCache mirrors the last good dashboard snapshot per student so a
// failed live load can fall back to stale data instead of a blank screen.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache creates a cache with the given entry TTL.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

// Set replaces the cached snapshot for a subject. Entries are written only
// after a fully successful load, so a cached value is always complete.
func (c *SnapshotCache) Set(ctx context.Context, subject string, value any) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKeyPrefix+subject, payload, c.ttl).Err()
}

// Get loads the cached snapshot for a subject into dest. The second return
// is false on a miss.
func (c *SnapshotCache) Get(ctx context.Context, subject string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	payload, err := c.client.Get(ctx, snapshotKeyPrefix+subject).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.SnapshotCache().WithLabelValues("miss").Inc()
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, err
	}
	observability.SnapshotCache().WithLabelValues("hit").Inc()
	return true, nil
}

// Invalidate drops the cached snapshot, used on explicit logout.
func (c *SnapshotCache) Invalidate(ctx context.Context, subject string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, snapshotKeyPrefix+subject).Err()
}
