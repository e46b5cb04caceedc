package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// dedupTTL bounds how long a provider event id stays in the cache. The
// provider's retry window is well under a day.
const dedupTTL = 24 * time.Hour

// RedisDedupCache is a best-effort duplicate-delivery cache in front of
// the database unique constraint. Redis being down or slow only costs a
// redundant insert attempt; it can never let a duplicate through.
type RedisDedupCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisDedupCache creates a cache backed by the given redis address.
func NewRedisDedupCache(addr string, logger *slog.Logger) *RedisDedupCache {
	return &RedisDedupCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger.With("component", "dedup_cache"),
	}
}

// Close releases the redis connection.
func (c *RedisDedupCache) Close() error {
	return c.client.Close()
}

func dedupKey(orgID, providerEventID string) string {
	return "calltrail:dedup:" + orgID + ":" + providerEventID
}

// Seen reports whether the provider event id was already processed.
// Errors degrade to a miss.
func (c *RedisDedupCache) Seen(ctx context.Context, orgID, providerEventID string) bool {
	n, err := c.client.Exists(ctx, dedupKey(orgID, providerEventID)).Result()
	if err != nil {
		c.logger.Warn("dedup cache lookup failed", "error", err)
		return false
	}
	return n > 0
}

// Mark records the provider event id as processed.
func (c *RedisDedupCache) Mark(ctx context.Context, orgID, providerEventID string) {
	if err := c.client.Set(ctx, dedupKey(orgID, providerEventID), 1, dedupTTL).Err(); err != nil {
		c.logger.Warn("dedup cache write failed", "error", err)
	}
}
