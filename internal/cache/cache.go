// Package cache provides a redis-backed read cache for account snapshots.
// Settlements invalidate the involved accounts so stale balances are never
// served past the TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Snapshot is the cached view of an account. It carries everything the read
// path serves, so a cache hit and a store read produce the same response.
type Snapshot struct {
	IBAN      string `json:"iban"`
	UserID    string `json:"user_id"`
	Country   string `json:"country"`
	Balance   string `json:"balance"`
	CreatedAt string `json:"created_at"`
}

// AccountCache caches account snapshots in redis. A nil *AccountCache is a
// no-op, so callers do not branch on whether redis is configured.
type AccountCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

// New connects an account cache to redis.
func New(redisURL string, ttl time.Duration, log *zap.Logger) *AccountCache {
	if log == nil {
		log = zap.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisURL})
	return &AccountCache{rdb: rdb, ttl: ttl, log: log}
}

func key(iban string) string {
	return "account:" + iban
}

// Get returns the cached snapshot for an account, or nil on miss.
func (c *AccountCache) Get(ctx context.Context, iban string) *Snapshot {
	if c == nil {
		return nil
	}

	raw, err := c.rdb.Get(ctx, key(iban)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache read failed", zap.String("iban", iban), zap.Error(err))
		}
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		c.log.Warn("cache entry corrupt", zap.String("iban", iban), zap.Error(err))
		return nil
	}
	return &snap
}

// Set stores a snapshot with the configured TTL.
func (c *AccountCache) Set(ctx context.Context, snap *Snapshot) {
	if c == nil || snap == nil {
		return
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(snap.IBAN), raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", zap.String("iban", snap.IBAN), zap.Error(err))
	}
}

// Invalidate drops the cached snapshots of the given accounts. Called after
// a settlement touches their balances.
func (c *AccountCache) Invalidate(ctx context.Context, ibans ...string) {
	if c == nil || len(ibans) == 0 {
		return
	}

	keys := make([]string, len(ibans))
	for i, iban := range ibans {
		keys[i] = key(iban)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache invalidation failed", zap.Error(err))
	}
}

// Close releases the redis connection.
func (c *AccountCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
