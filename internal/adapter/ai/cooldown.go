package ai

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hireloop/hireloop/internal/domain"
)

// CooldownCache remembers rate-limited providers in Redis so every process
// sharing the cache skips them until the cooldown lapses. Cache errors are
// reported, not fatal; callers treat a failed lookup as "not cooling down".
type CooldownCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCooldownCache builds a cache with the given cooldown TTL.
func NewCooldownCache(rdb *redis.Client, ttl time.Duration) *CooldownCache {
	return &CooldownCache{rdb: rdb, ttl: ttl}
}

func (c *CooldownCache) key(provider string) string {
	return "hireloop:ai:cooldown:" + provider
}

// Mark puts provider on cooldown.
func (c *CooldownCache) Mark(ctx domain.Context, provider string) error {
	if err := c.rdb.Set(ctx, c.key(provider), time.Now().UTC().Format(time.RFC3339), c.ttl).Err(); err != nil {
		return fmt.Errorf("cooldown mark %s: %w", provider, err)
	}
	return nil
}

// Clear lifts provider's cooldown after a successful call, so a recovered
// provider does not sit out the rest of its TTL.
func (c *CooldownCache) Clear(ctx domain.Context, provider string) error {
	if err := c.rdb.Del(ctx, c.key(provider)).Err(); err != nil {
		return fmt.Errorf("cooldown clear %s: %w", provider, err)
	}
	return nil
}

// CoolingDown reports whether provider is currently on cooldown.
func (c *CooldownCache) CoolingDown(ctx domain.Context, provider string) (bool, error) {
	_, err := c.rdb.Get(ctx, c.key(provider)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cooldown get %s: %w", provider, err)
	}
	return true, nil
}
