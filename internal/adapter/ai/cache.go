package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/ports"
)

// CachingProvider wraps another ports.AIProvider with a Redis response
// cache, exploiting the AI Provider Port's temperature-0 determinism
// contract: identical (systemPrompt, userContext, schema-shape) inputs are
// guaranteed to produce the same output, so a cache hit skips a paid call
// entirely. Keying and TTL handling mirror the sliding-window cache helpers
// (CacheCheckResult/GetCachedCheckResult) in the source organization's
// compliance service's Redis client, generalized from rule-check results to
// AI generations.
type CachingProvider struct {
	inner  ports.AIProvider
	rdb    *redis.Client
	ttl    time.Duration
	logger ports.Logger
}

func NewCachingProvider(inner ports.AIProvider, addr string, db int, ttl time.Duration, logger ports.Logger) *CachingProvider {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &CachingProvider{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "evp:ai:" + hex.EncodeToString(h.Sum(nil))
}

func (c *CachingProvider) GenerateStructured(ctx context.Context, systemPrompt, userContext string, into interface{}) error {
	key := cacheKey("structured", systemPrompt, userContext, fmt.Sprintf("%T", into))
	if c.tryCache(ctx, key, into) {
		return nil
	}
	if err := c.inner.GenerateStructured(ctx, systemPrompt, userContext, into); err != nil {
		return err
	}
	c.store(ctx, key, into)
	return nil
}

func (c *CachingProvider) GenerateVision(ctx context.Context, imageBytes []byte, prompt string, into interface{}) error {
	key := cacheKey("vision", string(imageBytes), prompt, fmt.Sprintf("%T", into))
	if c.tryCache(ctx, key, into) {
		return nil
	}
	if err := c.inner.GenerateVision(ctx, imageBytes, prompt, into); err != nil {
		return err
	}
	c.store(ctx, key, into)
	return nil
}

func (c *CachingProvider) tryCache(ctx context.Context, key string, into interface{}) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, into); err != nil {
		c.logger.Warn("ai cache unmarshal failed, ignoring cached entry", "key", key, "error", err)
		return false
	}
	c.logger.Debug("ai cache hit", "key", key)
	return true
}

func (c *CachingProvider) store(ctx context.Context, key string, from interface{}) {
	raw, err := json.Marshal(from)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("ai cache store failed", "key", key, "error", err)
	}
}

func (c *CachingProvider) Provider() string { return c.inner.Provider() }

func (c *CachingProvider) Health(ctx context.Context) error { return c.inner.Health(ctx) }

var _ ports.AIProvider = (*CachingProvider)(nil)
