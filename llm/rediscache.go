package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wealthdesk/agentflow/telemetry"
)

const defaultRedisPrefix = "agentflow:decision:"

// RedisCache shares decisions across processes. Redis failures degrade to
// cache misses and dropped writes; inference never depends on Redis being up.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger telemetry.Logger
}

// RedisCacheOptions configures a RedisCache.
type RedisCacheOptions struct {
	// TTL bounds entry lifetime. Zero keeps entries until evicted by Redis.
	TTL time.Duration
	// Prefix namespaces cache keys. Defaults to "agentflow:decision:".
	Prefix string
	// Logger reports degraded cache operations. Defaults to the noop logger.
	Logger telemetry.Logger
}

// NewRedisCache builds a RedisCache on an existing client.
func NewRedisCache(client redis.UniversalClient, opts RedisCacheOptions) (*RedisCache, error) {
	if client == nil {
		return nil, errors.New("llm: redis client is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &RedisCache{client: client, ttl: opts.TTL, prefix: prefix, logger: logger}, nil
}

// Get fetches and decodes a cached decision. Any failure reads as a miss.
func (r *RedisCache) Get(ctx context.Context, key string) (*Decision, bool) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Debug(ctx, "decision cache read failed", "key", key, "err", err)
		}
		return nil, false
	}
	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		r.logger.Warn(ctx, "corrupt decision cache entry", "key", key, "err", err)
		return nil, false
	}
	return &d, true
}

// Set encodes and stores the decision under the cache TTL. Write failures
// are logged and swallowed.
func (r *RedisCache) Set(ctx context.Context, key string, d *Decision) {
	if d == nil {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		r.logger.Warn(ctx, "encode decision cache entry", "key", key, "err", err)
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err(); err != nil {
		r.logger.Debug(ctx, "decision cache write failed", "key", key, "err", err)
	}
}
