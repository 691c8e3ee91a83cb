package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/rfranks/ai-chat-ehr/internal/config"
	"github.com/rfranks/ai-chat-ehr/internal/phi"
)

// SpanCache is a Redis-backed cross-request cache of detection scan results,
// keyed by text digest. Entries hold span offsets, labels, and scores only —
// never the scanned text. It implements phi.ResultCache.
type SpanCache struct {
	client *redis.Client
	config config.CacheConfig
	logger *zap.Logger
	hits   int64
	misses int64
}

// NewSpanCache connects to Redis and verifies the connection before use.
func NewSpanCache(cfg config.CacheConfig, logger *zap.Logger) (*SpanCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Detection span cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Duration("default_ttl", cfg.DefaultTTL))

	return &SpanCache{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// Get returns the cached scan for a text digest, if present. Errors and
// corrupt entries degrade to a miss; the caller re-scans.
func (c *SpanCache) Get(ctx context.Context, digest string) ([]phi.SpanRef, bool) {
	data, err := c.client.Get(ctx, c.key(digest)).Result()
	if err == redis.Nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	} else if err != nil {
		c.logger.Debug("Span cache lookup failed", zap.Error(err))
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var spans []phi.SpanRef
	if err := json.Unmarshal([]byte(data), &spans); err != nil {
		c.logger.Warn("Corrupt span cache entry, deleting", zap.Error(err))
		c.client.Del(ctx, c.key(digest))
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return spans, true
}

// Store caches a full scan result with the configured TTL.
func (c *SpanCache) Store(ctx context.Context, digest string, spans []phi.SpanRef) error {
	data, err := json.Marshal(spans)
	if err != nil {
		return fmt.Errorf("failed to marshal spans for caching: %w", err)
	}
	if err := c.client.Set(ctx, c.key(digest), data, c.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache spans: %w", err)
	}
	return nil
}

// Stats represents cache performance statistics.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}

// GetStats returns hit/miss counters plus Redis-side memory and key counts.
func (c *SpanCache) GetStats(ctx context.Context) (*Stats, error) {
	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	for _, line := range strings.Split(info, "\r\n") {
		if memStr := strings.TrimPrefix(line, "used_memory:"); memStr != line {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	if keys, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}
	return stats, nil
}

// Clear removes every cached scan under this cache's key prefix.
func (c *SpanCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":spans:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Span cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection.
func (c *SpanCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *SpanCache) key(digest string) string {
	if len(digest) > 16 {
		digest = digest[:16]
	}
	return fmt.Sprintf("%s:spans:%s", c.config.KeyPrefix, digest)
}

// maskRedisURL masks credentials in a Redis URL for logging.
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
