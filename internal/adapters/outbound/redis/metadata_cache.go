// Package redis provides a Redis implementation of the MetadataCache port.
//
// Metadata documents are stored as raw JSON under prefix:metadata:document
// with a TTL so a restarted fleet shares one warm copy of the static metadata.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Compile-time check that MetadataCache implements outbound.MetadataCache
var _ outbound.MetadataCache = (*MetadataCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long cached documents live before expiring
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		DB:        0,
		TTL:       5 * time.Minute,
		KeyPrefix: "stl-trade",
	}
}

// MetadataCache is a Redis implementation of the outbound.MetadataCache port.
type MetadataCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewMetadataCache creates a new Redis metadata cache.
func NewMetadataCache(cfg Config, logger *slog.Logger) (*MetadataCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	defaults := ConfigDefaults()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &MetadataCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "redis-metadata-cache"),
	}, nil
}

// Ping checks the Redis connection.
func (c *MetadataCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *MetadataCache) Close() error {
	return c.client.Close()
}

// key generates a cache key in the format prefix:metadata:document.
func (c *MetadataCache) key(doc outbound.MetadataDocument) string {
	return fmt.Sprintf("%s:metadata:%s", c.keyPrefix, doc)
}

// Get returns the cached document, or nil on a miss.
func (c *MetadataCache) Get(ctx context.Context, doc outbound.MetadataDocument) ([]byte, error) {
	data, err := c.client.Get(ctx, c.key(doc)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", doc, err)
	}
	return data, nil
}

// Set stores the document with the configured TTL.
func (c *MetadataCache) Set(ctx context.Context, doc outbound.MetadataDocument, data []byte) error {
	if err := c.client.Set(ctx, c.key(doc), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache %s: %w", doc, err)
	}
	c.logger.Debug("cached metadata document", "document", doc, "bytes", len(data))
	return nil
}
