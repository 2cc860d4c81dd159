package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/warden/pkg/hierarchy"
	"github.com/platinummonkey/warden/pkg/observability"
)

// NodeCache is a two-level node cache: an in-process LRU in front of Redis.
//
// The only write path is Set after a store read and Delete after a mutation;
// entries are never updated in place. A cache outage degrades reads to the
// store, it never fails them.
type NodeCache struct {
	kind    hierarchy.Kind
	redis   *redis.Client
	local   *lru.Cache[string, []byte]
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewNodeCache creates a node cache for the given kind
func NewNodeCache(kind hierarchy.Kind, client *redis.Client, cfg Config, logger *observability.Logger, metrics *observability.Metrics) (*NodeCache, error) {
	local, err := lru.New[string, []byte](cfg.L1CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}

	ttl := cfg.CacheTTL["node"]
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	return &NodeCache{
		kind:    kind,
		redis:   client,
		local:   local,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (c *NodeCache) idKey(id int64) string {
	return fmt.Sprintf("node:%s:%d", c.kind, id)
}

func (c *NodeCache) codeKey(code string) string {
	return fmt.Sprintf("nodecode:%s:%s", c.kind, code)
}

// Get returns the cached node by id, or (nil, nil) on a miss.
func (c *NodeCache) Get(ctx context.Context, id int64) (*hierarchy.Node, error) {
	return c.get(ctx, c.idKey(id))
}

// GetByCode returns the cached node by code, or (nil, nil) on a miss.
func (c *NodeCache) GetByCode(ctx context.Context, code string) (*hierarchy.Node, error) {
	return c.get(ctx, c.codeKey(code))
}

func (c *NodeCache) get(ctx context.Context, key string) (*hierarchy.Node, error) {
	if payload, ok := c.local.Get(key); ok {
		node, err := decodeNode(payload)
		if err == nil {
			c.metrics.RecordCacheHit(string(c.kind), "l1")
			return node, nil
		}
		// Unreadable entry; drop it and fall through.
		c.local.Remove(key)
	}

	payload, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.metrics.RecordCacheMiss(string(c.kind))
		return nil, nil
	}
	if err != nil {
		c.logger.WithError(err).Warnf("cache read failed for %s", key)
		c.metrics.RecordCacheMiss(string(c.kind))
		return nil, nil
	}

	node, err := decodeNode(payload)
	if err != nil {
		c.logger.WithError(err).Warnf("cache entry for %s is corrupt, dropping", key)
		c.redis.Del(ctx, key)
		c.metrics.RecordCacheMiss(string(c.kind))
		return nil, nil
	}

	c.local.Add(key, payload)
	c.metrics.RecordCacheHit(string(c.kind), "l2")
	return node, nil
}

// Set stores the node under both its id and code keys.
func (c *NodeCache) Set(ctx context.Context, node *hierarchy.Node) error {
	payload, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to encode node %d: %w", node.ID, err)
	}

	idKey := c.idKey(node.ID)
	codeKey := c.codeKey(node.Code)

	pipe := c.redis.Pipeline()
	pipe.Set(ctx, idKey, payload, c.ttl)
	pipe.Set(ctx, codeKey, payload, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache node %d: %w", node.ID, err)
	}

	c.local.Add(idKey, payload)
	c.local.Add(codeKey, payload)
	return nil
}

// Delete drops both keys from both layers.
func (c *NodeCache) Delete(ctx context.Context, id int64, code string) error {
	idKey := c.idKey(id)
	codeKey := c.codeKey(code)

	c.local.Remove(idKey)
	c.local.Remove(codeKey)

	if err := c.redis.Del(ctx, idKey, codeKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate node %d: %w", id, err)
	}
	return nil
}

func decodeNode(payload []byte) (*hierarchy.Node, error) {
	node := &hierarchy.Node{}
	if err := json.Unmarshal(payload, node); err != nil {
		return nil, err
	}
	return node, nil
}

// NewRedisClient builds a Redis client from configuration
func NewRedisClient(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB != 0 {
		opts.DB = cfg.RedisDB
	}
	opts.MaxRetries = cfg.RedisMaxRetries
	opts.PoolSize = cfg.RedisPoolSize
	return redis.NewClient(opts), nil
}
