// Package cache holds the Redis-backed identity view cache. The cache is an
// optimisation only: every failure degrades to a miss and the resolver reads
// the store instead.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	contactmetrics "reconcile/internal/contact/metrics"
	"reconcile/internal/contact/models"
	"reconcile/pkg/platform/circuit"
)

const (
	viewKeyPrefix = "contact:view:"
	defaultTTL    = 5 * time.Minute
)

// RedisCache stores consolidated identities as JSON keyed by primary id.
type RedisCache struct {
	client  redis.Cmdable
	ttl     time.Duration
	breaker *circuit.Breaker
	metrics *contactmetrics.Metrics
	logger  *slog.Logger
}

// Option configures a RedisCache.
type Option func(*RedisCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *RedisCache) {
		if b != nil {
			c.breaker = b
		}
	}
}

func WithMetrics(m *contactmetrics.Metrics) Option {
	return func(c *RedisCache) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *RedisCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewRedis builds a cache over client. The client lifecycle stays with the caller.
func NewRedis(client redis.Cmdable, opts ...Option) *RedisCache {
	c := &RedisCache{
		client:  client,
		ttl:     defaultTTL,
		breaker: circuit.New("view-cache"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func viewKey(primaryID int64) string {
	return viewKeyPrefix + strconv.FormatInt(primaryID, 10)
}

// Get returns the cached identity for primaryID. Errors and an open breaker
// read as a miss.
func (c *RedisCache) Get(ctx context.Context, primaryID int64) (*models.Identity, bool) {
	if !c.breaker.Allow() {
		c.metrics.IncCacheLookup("skipped")
		return nil, false
	}
	raw, err := c.client.Get(ctx, viewKey(primaryID)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.succeeded()
		c.metrics.IncCacheLookup("miss")
		return nil, false
	}
	if err != nil {
		c.failed(ctx, "get", err)
		c.metrics.IncCacheLookup("error")
		return nil, false
	}
	c.succeeded()

	var identity models.Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable cached identity",
			"primary_contact_id", primaryID,
			"error", err,
		)
		c.metrics.IncCacheLookup("error")
		c.Invalidate(ctx, primaryID)
		return nil, false
	}
	c.metrics.IncCacheLookup("hit")
	return &identity, true
}

// Set stores identity under its primary id for the configured TTL.
func (c *RedisCache) Set(ctx context.Context, identity *models.Identity) {
	if identity == nil || !c.breaker.Allow() {
		return
	}
	raw, err := json.Marshal(identity)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to encode identity for cache", "error", err)
		return
	}
	if err := c.client.Set(ctx, viewKey(identity.PrimaryContactID), raw, c.ttl).Err(); err != nil {
		c.failed(ctx, "set", err)
		return
	}
	c.succeeded()
}

// Invalidate drops the cached views of primaryIDs. It is attempted even while
// the breaker is open; a stale view outliving a merge is worse than a slow call.
func (c *RedisCache) Invalidate(ctx context.Context, primaryIDs ...int64) {
	if len(primaryIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(primaryIDs))
	for _, id := range primaryIDs {
		keys = append(keys, viewKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.failed(ctx, "invalidate", err)
		return
	}
	c.succeeded()
}

func (c *RedisCache) failed(ctx context.Context, op string, err error) {
	c.logger.WarnContext(ctx, "view cache call failed",
		"op", op,
		"breaker", c.breaker.Name(),
		"error", err,
	)
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.metrics.SetCacheBreakerOpen(true)
		c.logger.WarnContext(ctx, "view cache breaker opened", "breaker", c.breaker.Name())
	}
}

func (c *RedisCache) succeeded() {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.metrics.SetCacheBreakerOpen(false)
		c.logger.Info("view cache breaker closed", "breaker", c.breaker.Name())
	}
}
