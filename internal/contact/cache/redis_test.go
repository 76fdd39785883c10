package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contactmetrics "reconcile/internal/contact/metrics"
	"reconcile/internal/contact/models"
	"reconcile/pkg/platform/circuit"
)

// unreachableClient dials a closed port so every command fails fast.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestViewKey(t *testing.T) {
	assert.Equal(t, "contact:view:42", viewKey(42))
}

func TestRedisCacheDegradesToMiss(t *testing.T) {
	now := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	breaker := circuit.New("view-cache",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	m := contactmetrics.New(prometheus.NewRegistry())
	c := NewRedis(unreachableClient(t), WithBreaker(breaker), WithMetrics(m))
	ctx := context.Background()

	t.Run("errors read as misses", func(t *testing.T) {
		identity, ok := c.Get(ctx, 1)
		assert.False(t, ok)
		assert.Nil(t, identity)
		assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheLookups.WithLabelValues("error")))
		assert.False(t, breaker.IsOpen())
	})

	t.Run("repeated failures open the breaker", func(t *testing.T) {
		c.Set(ctx, &models.Identity{PrimaryContactID: 1})
		assert.True(t, breaker.IsOpen())
		assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheBreakerOpen))
	})

	t.Run("open breaker skips lookups", func(t *testing.T) {
		_, ok := c.Get(ctx, 1)
		assert.False(t, ok)
		assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheLookups.WithLabelValues("skipped")))
		assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheLookups.WithLabelValues("error")))
	})

	t.Run("probe after cooldown reaches redis", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		_, ok := c.Get(ctx, 1)
		assert.False(t, ok)
		assert.Equal(t, 2.0, promtest.ToFloat64(m.CacheLookups.WithLabelValues("error")))
		assert.True(t, breaker.IsOpen())
	})
}

func TestRedisCacheNoops(t *testing.T) {
	c := NewRedis(unreachableClient(t), WithTTL(time.Second))
	require.Equal(t, time.Second, c.ttl)

	// neither call reaches the client
	c.Set(context.Background(), nil)
	c.Invalidate(context.Background())
	assert.False(t, c.breaker.IsOpen())
}
