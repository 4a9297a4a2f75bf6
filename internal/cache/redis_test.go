package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/plancart/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client, 15*time.Minute), mr
}

func testCart(id string, version uint64, seats int) *domain.Cart {
	cart := domain.NewCart(id, decimal.NewFromInt(18), "USD", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_, _ = cart.AddItem(domain.CartLineItem{
		ID:           "item-1",
		Title:        "Team",
		PricePerUnit: decimal.NewFromInt(50),
		Seats:        seats,
		Quantity:     1,
	})
	cart.Version = version
	return cart
}

func TestGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	cart := testCart("cart123", 2, 3)

	data, err := json.Marshal(cart)
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey("cart123"), string(data)))

	result, err := cache.Get(context.Background(), "cart123")
	require.NoError(t, err)
	assert.Equal(t, "cart123", result.ID)
	assert.Equal(t, uint64(2), result.Version)
	require.Len(t, result.Items, 1)
	assert.True(t, result.Totals().Equal(cart.Totals()))
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	result, err := cache.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey("broken"), `{"id":"bro`))

	_, err := cache.Get(context.Background(), "broken")
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestSet_StoresPayloadAndVersion(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set(context.Background(), testCart("cart456", 4, 2)))

	stored, err := mr.Get(cacheKey("cart456"))
	require.NoError(t, err)
	var cart domain.Cart
	require.NoError(t, json.Unmarshal([]byte(stored), &cart))
	assert.Equal(t, 2, cart.Items[0].Seats)

	version, err := mr.Get(versionKey("cart456"))
	require.NoError(t, err)
	assert.Equal(t, "4", version)
}

func TestSet_WithTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set(context.Background(), testCart("cart789", 1, 1)))

	ttl := mr.TTL(cacheKey("cart789"))
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl <= 20*time.Minute, "TTL should be base + max jitter")
}

func TestSet_RejectsOlderVersion(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testCart("cart-s", 5, 5)))

	err := cache.Set(ctx, testCart("cart-s", 4, 4))
	assert.ErrorIs(t, err, ErrStaleWrite)

	got, err := cache.Get(ctx, "cart-s")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.Version)
	assert.Equal(t, 5, got.Items[0].Seats)
}

func TestSet_SameVersionRewrites(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testCart("cart-same", 3, 1)))
	require.NoError(t, cache.Set(ctx, testCart("cart-same", 3, 1)))
}

func TestInvalidate_BlocksInFlightStaleFill(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	// A reader loaded version 1, then a writer committed version 2 before the
	// reader filled the cache.
	require.NoError(t, cache.Invalidate(ctx, "cart-r", 2))
	assert.False(t, mr.Exists(cacheKey("cart-r")))

	err := cache.Set(ctx, testCart("cart-r", 1, 1))
	assert.ErrorIs(t, err, ErrStaleWrite)

	_, err = cache.Get(ctx, "cart-r")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, testCart("cart-r", 2, 7)))
}

func TestInvalidate_NeverLowersFloor(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Invalidate(ctx, "cart-f", 6))
	require.NoError(t, cache.Invalidate(ctx, "cart-f", 3))

	version, err := mr.Get(versionKey("cart-f"))
	require.NoError(t, err)
	assert.Equal(t, "6", version)
}

func TestCacheKey_Format(t *testing.T) {
	assert.Equal(t, "cart:test123", cacheKey("test123"))
	assert.Equal(t, "cart:test123:v", versionKey("test123"))
}
