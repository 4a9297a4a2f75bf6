package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/plancart/internal/domain"
	"github.com/redis/go-redis/v9"
)

// setIfNewer writes the cart only if no newer version is recorded.
// KEYS[1] data key, KEYS[2] version key; ARGV[1] version, ARGV[2] payload,
// ARGV[3] ttl in ms.
var setIfNewer = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[2]) or "-1")
local incoming = tonumber(ARGV[1])
if incoming < current then
	return 0
end
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// raiseFloor records a committed version and drops the cached payload.
var raiseFloor = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[2]) or "-1")
local incoming = tonumber(ARGV[1])
if incoming > current then
	redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
end
redis.call("DEL", KEYS[1])
return 1
`)

type RedisCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

func NewRedisCache(client redis.UniversalClient, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{client: client, baseTTL: baseTTL}
}

func (r *RedisCache) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

func (r *RedisCache) Set(ctx context.Context, cart *domain.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	keys := []string{cacheKey(cart.ID), versionKey(cart.ID)}
	written, err := setIfNewer.Run(ctx, r.client, keys, cart.Version, payload, r.ttl().Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if written == 0 {
		return ErrStaleWrite
	}
	return nil
}

func (r *RedisCache) Invalidate(ctx context.Context, cartID string, version uint64) error {
	keys := []string{cacheKey(cartID), versionKey(cartID)}
	if err := raiseFloor.Run(ctx, r.client, keys, version, r.ttl().Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

// ttl spreads expiry over baseTTL plus up to 5 minutes of jitter.
func (r *RedisCache) ttl() time.Duration {
	return r.baseTTL + time.Duration(rand.Intn(5))*time.Minute
}

func cacheKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}

func versionKey(cartID string) string {
	return fmt.Sprintf("cart:%s:v", cartID)
}
