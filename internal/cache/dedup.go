// Package cache holds the Redis fast path that drops repeated webhook
// deliveries before they reach the database. The order row remains the
// authority; a miss here only costs one extra no-op transaction.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type DeliveryGuard interface {
	// Claim reports whether this delivery is seen for the first time.
	Claim(ctx context.Context, provider, deliveryKey string) (bool, error)
	// Release forgets a claim so a provider retry is processed again.
	Release(ctx context.Context, provider, deliveryKey string) error
}

type redisDeliveryGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeliveryGuard(rdb *redis.Client, ttl time.Duration) DeliveryGuard {
	return &redisDeliveryGuard{rdb: rdb, ttl: ttl}
}

func dedupKey(provider, deliveryKey string) string {
	return fmt.Sprintf("dedup:webhook:%s:%s", provider, deliveryKey)
}

func (g *redisDeliveryGuard) Claim(ctx context.Context, provider, deliveryKey string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, dedupKey(provider, deliveryKey), time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (g *redisDeliveryGuard) Release(ctx context.Context, provider, deliveryKey string) error {
	if err := g.rdb.Del(ctx, dedupKey(provider, deliveryKey)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

type nopDeliveryGuard struct{}

// NewNopDeliveryGuard is used when REDIS_ADDR is unset.
func NewNopDeliveryGuard() DeliveryGuard { return nopDeliveryGuard{} }

func (nopDeliveryGuard) Claim(context.Context, string, string) (bool, error) { return true, nil }

func (nopDeliveryGuard) Release(context.Context, string, string) error { return nil }
