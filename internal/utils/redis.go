package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vitrine/internal/config"
)

// RedisClient wraps the Redis client with the rate limit counters.
type RedisClient struct {
	*redis.Client
}

// NewRedisClient connects and pings the configured Redis.
func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		Username: cfg.Username,
		DB:       cfg.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{Client: client}, nil
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// HealthCheck checks if Redis is healthy
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	return r.Ping(ctx).Err()
}

// RateLimitKey returns the counter key for a client on an endpoint.
func RateLimitKey(clientID, endpointKey string) string {
	return fmt.Sprintf("vitrine:rate_limit:%s:%s", clientID, endpointKey)
}

// IncrementRateLimit bumps the counter and returns the new count with the
// time left in the window. The expiry is only set on the first hit so the
// window is fixed, not sliding.
func (r *RedisClient) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	pipe := r.TxPipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttlCmd := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = window
	}
	return int(incrCmd.Val()), ttl, nil
}
