package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisService = "embedding-cache"

// RedisWrapper wraps a go-redis client with a breaker. Only the commands the
// embedding cache needs are exposed.
type RedisWrapper struct {
	client *redis.Client
	cb     *CircuitBreaker
}

func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	cb := NewCircuitBreaker("redis", GetRedisConfig().ToConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("redis", redisService, cb)
	return &RedisWrapper{client: client, cb: cb}
}

func (rw *RedisWrapper) Ping(ctx context.Context) error {
	err := rw.cb.Execute(ctx, func() error {
		return rw.client.Ping(ctx).Err()
	})
	GlobalMetricsCollector.RecordRequest("redis", redisService, rw.cb.State(), err == nil)
	return err
}

// Get returns redis.Nil for a missing key; a miss does not trip the breaker.
func (rw *RedisWrapper) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	var missing bool
	err := rw.cb.Execute(ctx, func() error {
		b, err := rw.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			missing = true
			return nil
		}
		val = b
		return err
	})
	GlobalMetricsCollector.RecordRequest("redis", redisService, rw.cb.State(), err == nil)
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, redis.Nil
	}
	return val, nil
}

func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	err := rw.cb.Execute(ctx, func() error {
		return rw.client.Set(ctx, key, value, expiration).Err()
	})
	GlobalMetricsCollector.RecordRequest("redis", redisService, rw.cb.State(), err == nil)
	return err
}

func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) error {
	err := rw.cb.Execute(ctx, func() error {
		return rw.client.Del(ctx, keys...).Err()
	})
	GlobalMetricsCollector.RecordRequest("redis", redisService, rw.cb.State(), err == nil)
	return err
}

func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// IsCircuitBreakerOpen returns true if the breaker is open.
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
