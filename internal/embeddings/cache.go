package embeddings

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/circuitbreaker"
)

// Cache is a shared second-tier embedding cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, v []float32, ttl time.Duration)
}

// LocalLRU is the in-process first tier.
type LocalLRU struct {
	lru *expirable.LRU[string, []float32]
}

func NewLocalLRU(size int, ttl time.Duration) *LocalLRU {
	return &LocalLRU{lru: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

func (l *LocalLRU) Get(key string) ([]float32, bool) {
	return l.lru.Get(key)
}

func (l *LocalLRU) Set(key string, v []float32) {
	l.lru.Add(key, v)
}

func (l *LocalLRU) Len() int {
	return l.lru.Len()
}

// RedisCache stores vectors as little-endian float32 bytes behind a breaker.
type RedisCache struct {
	cli *circuitbreaker.RedisWrapper
}

// NewRedisCache wraps client and pings it once.
func NewRedisCache(client *redis.Client, logger *zap.Logger) (*RedisCache, error) {
	wrapper := circuitbreaker.NewRedisWrapper(client, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := wrapper.Ping(ctx); err != nil {
		return nil, err
	}
	return &RedisCache{cli: wrapper}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	b, err := r.cli.Get(ctx, key)
	if err != nil || len(b)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, true
}

func (r *RedisCache) Set(ctx context.Context, key string, v []float32, ttl time.Duration) {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	_ = r.cli.Set(ctx, key, b, ttl)
}

// Ping checks the backing Redis.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx)
}

func (r *RedisCache) Close() error {
	return r.cli.Close()
}

// MakeKey derives the cache key for a model/text pair.
func MakeKey(model, text string) string {
	h := md5.Sum([]byte(model + "|" + text))
	return "emb:" + hex.EncodeToString(h[:])
}
