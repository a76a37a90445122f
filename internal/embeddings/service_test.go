package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fakeEmbedder(t *testing.T, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		require.Equal(t, "/embeddings/", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embedResponse{ModelUsed: req.Model, Dimensions: 2}
		for _, text := range req.Texts {
			resp.Embeddings = append(resp.Embeddings, []float64{float64(len(text)), 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestNilService(t *testing.T) {
	var s *Service
	_, err := s.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestEmbedUsesLRU(t *testing.T) {
	var calls int32
	srv := fakeEmbedder(t, &calls)
	defer srv.Close()

	svc := NewService(Config{BaseURL: srv.URL}, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	v, err := svc.Embed(ctx, "golang")
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 1}, v)

	_, err = svc.Embed(ctx, "golang")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbedBatchOnlyFetchesMisses(t *testing.T) {
	var calls int32
	srv := fakeEmbedder(t, &calls)
	defer srv.Close()

	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cache.Close()

	svc := NewService(Config{BaseURL: srv.URL, CacheTTL: time.Minute}, cache, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err = svc.Embed(ctx, "a")
	require.NoError(t, err)

	// A fresh service shares only the Redis tier.
	svc2 := NewService(Config{BaseURL: srv.URL}, cache, zaptest.NewLogger(t))
	out, err := svc2.EmbedBatch(ctx, []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{1, 1}, out[0])
	assert.Equal(t, []float32{3, 1}, out[1])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := NewService(Config{BaseURL: srv.URL}, nil, zaptest.NewLogger(t))
	_, err := svc.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	key := MakeKey("m", "text")
	assert.True(t, strings.HasPrefix(key, "emb:"))
	cache.Set(ctx, key, []float32{0.25, -1.5}, time.Minute)

	v, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []float32{0.25, -1.5}, v)

	_, ok = cache.Get(ctx, "emb:none")
	assert.False(t, ok)
}

func TestChunker(t *testing.T) {
	c := NewChunker(ChunkingConfig{SizeWords: 4, OverlapWords: 1})
	chunks := c.Chunk("one two three four five six seven")
	assert.Equal(t, []string{"one two three four", "four five six seven"}, chunks)

	assert.Equal(t, []string{"short text"}, c.Chunk("  short\n text "))
	assert.Nil(t, c.Chunk("   "))
}
