package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/config"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/vectordb"
)

type statsFunc func(context.Context) (vectordb.Stats, error)

func (f statsFunc) CollectionStats(ctx context.Context) (vectordb.Stats, error) { return f(ctx) }

func TestVectorStoreChecker(t *testing.T) {
	ok := NewVectorStoreChecker(statsFunc(func(context.Context) (vectordb.Stats, error) {
		return vectordb.Stats{Collection: "c", DocumentCount: 3}, nil
	}))
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	empty := NewVectorStoreChecker(vectordb.NewMemoryStore())
	r := empty.Check(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, "Knowledge base is empty", r.Message)

	down := NewVectorStoreChecker(statsFunc(func(context.Context) (vectordb.Stats, error) {
		return vectordb.Stats{}, errors.New("connection refused")
	}))
	assert.Equal(t, StatusUnhealthy, down.Check(context.Background()).Status)
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisChecker(client)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	mr.Close()
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
}

func TestLLMConfigChecker(t *testing.T) {
	assert.Equal(t, StatusUnhealthy, NewLLMConfigChecker(config.LLMConfig{Provider: "anthropic"}).Check(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, NewLLMConfigChecker(config.LLMConfig{Provider: "http"}).Check(context.Background()).Status)
	assert.Equal(t, StatusHealthy, NewLLMConfigChecker(config.LLMConfig{Provider: "gemini", APIKey: "k"}).Check(context.Background()).Status)
}

func fixed(name string, critical bool, status CheckStatus) Checker {
	return NewCustomHealthChecker(name, critical, time.Second, func(context.Context) CheckResult {
		return CheckResult{Status: status}
	})
}

func TestManagerOverall(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(fixed("a", true, StatusHealthy)))
	require.NoError(t, m.RegisterChecker(fixed("b", false, StatusUnhealthy)))
	require.Error(t, m.RegisterChecker(fixed("a", true, StatusHealthy)))

	d := m.GetDetailedHealth(context.Background())
	assert.Equal(t, StatusDegraded, d.Overall.Status)
	assert.True(t, d.Overall.Ready)
	assert.Equal(t, 2, d.Summary.Total)
	assert.Equal(t, []string{"a", "b"}, m.Names())
	assert.Len(t, m.GetLastResults(), 2)

	require.NoError(t, m.RegisterChecker(fixed("c", true, StatusUnhealthy)))
	assert.False(t, m.IsReady(context.Background()))
}

func TestManagerRecoversPanics(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(NewCustomHealthChecker("boom", true, time.Second, func(context.Context) CheckResult {
		panic("nope")
	})))
	d := m.GetDetailedHealth(context.Background())
	assert.Equal(t, StatusUnhealthy, d.Components["boom"].Status)
	assert.Equal(t, StatusUnhealthy, d.Overall.Status)
}

func TestHTTPEndpoints(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(fixed("llm", true, StatusUnhealthy)))
	mux := http.NewServeMux()
	NewHTTPHandler(m, zaptest.NewLogger(t)).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	comps := body["components"].(map[string]interface{})
	assert.Equal(t, "unhealthy", comps["llm"].(map[string]interface{})["status"])
}
