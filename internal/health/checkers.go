package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/config"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/vectordb"
)

// StatsSource is the part of a vector store the checker needs.
type StatsSource interface {
	CollectionStats(ctx context.Context) (vectordb.Stats, error)
}

// VectorStoreChecker probes the knowledge base. An empty store is degraded,
// not unhealthy: retrieval still degrades gracefully.
type VectorStoreChecker struct {
	store   StatsSource
	timeout time.Duration
}

func NewVectorStoreChecker(store StatsSource) *VectorStoreChecker {
	return &VectorStoreChecker{store: store, timeout: 5 * time.Second}
}

func (v *VectorStoreChecker) Name() string           { return "vector_store" }
func (v *VectorStoreChecker) IsCritical() bool       { return false }
func (v *VectorStoreChecker) Timeout() time.Duration { return v.timeout }

func (v *VectorStoreChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: v.Name(), Timestamp: start}
	stats, err := v.store.CollectionStats(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Vector store unreachable"
		return result
	}
	result.Details = map[string]interface{}{
		"collection":     stats.Collection,
		"document_count": stats.DocumentCount,
		"latency_ms":     result.Duration.Milliseconds(),
	}
	if stats.DocumentCount == 0 {
		result.Status = StatusDegraded
		result.Message = "Knowledge base is empty"
		return result
	}
	result.Status = StatusHealthy
	result.Message = "Vector store healthy"
	return result
}

// RedisChecker pings the embedding cache.
type RedisChecker struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client, timeout: 2 * time.Second}
}

func (r *RedisChecker) Name() string           { return "redis" }
func (r *RedisChecker) IsCritical() bool       { return false }
func (r *RedisChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: r.Name(), Timestamp: start}
	err := r.client.Ping(ctx).Err()
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Redis ping failed"
		return result
	}
	if result.Duration > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Redis responding but with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "Redis healthy"
	}
	result.Details = map[string]interface{}{"latency_ms": result.Duration.Milliseconds()}
	return result
}

// LLMConfigChecker verifies the generation backend is configured. It makes
// no network call. Synthesis cannot run without it, so it is critical.
type LLMConfigChecker struct {
	cfg config.LLMConfig
}

func NewLLMConfigChecker(cfg config.LLMConfig) *LLMConfigChecker {
	return &LLMConfigChecker{cfg: cfg}
}

func (l *LLMConfigChecker) Name() string           { return "llm" }
func (l *LLMConfigChecker) IsCritical() bool       { return true }
func (l *LLMConfigChecker) Timeout() time.Duration { return time.Second }

func (l *LLMConfigChecker) Check(context.Context) CheckResult {
	result := CheckResult{
		Component: l.Name(),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"provider": l.cfg.Provider, "model": l.cfg.Model},
	}
	switch {
	case l.cfg.Provider == "http" && l.cfg.APIBase == "":
		result.Status = StatusUnhealthy
		result.Message = "LLM service base URL not configured"
	case l.cfg.Provider != "http" && l.cfg.APIKey == "":
		result.Status = StatusUnhealthy
		result.Message = "LLM API key not configured"
	default:
		result.Status = StatusHealthy
		result.Message = "LLM configured"
	}
	return result
}

// CustomHealthChecker adapts a function.
type CustomHealthChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	checkFn  func(ctx context.Context) CheckResult
}

func NewCustomHealthChecker(name string, critical bool, timeout time.Duration, checkFn func(ctx context.Context) CheckResult) *CustomHealthChecker {
	return &CustomHealthChecker{name: name, critical: critical, timeout: timeout, checkFn: checkFn}
}

func (c *CustomHealthChecker) Name() string           { return c.name }
func (c *CustomHealthChecker) IsCritical() bool       { return c.critical }
func (c *CustomHealthChecker) Timeout() time.Duration { return c.timeout }

func (c *CustomHealthChecker) Check(ctx context.Context) CheckResult {
	return c.checkFn(ctx)
}
