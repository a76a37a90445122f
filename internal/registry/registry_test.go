package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/config"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/llm"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
- id: intro-x
  content: Intro to X covers the basics of X and why Y matters.
  metadata:
    title: Intro to X
    audience_level: beginner
`), 0o600))

	cfg := &config.Config{}
	cfg.LLM = config.LLMConfig{Provider: "http", APIBase: "http://127.0.0.1:1", Model: "test", TimeoutSeconds: 1}
	cfg.Search = config.SearchConfig{TimeoutSeconds: 1, RateLimits: map[string]float64{"duckduckgo": 1}}
	cfg.Vector = config.VectorConfig{Backend: "memory", SeedFile: seed}
	cfg.Embeddings = config.EmbeddingsConfig{CacheTTL: "1m", CacheSize: 16}
	cfg.Pipeline = config.PipelineConfig{StageTimeout: "5s", RunTimeout: "30s"}
	return cfg
}

func TestInitBuildsCollaborators(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Embeddings.RedisAddr = mr.Addr()

	r := New(cfg, zaptest.NewLogger(t))
	_, err := r.Orchestrator()
	require.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, r.Init(context.Background()))
	require.NoError(t, r.Init(context.Background()))

	require.NotNil(t, r.VectorStore())
	require.NotNil(t, r.Toolchain())
	require.NotNil(t, r.LLM())
	require.NotNil(t, r.Embedder())
	assert.NotNil(t, r.Redis())
	assert.Equal(t, "tavily", r.Toolchain().Primary())

	stats, err := r.VectorStore().CollectionStats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.DocumentCount)

	o, err := r.Orchestrator()
	require.NoError(t, err)
	assert.NotNil(t, o)
}

func TestRedisUnavailableIsSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embeddings.RedisAddr = "127.0.0.1:1"
	r := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, r.Init(context.Background()))
	assert.Nil(t, r.Redis())
}

func TestResetAndOverrides(t *testing.T) {
	fake := llm.ClientFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "{}"}, nil
	})
	r := New(testConfig(t), zaptest.NewLogger(t), WithLLM(fake))
	require.NoError(t, r.Init(context.Background()))
	resp, err := r.LLM().Generate(context.Background(), llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Content)

	r.Reset()
	assert.Nil(t, r.VectorStore())
	assert.Nil(t, r.LLM())
	assert.Nil(t, r.Toolchain())

	require.NoError(t, r.Init(context.Background()))
	assert.NotNil(t, r.LLM())
}

func TestInitRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vector.Backend = "chroma"
	r := New(cfg, zaptest.NewLogger(t))
	require.Error(t, r.Init(context.Background()))
	assert.Nil(t, r.VectorStore())
}
