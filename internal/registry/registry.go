// Package registry owns the process-wide collaborators: the vector store,
// the search toolchain and the language model client. main builds one
// Registry and injects what it hands out.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/config"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/embeddings"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/llm"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/orchestrator"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/ratecontrol"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/retrieval"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/synthesis"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/vectordb"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/websearch"
)

// ErrNotInitialized is returned when a collaborator is requested before Init.
var ErrNotInitialized = errors.New("registry not initialized")

// Option overrides a collaborator before Init builds the rest.
type Option func(*Registry)

func WithVectorStore(s vectordb.Store) Option { return func(r *Registry) { r.store = s } }
func WithToolchain(t *websearch.Toolchain) Option { return func(r *Registry) { r.toolchain = t } }
func WithLLM(c llm.Client) Option { return func(r *Registry) { r.llm = c } }

type Registry struct {
	mu     sync.RWMutex
	cfg    *config.Config
	logger *zap.Logger
	opts   []Option

	ready     bool
	limiters  *ratecontrol.Limiters
	redis     *redis.Client
	embedder  *embeddings.Service
	store     vectordb.Store
	pg        *vectordb.PGStore
	toolchain *websearch.Toolchain
	llm       llm.Client
}

func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{cfg: cfg, logger: logger, opts: opts}
}

// Init constructs every collaborator. Calling it twice is a no-op.
func (r *Registry) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}
	for _, o := range r.opts {
		o(r)
	}
	cfg := r.cfg

	r.limiters = ratecontrol.New(cfg.Search.RateLimits)
	r.embedder = embeddings.NewService(embeddings.Config{
		BaseURL:      cfg.Embeddings.BaseURL,
		DefaultModel: cfg.Embeddings.Model,
		Timeout:      time.Duration(cfg.Embeddings.TimeoutSeconds) * time.Second,
		CacheTTL:     config.Duration(cfg.Embeddings.CacheTTL, time.Hour),
		MaxLRU:       cfg.Embeddings.CacheSize,
	}, r.embeddingCache(), r.logger)

	if r.store == nil {
		store, err := r.buildStore(ctx)
		if err != nil {
			r.closeLocked()
			return err
		}
		r.store = store
	}
	if r.toolchain == nil {
		r.toolchain = websearch.NewDefaultToolchain(cfg.Search, r.limiters, r.logger)
	}
	if r.llm == nil {
		client, err := llm.NewClient(ctx, cfg.LLM, r.limiters, r.logger)
		if err != nil {
			r.closeLocked()
			return fmt.Errorf("init llm client: %w", err)
		}
		r.llm = client
	}
	r.ready = true
	r.logger.Info("Registry initialized",
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("redis_cache", r.redis != nil))
	return nil
}

// embeddingCache connects the optional Redis tier. A failing Redis is
// logged and skipped; the in-process LRU still applies.
func (r *Registry) embeddingCache() embeddings.Cache {
	if r.cfg.Embeddings.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     r.cfg.Embeddings.RedisAddr,
		Password: r.cfg.Embeddings.RedisPassword,
	})
	cache, err := embeddings.NewRedisCache(client, r.logger)
	if err != nil {
		r.logger.Warn("Redis embedding cache unavailable", zap.String("addr", r.cfg.Embeddings.RedisAddr), zap.Error(err))
		_ = client.Close()
		return nil
	}
	r.redis = client
	return cache
}

func (r *Registry) buildStore(ctx context.Context) (vectordb.Store, error) {
	v := r.cfg.Vector
	switch v.Backend {
	case "qdrant":
		return vectordb.NewClient(vectordb.Config{
			BaseURL:    v.QdrantURL,
			Collection: v.Collection,
			Threshold:  v.Threshold,
			Timeout:    time.Duration(v.TimeoutSeconds) * time.Second,
		}, r.embedder, r.logger), nil
	case "pgvector":
		pg, err := vectordb.NewPGStore(ctx, v.PostgresDSN, v.PostgresTable, r.embedder, r.logger)
		if err != nil {
			return nil, err
		}
		r.pg = pg
		return pg, nil
	case "memory", "":
		store := vectordb.NewMemoryStore()
		if v.SeedFile != "" {
			n, err := vectordb.IngestSeed(ctx, store, embeddings.NewChunker(embeddings.DefaultChunkingConfig()), v.SeedFile, r.logger)
			if err != nil {
				return nil, fmt.Errorf("seed memory store: %w", err)
			}
			r.logger.Info("Seeded in-memory knowledge base", zap.Int("chunks", n))
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported vector backend %q", v.Backend)
}

func (r *Registry) VectorStore() vectordb.Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store
}

func (r *Registry) Toolchain() *websearch.Toolchain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.toolchain
}

func (r *Registry) LLM() llm.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm
}

func (r *Registry) Embedder() *embeddings.Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embedder
}

// Redis returns the embedding cache client, or nil when Redis is not in use.
func (r *Registry) Redis() *redis.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.redis
}

// Config returns the configuration the registry was built from.
func (r *Registry) Config() *config.Config { return r.cfg }

// Orchestrator assembles the generation pipeline over the registry's
// collaborators.
func (r *Registry) Orchestrator() (*orchestrator.Orchestrator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return nil, ErrNotInitialized
	}
	return orchestrator.New(
		retrieval.NewAgent(r.store, r.logger),
		websearch.NewAgent(r.toolchain, r.llm, r.logger),
		synthesis.New(r.llm, r.logger),
		orchestrator.Options{
			StageTimeout: config.Duration(r.cfg.Pipeline.StageTimeout, 45*time.Second),
			RunTimeout:   config.Duration(r.cfg.Pipeline.RunTimeout, 3*time.Minute),
		},
		r.logger,
	), nil
}

// Reset releases connections and forgets every collaborator. Init may be
// called again afterwards.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Registry) closeLocked() {
	if r.pg != nil {
		r.pg.Close()
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			r.logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	r.ready = false
	r.limiters = nil
	r.redis = nil
	r.embedder = nil
	r.store = nil
	r.pg = nil
	r.toolchain = nil
	r.llm = nil
}
