package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/circuitbreaker"
	ometrics "github.com/Kocoro-lab/Shannon/go/curriculum/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/tracing"
)

// ErrNotInitialized is returned by a nil Service.
var ErrNotInitialized = errors.New("embedding service not initialized")

// Service turns text into vectors with a two-tier cache in front of an HTTP
// embedding endpoint.
type Service struct {
	cfg    Config
	http   *circuitbreaker.HTTPWrapper
	cache  Cache
	lru    *LocalLRU
	logger *zap.Logger
}

// NewService creates the service. cache may be nil.
func NewService(cfg Config, cache Cache, logger *zap.Logger) *Service {
	c := cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{Timeout: c.Timeout}
	return &Service{
		cfg:    c,
		http:   circuitbreaker.NewHTTPWrapper(client, "embeddings", "embeddings", logger),
		cache:  cache,
		lru:    NewLocalLRU(c.MaxLRU, c.CacheTTL),
		logger: logger,
	}
}

// Model returns the default embedding model.
func (s *Service) Model() string { return s.cfg.DefaultModel }

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

// Embed returns the vector for one text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts, calling the endpoint only for cache misses.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	m := s.cfg.DefaultModel

	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		key := MakeKey(m, text)
		if v, ok := s.lru.Get(key); ok {
			results[i] = v
			ometrics.CacheHits.WithLabelValues("embeddings", "lru").Inc()
			continue
		}
		if s.cache != nil {
			if v, ok := s.cache.Get(ctx, key); ok {
				results[i] = v
				s.lru.Set(key, v)
				ometrics.CacheHits.WithLabelValues("embeddings", "redis").Inc()
				continue
			}
		}
		ometrics.CacheMisses.WithLabelValues("embeddings").Inc()
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	vecs, err := s.fetch(ctx, m, missing)
	if err != nil {
		return nil, err
	}
	for i, v := range vecs {
		results[missingIdx[i]] = v
		key := MakeKey(m, missing[i])
		s.lru.Set(key, v)
		if s.cache != nil {
			s.cache.Set(ctx, key, v, s.cfg.CacheTTL)
		}
	}
	return results, nil
}

func (s *Service) fetch(ctx context.Context, model string, texts []string) (_ [][]float32, err error) {
	url := fmt.Sprintf("%s/embeddings/", s.cfg.BaseURL)
	start := time.Now()
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer func() { tracing.EndSpan(span, err) }()

	buf, err := json.Marshal(embedRequest{Texts: texts, Model: model})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := s.http.Do(req)
	if err != nil {
		ometrics.RecordEmbeddingMetrics(model, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		ometrics.RecordEmbeddingMetrics(model, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(body))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		ometrics.RecordEmbeddingMetrics(model, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	if len(er.Embeddings) != len(texts) {
		ometrics.RecordEmbeddingMetrics(model, "empty", time.Since(start).Seconds())
		return nil, fmt.Errorf("embedding service returned %d embeddings for %d texts", len(er.Embeddings), len(texts))
	}

	out := make([][]float32, len(er.Embeddings))
	for i, e := range er.Embeddings {
		v := make([]float32, len(e))
		for j, f := range e {
			v[j] = float32(f)
		}
		out[i] = v
	}
	ometrics.RecordEmbeddingMetrics(model, "ok", time.Since(start).Seconds())
	return out, nil
}
