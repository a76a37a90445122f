package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/circuitbreaker"
	ometrics "github.com/Kocoro-lab/Shannon/go/curriculum/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/tracing"
)

// Client is a minimal Qdrant HTTP client
type Client struct {
	cfg      Config
	base     string
	httpw    *circuitbreaker.HTTPWrapper
	embedder Embedder
	log      *zap.Logger
}

// NewClient creates a Qdrant-backed store. Queries are embedded with embedder.
func NewClient(cfg Config, embedder Embedder, logger *zap.Logger) *Client {
	c := cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: c.Timeout}
	return &Client{
		cfg:      c,
		base:     strings.TrimRight(c.BaseURL, "/"),
		httpw:    circuitbreaker.NewHTTPWrapper(httpClient, "qdrant", "vectordb", logger),
		embedder: embedder,
		log:      logger,
	}
}

// Collection returns the configured collection name.
func (c *Client) Collection() string { return c.cfg.Collection }

// qdrant search request/response (simplified)
type qdrantQueryRequest struct {
	Query          []float32              `json:"query"`
	Limit          int                    `json:"limit"`
	ScoreThreshold *float64               `json:"score_threshold,omitempty"`
	WithPayload    bool                   `json:"with_payload"`
	Filter         map[string]interface{} `json:"filter,omitempty"`
}

type qdrantPoint struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type qdrantSearchResponse struct {
	Result []qdrantPoint `json:"result"`
	Status string        `json:"status"`
}

// qdrantQueryResponse for the /points/query endpoint which has nested structure
type qdrantQueryResponse struct {
	Result struct {
		Points []qdrantPoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// buildFilter turns exact-match metadata filters into a Qdrant must clause.
func buildFilter(filters map[string]string) map[string]interface{} {
	if len(filters) == 0 {
		return nil
	}
	must := make([]map[string]interface{}, 0, len(filters))
	for k, v := range filters {
		must = append(must, map[string]interface{}{
			"key":   k,
			"match": map[string]interface{}{"value": v},
		})
	}
	return map[string]interface{}{"must": must}
}

// SimilaritySearch embeds query and returns the k closest chunks.
func (c *Client) SimilaritySearch(ctx context.Context, query string, k int, filters map[string]string) ([]models.RetrievedChunk, error) {
	if c == nil {
		return nil, fmt.Errorf("vectordb: search called on nil client")
	}
	if c.embedder == nil {
		return nil, fmt.Errorf("vectordb: no embedder configured")
	}
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	points, err := c.search(ctx, c.cfg.Collection, vec, k, c.cfg.Threshold, buildFilter(filters))
	if err != nil {
		return nil, err
	}
	out := make([]models.RetrievedChunk, 0, len(points))
	for _, p := range points {
		out = append(out, pointToChunk(p))
	}
	return out, nil
}

func pointToChunk(p qdrantPoint) models.RetrievedChunk {
	ch := models.RetrievedChunk{
		SimilarityScore: clamp01(p.Score),
		Metadata:        map[string]interface{}{},
	}
	for k, v := range p.Payload {
		switch k {
		case "content":
			ch.Content, _ = v.(string)
		case "document_id":
			ch.DocumentID, _ = v.(string)
		case "chunk_index":
			if f, ok := v.(float64); ok {
				ch.ChunkIndex = int(f)
			}
		default:
			ch.Metadata[k] = v
		}
	}
	if ch.DocumentID == "" {
		ch.DocumentID = fmt.Sprint(p.ID)
	}
	return ch
}

func (c *Client) search(ctx context.Context, collection string, vec []float32, limit int, threshold float64, filter map[string]interface{}) ([]qdrantPoint, error) {
	start := time.Now()

	ctx, span := tracing.StartHTTPSpan(ctx, "POST", fmt.Sprintf("%s/collections/%s/points/query", c.base, collection))
	defer span.End()

	// Prefer modern /points/query; on failure, fallback to /points/search
	var thr *float64
	if threshold > 0 {
		thr = &threshold
	}
	reqBody := qdrantQueryRequest{Query: vec, Limit: limit, ScoreThreshold: thr, WithPayload: true, Filter: filter}
	buf, _ := json.Marshal(reqBody)

	call := func(url string, body []byte) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		tracing.InjectTraceparent(ctx, req)
		return c.httpw.Do(req)
	}

	urlQuery := fmt.Sprintf("%s/collections/%s/points/query", c.base, collection)
	resp, err := call(urlQuery, buf)
	if err != nil {
		ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		urlSearch := fmt.Sprintf("%s/collections/%s/points/search", c.base, collection)
		legacy := map[string]interface{}{"vector": vec, "limit": limit, "with_payload": true}
		if threshold > 0 {
			legacy["score_threshold"] = threshold
		}
		if filter != nil {
			legacy["filter"] = filter
		}
		buf2, _ := json.Marshal(legacy)
		resp2, err2 := call(urlSearch, buf2)
		if err2 != nil {
			ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("qdrant query/search failed: %w", err2)
		}
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("qdrant status %d", resp2.StatusCode)
		}
		var qr qdrantSearchResponse
		if err := json.NewDecoder(resp2.Body).Decode(&qr); err != nil {
			ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, err
		}
		ometrics.RecordVectorSearchMetrics(collection, "ok", time.Since(start).Seconds())
		return qr.Result, nil
	}
	var qr qdrantQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	ometrics.RecordVectorSearchMetrics(collection, "ok", time.Since(start).Seconds())
	return qr.Result.Points, nil
}

// CollectionStats reports the number of stored chunks.
func (c *Client) CollectionStats(ctx context.Context) (Stats, error) {
	url := fmt.Sprintf("%s/collections/%s", c.base, c.cfg.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Stats{}, err
	}
	resp, err := c.httpw.Do(req)
	if err != nil {
		return Stats{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Stats{Collection: c.cfg.Collection}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Stats{}, fmt.Errorf("failed to get collection info: status %d", resp.StatusCode)
	}

	var result struct {
		Result struct {
			Status      string `json:"status"`
			PointsCount int64  `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Stats{}, err
	}
	return Stats{
		Collection:    c.cfg.Collection,
		DocumentCount: result.Result.PointsCount,
		VectorSize:    result.Result.Config.Params.Vectors.Size,
	}, nil
}

// EnsureCollection creates the collection with cosine distance when missing.
func (c *Client) EnsureCollection(ctx context.Context, dimension int) error {
	st, err := c.CollectionStats(ctx)
	if err != nil {
		return err
	}
	if st.VectorSize > 0 {
		if st.VectorSize != dimension {
			return fmt.Errorf("dimension mismatch for collection %s: expected %d, got %d", c.cfg.Collection, st.VectorSize, dimension)
		}
		return nil
	}
	body, _ := json.Marshal(map[string]interface{}{
		"vectors": map[string]interface{}{"size": dimension, "distance": "Cosine"},
	})
	url := fmt.Sprintf("%s/collections/%s", c.base, c.cfg.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpw.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant create collection status %d", resp.StatusCode)
	}
	c.log.Info("Created knowledge collection",
		zap.String("collection", c.cfg.Collection),
		zap.Int("dimension", dimension))
	return nil
}

// pointID derives a stable id so re-ingesting a document overwrites its chunks.
func pointID(documentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", documentID, index))).String()
}

// Upsert embeds and stores chunks.
func (c *Client) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if c.embedder == nil {
		return fmt.Errorf("vectordb: no embedder configured")
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) > 0 {
		if err := c.EnsureCollection(ctx, len(vecs[0])); err != nil {
			return err
		}
	}

	points := make([]upsertItem, len(chunks))
	for i, ch := range chunks {
		payload := map[string]interface{}{
			"content":     ch.Content,
			"document_id": ch.DocumentID,
			"chunk_index": ch.ChunkIndex,
		}
		for k, v := range ch.Metadata {
			payload[k] = v
		}
		points[i] = upsertItem{ID: pointID(ch.DocumentID, ch.ChunkIndex), Vector: vecs[i], Payload: payload}
	}

	url := fmt.Sprintf("%s/collections/%s/points", c.base, c.cfg.Collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "PUT", url)
	defer span.End()

	buf, _ := json.Marshal(map[string]interface{}{"points": points})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)
	resp, err := c.httpw.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status %d", resp.StatusCode)
	}
	var r upsertResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return err
	}
	c.log.Debug("Upserted chunks",
		zap.String("collection", c.cfg.Collection),
		zap.Int("count", len(points)),
		zap.String("status", r.Status))
	return nil
}
