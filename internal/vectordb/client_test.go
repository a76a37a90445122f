package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/embeddings"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func TestSimilaritySearchFallsBackToLegacyEndpoint(t *testing.T) {
	var gotFilter map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/kb/points/query":
			w.WriteHeader(http.StatusNotFound)
		case "/collections/kb/points/search":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotFilter, _ = body["filter"].(map[string]interface{})
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "ok",
				"result": []map[string]interface{}{{
					"id":    "p1",
					"score": 0.91,
					"payload": map[string]interface{}{
						"content":        "Variables hold values.",
						"document_id":    "python-basics",
						"chunk_index":    2,
						"title":          "Python Basics",
						"audience_level": "beginner",
					},
				}},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Collection: "kb"}, fixedEmbedder{}, zaptest.NewLogger(t))
	hits, err := c.SimilaritySearch(context.Background(), "python variables", 5, map[string]string{"audience_level": "beginner"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "python-basics", hits[0].DocumentID)
	assert.Equal(t, 2, hits[0].ChunkIndex)
	assert.InDelta(t, 0.91, hits[0].SimilarityScore, 1e-9)
	assert.Equal(t, "Python Basics", hits[0].Title())
	assert.NotContains(t, hits[0].Metadata, "content")

	must, _ := gotFilter["must"].([]interface{})
	assert.Len(t, must, 1)
}

func TestSimilaritySearchQueryEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/kb/points/query", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"result": map[string]interface{}{"points": []map[string]interface{}{
				{"id": 7, "score": 1.2, "payload": map[string]interface{}{"content": "x"}},
			}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Collection: "kb"}, fixedEmbedder{}, nil)
	hits, err := c.SimilaritySearch(context.Background(), "q", 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "7", hits[0].DocumentID)
	assert.Equal(t, 1.0, hits[0].SimilarityScore)
}

func TestCollectionStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"status":"green","points_count":42,"config":{"params":{"vectors":{"size":768,"distance":"Cosine"}}}}}`))
	}))
	defer srv.Close()

	st, err := NewClient(Config{BaseURL: srv.URL, Collection: "kb"}, nil, nil).CollectionStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), st.DocumentCount)
	assert.Equal(t, 768, st.VectorSize)

	st, err = NewClient(Config{BaseURL: srv.URL, Collection: "missing"}, nil, nil).CollectionStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.DocumentCount)
}

func TestUpsertCreatesCollectionAndUsesStableIDs(t *testing.T) {
	var (
		mu      sync.Mutex
		created bool
		ids     []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/kb":
			created = true
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/kb/points":
			var body struct {
				Points []upsertItem `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			for _, p := range body.Points {
				ids = append(ids, p.ID)
			}
			_, _ = w.Write([]byte(`{"status":"ok","time":0.01}`))
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Collection: "kb"}, fixedEmbedder{}, nil)
	err := c.Upsert(context.Background(), []Chunk{
		{DocumentID: "doc", ChunkIndex: 0, Content: "a"},
		{DocumentID: "doc", ChunkIndex: 1, Content: "b"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, ids, 2)
	assert.Equal(t, pointID("doc", 0), ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestBuildSearchSQL(t *testing.T) {
	sql, args := buildSearchSQL(`"kb"`, map[string]string{"subject_domain": "programming", "audience_level": "beginner"}, 5)
	assert.Equal(t,
		`SELECT document_id, chunk_index, content, metadata, 1 - (embedding <=> $1) AS similarity FROM "kb" WHERE metadata->>$2 = $3 AND metadata->>$4 = $5 ORDER BY embedding <=> $1 LIMIT $6`,
		sql)
	assert.Equal(t, []any{"audience_level", "beginner", "subject_domain", "programming", 5}, args)

	sql, args = buildSearchSQL(`"kb"`, nil, 3)
	assert.Contains(t, sql, "LIMIT $2")
	assert.NotContains(t, sql, "WHERE")
	assert.Equal(t, []any{3}, args)
}

func TestMemoryStoreRanksAndFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Upsert(ctx, []Chunk{
		{DocumentID: "a", Content: "python variables and loops", Metadata: map[string]interface{}{"audience_level": "beginner"}},
		{DocumentID: "b", Content: "python decorators metaclasses", Metadata: map[string]interface{}{"audience_level": "advanced"}},
		{DocumentID: "c", Content: "gardening tips", Metadata: map[string]interface{}{"audience_level": "beginner"}},
	}))

	hits, err := m.SimilaritySearch(ctx, "python loops", 5, map[string]string{"audience_level": "beginner"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].DocumentID)
	assert.Greater(t, hits[0].SimilarityScore, 0.5)

	hits, err = m.SimilaritySearch(ctx, "python", 1, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	st, _ := m.CollectionStats(ctx)
	assert.Equal(t, int64(3), st.DocumentCount)

	// same id/index replaces
	require.NoError(t, m.Upsert(ctx, []Chunk{{DocumentID: "a", Content: "replaced"}}))
	st, _ = m.CollectionStats(ctx)
	assert.Equal(t, int64(3), st.DocumentCount)
}

func TestIngestSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: intro-python
  content: Python is a general purpose language used for scripting and data work.
  metadata:
    title: Intro to Python
    audience_level: beginner
- id: empty
  content: "   "
`), 0o600))

	m := NewMemoryStore()
	n, err := IngestSeed(context.Background(), m, embeddings.NewChunker(embeddings.ChunkingConfig{SizeWords: 5, OverlapWords: 1}), path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := m.SimilaritySearch(context.Background(), "python scripting", 5, map[string]string{"audience_level": "beginner"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Intro to Python", hits[0].Title())
}

func TestIngestRequiresID(t *testing.T) {
	_, err := Ingest(context.Background(), NewMemoryStore(), embeddings.NewChunker(embeddings.DefaultChunkingConfig()), " ", "text", nil, nil)
	assert.Error(t, err)
}
