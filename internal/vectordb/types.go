package vectordb

import (
	"context"
	"time"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
)

// Config controls the Qdrant client.
type Config struct {
	BaseURL    string
	Collection string
	Threshold  float64
	Timeout    time.Duration
	// Dimension is used when the collection has to be created on ingest.
	Dimension int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:6333"
	}
	if c.Collection == "" {
		c.Collection = "curriculum_knowledge"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Stats describes a knowledge collection.
type Stats struct {
	Collection    string `json:"collection"`
	DocumentCount int64  `json:"document_count"`
	VectorSize    int    `json:"vector_size,omitempty"`
}

// Store is a searchable knowledge base.
type Store interface {
	SimilaritySearch(ctx context.Context, query string, k int, filters map[string]string) ([]models.RetrievedChunk, error)
	CollectionStats(ctx context.Context) (Stats, error)
	Upsert(ctx context.Context, chunks []Chunk) error
}

// Chunk is one unit of ingested text.
type Chunk struct {
	DocumentID string                 `json:"document_id" yaml:"document_id"`
	ChunkIndex int                    `json:"chunk_index" yaml:"chunk_index"`
	Content    string                 `json:"content" yaml:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// upsertItem is a single Qdrant point.
type upsertItem struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// upsertResponse captures the basic Qdrant upsert response.
type upsertResponse struct {
	Status string  `json:"status"`
	Time   float64 `json:"time"`
}

// matches reports whether every filter key equals the metadata value.
func matches(meta map[string]interface{}, filters map[string]string) bool {
	for k, want := range filters {
		got, ok := meta[k]
		if !ok {
			return false
		}
		if s, ok := got.(string); !ok || s != want {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
