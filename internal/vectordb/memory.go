package vectordb

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
)

// MemoryStore is an in-process store ranking chunks by term-frequency cosine.
// It needs no embedding service and is used for local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks []memChunk
}

type memChunk struct {
	Chunk
	tf   map[string]float64
	norm float64
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func terms(text string) map[string]float64 {
	tf := map[string]float64{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) < 2 {
			continue
		}
		tf[w]++
	}
	return tf
}

func norm(tf map[string]float64) float64 {
	var s float64
	for _, v := range tf {
		s += v * v
	}
	return math.Sqrt(s)
}

// Upsert replaces chunks with the same document id and index.
func (m *MemoryStore) Upsert(_ context.Context, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range chunks {
		tf := terms(ch.Content)
		mc := memChunk{Chunk: ch, tf: tf, norm: norm(tf)}
		replaced := false
		for i := range m.chunks {
			if m.chunks[i].DocumentID == ch.DocumentID && m.chunks[i].ChunkIndex == ch.ChunkIndex {
				m.chunks[i] = mc
				replaced = true
				break
			}
		}
		if !replaced {
			m.chunks = append(m.chunks, mc)
		}
	}
	return nil
}

// SimilaritySearch returns up to k chunks with non-zero similarity.
func (m *MemoryStore) SimilaritySearch(ctx context.Context, query string, k int, filters map[string]string) ([]models.RetrievedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := terms(query)
	qn := norm(q)
	if qn == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.RetrievedChunk
	for _, c := range m.chunks {
		if c.norm == 0 || !matches(c.Metadata, filters) {
			continue
		}
		var dot float64
		for t, v := range q {
			dot += v * c.tf[t]
		}
		if dot == 0 {
			continue
		}
		meta := make(map[string]interface{}, len(c.Metadata))
		for k, v := range c.Metadata {
			meta[k] = v
		}
		out = append(out, models.RetrievedChunk{
			Content:         c.Content,
			SimilarityScore: clamp01(dot / (qn * c.norm)),
			Metadata:        meta,
			DocumentID:      c.DocumentID,
			ChunkIndex:      c.ChunkIndex,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SimilarityScore > out[j].SimilarityScore })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// CollectionStats reports the number of stored chunks.
func (m *MemoryStore) CollectionStats(context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Collection: "memory", DocumentCount: int64(len(m.chunks))}, nil
}

// SeedDocument is one entry in a seed file.
type SeedDocument struct {
	ID       string                 `yaml:"id"`
	Content  string                 `yaml:"content"`
	Metadata map[string]interface{} `yaml:"metadata"`
}

// LoadSeedFile reads a YAML (or JSON) list of documents.
func LoadSeedFile(path string) ([]SeedDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var docs []SeedDocument
	if err := yaml.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return docs, nil
}
