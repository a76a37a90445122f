package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	ometrics "github.com/Kocoro-lab/Shannon/go/curriculum/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
)

// pgConn is the subset of pgxpool.Pool used by PGStore.
type pgConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore keeps chunks in a Postgres table with a pgvector column.
type PGStore struct {
	db       pgConn
	pool     *pgxpool.Pool
	table    string
	embedder Embedder
	log      *zap.Logger
}

// NewPGStore connects to dsn and returns a store over table.
func NewPGStore(ctx context.Context, dsn, table string, embedder Embedder, logger *zap.Logger) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := newPGStore(pool, table, embedder, logger)
	s.pool = pool
	return s, nil
}

func newPGStore(db pgConn, table string, embedder Embedder, logger *zap.Logger) *PGStore {
	if table == "" {
		table = "knowledge_chunks"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGStore{db: db, table: table, embedder: embedder, log: logger}
}

// Close releases the pool.
func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PGStore) ident() string { return pgx.Identifier{s.table}.Sanitize() }

// buildSearchSQL renders the similarity query. $1 is the query vector; filter
// values follow in key order, then the limit.
func buildSearchSQL(table string, filters map[string]string, k int) (string, []any) {
	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT document_id, chunk_index, content, metadata, 1 - (embedding <=> $1) AS similarity FROM %s", table)
	args := []any{}
	for i, key := range keys {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "metadata->>$%d = $%d", 2+2*i, 3+2*i)
		args = append(args, key, filters[key])
	}
	fmt.Fprintf(&b, " ORDER BY embedding <=> $1 LIMIT $%d", 2+2*len(keys))
	args = append(args, k)
	return b.String(), args
}

// SimilaritySearch embeds query and returns the k nearest chunks by cosine distance.
func (s *PGStore) SimilaritySearch(ctx context.Context, query string, k int, filters map[string]string) ([]models.RetrievedChunk, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("vectordb: no embedder configured")
	}
	start := time.Now()
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	sql, rest := buildSearchSQL(s.ident(), filters, k)
	args := append([]any{pgvector.NewVector(vec)}, rest...)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		ometrics.RecordVectorSearchMetrics(s.table, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var out []models.RetrievedChunk
	for rows.Next() {
		var (
			ch   models.RetrievedChunk
			meta []byte
		)
		if err := rows.Scan(&ch.DocumentID, &ch.ChunkIndex, &ch.Content, &meta, &ch.SimilarityScore); err != nil {
			ometrics.RecordVectorSearchMetrics(s.table, "error", time.Since(start).Seconds())
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ch.Metadata); err != nil {
				s.log.Warn("Discarding malformed chunk metadata", zap.String("document_id", ch.DocumentID), zap.Error(err))
			}
		}
		ch.SimilarityScore = clamp01(ch.SimilarityScore)
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		ometrics.RecordVectorSearchMetrics(s.table, "error", time.Since(start).Seconds())
		return nil, err
	}
	ometrics.RecordVectorSearchMetrics(s.table, "ok", time.Since(start).Seconds())
	return out, nil
}

// CollectionStats counts stored chunks.
func (s *PGStore) CollectionStats(ctx context.Context) (Stats, error) {
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM "+s.ident()).Scan(&n); err != nil {
		return Stats{}, fmt.Errorf("count chunks: %w", err)
	}
	return Stats{Collection: s.table, DocumentCount: n}, nil
}

// EnsureSchema creates the extension and table when absent.
func (s *PGStore) EnsureSchema(ctx context.Context, dimension int) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	chunk_index INT NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding vector(%d) NOT NULL
)`, s.ident(), dimension),
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert embeds and writes chunks, replacing rows with the same document/index.
func (s *PGStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if s.embedder == nil {
		return fmt.Errorf("vectordb: no embedder configured")
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if err := s.EnsureSchema(ctx, len(vecs[0])); err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, document_id, chunk_index, content, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, s.ident())
	for i, ch := range chunks {
		meta := ch.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(ctx, q, pointID(ch.DocumentID, ch.ChunkIndex), ch.DocumentID, ch.ChunkIndex, ch.Content, raw, pgvector.NewVector(vecs[i])); err != nil {
			return fmt.Errorf("insert chunk %s#%d: %w", ch.DocumentID, ch.ChunkIndex, err)
		}
	}
	return nil
}
