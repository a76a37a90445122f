package vectordb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countRow struct {
	n   int64
	err error
}

func (r countRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.n
	return nil
}

type fakeConn struct {
	count int64
	execs []string
	args  [][]any
}

func (f *fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConn) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	if !strings.HasPrefix(sql, "SELECT count(*)") {
		return countRow{err: errors.New("unexpected query")}
	}
	return countRow{n: f.count}
}

func (f *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("OK"), nil
}

func TestPGStoreStats(t *testing.T) {
	conn := &fakeConn{count: 42}
	s := newPGStore(conn, "", fixedEmbedder{}, zaptest.NewLogger(t))
	stats, err := s.CollectionStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats.DocumentCount)
	assert.Equal(t, "knowledge_chunks", stats.Collection)
}

func TestPGStoreUpsert(t *testing.T) {
	conn := &fakeConn{}
	s := newPGStore(conn, "kb", fixedEmbedder{}, zaptest.NewLogger(t))
	err := s.Upsert(context.Background(), []Chunk{
		{DocumentID: "doc", ChunkIndex: 0, Content: "first"},
		{DocumentID: "doc", ChunkIndex: 1, Content: "second", Metadata: map[string]interface{}{"title": "Doc"}},
	})
	require.NoError(t, err)

	// extension + table, then one insert per chunk
	require.Len(t, conn.execs, 4)
	assert.Contains(t, conn.execs[0], "CREATE EXTENSION")
	assert.Contains(t, conn.execs[1], "vector(3)")
	assert.Contains(t, conn.execs[2], `INSERT INTO "kb"`)
	assert.Equal(t, pointID("doc", 1), conn.args[3][0])
	assert.Equal(t, pgvector.NewVector([]float32{0.1, 0.2, 0.3}), conn.args[3][5])

	require.NoError(t, s.Upsert(context.Background(), nil))
	assert.Len(t, conn.execs, 4)
}

func TestPGStoreRequiresEmbedder(t *testing.T) {
	s := newPGStore(&fakeConn{}, "kb", nil, nil)
	_, err := s.SimilaritySearch(context.Background(), "q", 3, nil)
	assert.Error(t, err)
	assert.Error(t, s.Upsert(context.Background(), []Chunk{{DocumentID: "d", Content: "x"}}))
}
