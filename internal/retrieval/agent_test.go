package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/vectordb"
)

type fakeStore struct {
	mu       sync.Mutex
	count    int64
	statsErr error
	results  map[string][]models.RetrievedChunk
	failOn   map[string]bool
	calls    []string
	filters  []map[string]string
}

func (f *fakeStore) SimilaritySearch(_ context.Context, q string, k int, filters map[string]string) ([]models.RetrievedChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)
	f.filters = append(f.filters, filters)
	if f.failOn[q] {
		return nil, errors.New("search failed")
	}
	return f.results[q], nil
}

func (f *fakeStore) CollectionStats(context.Context) (vectordb.Stats, error) {
	return vectordb.Stats{DocumentCount: f.count}, f.statsErr
}

func request() models.CourseRequest {
	return models.CourseRequest{
		CourseTitle:       "Python Basics",
		CourseDescription: "Learn Python fundamentals. Then build projects.",
		AudienceLevel:     "beginner",
		AudienceCategory:  "college_students",
		LearningMode:      "practical_hands_on",
		DepthRequirement:  "introductory",
		DurationHours:     20,
	}
}

func chunk(doc string, score float64, typ string) models.RetrievedChunk {
	return models.RetrievedChunk{DocumentID: doc, SimilarityScore: score, Content: doc, Metadata: map[string]interface{}{"source_type": typ}}
}

func TestEmptyStoreShortCircuits(t *testing.T) {
	store := &fakeStore{count: 0}
	res := NewAgent(store, zaptest.NewLogger(t)).Run(context.Background(), session.NewContext(request()))

	assert.Empty(t, store.calls)
	assert.Zero(t, res.Confidence)
	assert.Zero(t, res.ReturnedCount)
	assert.Equal(t, "Knowledge base is empty", res.Notes)
}

func TestStatsFailureDegrades(t *testing.T) {
	store := &fakeStore{statsErr: errors.New("down")}
	res := NewAgent(store, nil).Run(context.Background(), session.NewContext(request()))
	assert.Empty(t, store.calls)
	assert.Zero(t, res.Confidence)
	assert.Contains(t, res.Notes, "down")
}

func TestTopHitScenario(t *testing.T) {
	store := &fakeStore{count: 10, results: map[string][]models.RetrievedChunk{
		"Python Basics": {chunk("D1", 0.9, "syllabus")},
	}}
	res := NewAgent(store, nil).Run(context.Background(), session.NewContext(request()))

	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "D1", res.Chunks[0].DocumentID)
	assert.Equal(t, 1, res.ReturnedCount)
	assert.Equal(t, 1, res.TotalHits)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	assert.Equal(t, "Retrieved 1 relevant knowledge chunks (1 syllabus) aligned with 'Python Basics' for beginner learners.", res.Summary)
	assert.Equal(t, []string{"Python Basics", "Learn Python fundamentals"}, res.QueriesExecuted)
	assert.Equal(t, []string{"audience_level"}, res.FiltersApplied)
}

func TestMergeDedupAndRank(t *testing.T) {
	store := &fakeStore{count: 10, results: map[string][]models.RetrievedChunk{
		"Python Basics": {
			chunk("A", 0.6, "notes"), chunk("B", 0.8, "notes"), chunk("C", 0.75, "slides"),
		},
		"Learn Python fundamentals": {
			chunk("B", 0.99, "notes"), chunk("D", 0.5, "notes"), chunk("E", 0.65, "slides"), chunk("F", 0.1, "notes"),
		},
	}}
	res := NewAgent(store, nil).Run(context.Background(), session.NewContext(request()))

	assert.Equal(t, 7, res.TotalHits)
	require.Equal(t, 5, res.ReturnedCount)
	ids := make([]string, 0, len(res.Chunks))
	for _, c := range res.Chunks {
		ids = append(ids, c.DocumentID)
	}
	// first-seen B (0.8) wins over the later 0.99 duplicate
	assert.Equal(t, []string{"B", "C", "E", "A", "D"}, ids)
	assert.LessOrEqual(t, res.ReturnedCount, res.TotalHits)
}

func TestFailingQueryIsSkipped(t *testing.T) {
	store := &fakeStore{
		count:  3,
		failOn: map[string]bool{"Python Basics": true},
		results: map[string][]models.RetrievedChunk{
			"Learn Python fundamentals": {chunk("X", 0.4, "notes")},
		},
	}
	res := NewAgent(store, nil).Run(context.Background(), session.NewContext(request()))
	assert.Len(t, store.calls, 2)
	require.Len(t, res.Chunks, 1)
	assert.InDelta(t, 0.4, res.Confidence, 1e-9)
}

func TestFiltersIncludeSubjectDomainWhenSet(t *testing.T) {
	req := request()
	assert.Equal(t, map[string]string{"audience_level": "beginner"}, Filters(req))

	req.SubjectDomain = "engineering"
	assert.Equal(t, map[string]string{"audience_level": "beginner", "subject_domain": "technical"}, Filters(req))
}

func TestQueriesDedupeCaseInsensitive(t *testing.T) {
	req := request()
	req.CourseDescription = "python basics. More text."
	assert.Equal(t, []string{"Python Basics"}, Queries(req))
}

func TestConfidence(t *testing.T) {
	assert.Zero(t, Confidence(nil))
	assert.InDelta(t, 0.5, Confidence([]models.RetrievedChunk{chunk("a", 0.5, "")}), 1e-9)
	// three high hits: boost capped at 0.10
	got := Confidence([]models.RetrievedChunk{chunk("a", 0.8, ""), chunk("b", 0.8, ""), chunk("c", 0.8, "")})
	assert.InDelta(t, 0.9, got, 1e-9)
	assert.Equal(t, 1.0, Confidence([]models.RetrievedChunk{chunk("a", 0.98, ""), chunk("b", 0.99, "")}))
}

func TestSummarizeUnknownType(t *testing.T) {
	c := models.RetrievedChunk{DocumentID: "x"}
	assert.Contains(t, Summarize([]models.RetrievedChunk{c}, request()), "(1 unknown)")
	assert.Equal(t, "No relevant knowledge found in the institutional repository.", Summarize(nil, request()))
}

func TestWorksWithMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := vectordb.NewMemoryStore()
	require.NoError(t, m.Upsert(ctx, []vectordb.Chunk{
		{DocumentID: "py", Content: "Python basics variables loops functions", Metadata: map[string]interface{}{"audience_level": "beginner", "source_type": "syllabus"}},
		{DocumentID: "adv", Content: "Python basics for experts", Metadata: map[string]interface{}{"audience_level": "advanced"}},
	}))
	res := NewAgent(m, nil).Run(ctx, session.NewContext(request()))
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "py", res.Chunks[0].DocumentID)
	assert.Greater(t, res.Confidence, 0.0)
}
