package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
)

func testRequest() models.CourseRequest {
	return models.CourseRequest{
		CourseTitle:       "Intro to Go",
		CourseDescription: "Intro to Go is about concurrency. It covers channels.",
		AudienceLevel:     models.LevelBeginner,
		DurationHours:     20,
	}
}

func testOutline() *models.Outline {
	return &models.Outline{
		CourseTitle: "Intro to Go",
		Modules: []models.Module{
			{ID: "M_1", Title: "Basics"},
			{ID: "M_2", Title: "Channels"},
		},
		References: []models.Reference{{Title: "Effective Go", SourceType: models.SourceWeb}},
	}
}

func TestContextSlotsAreWriteOnce(t *testing.T) {
	c := NewContext(testRequest())
	assert.NotEmpty(t, c.RunID())

	_, state := c.Retrieval()
	assert.Equal(t, SlotPending, state)

	require.NoError(t, c.SetRetrieval(&models.RetrievalResult{ReturnedCount: 1}))
	assert.ErrorIs(t, c.SetRetrieval(&models.RetrievalResult{}), ErrSlotAlreadySet)
	assert.ErrorIs(t, c.MarkRetrievalAbsent("late failure"), ErrSlotAlreadySet)

	r, state := c.Retrieval()
	assert.Equal(t, SlotFilled, state)
	assert.Equal(t, 1, r.ReturnedCount)

	require.NoError(t, c.MarkWebFindingsAbsent("provider down"))
	w, state := c.WebFindings()
	assert.Nil(t, w)
	assert.Equal(t, SlotAbsent, state)
	assert.Equal(t, map[string]string{"web_search": "provider down"}, c.AbsentReasons())
}

func TestContextConcurrentSlotWrites(t *testing.T) {
	c := NewContext(testRequest())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = c.SetRetrieval(&models.RetrievalResult{}) }()
	go func() { defer wg.Done(); _ = c.SetWebFindings(&models.WebFindings{}) }()
	wg.Wait()

	_, rs := c.Retrieval()
	_, ws := c.WebFindings()
	assert.Equal(t, SlotFilled, rs)
	assert.Equal(t, SlotFilled, ws)
}

func TestQueryContextOutlineIsCopied(t *testing.T) {
	req := testRequest()
	src := testOutline()
	qc := NewQueryContext(QueryParams{Request: &req, Outline: src})

	src.Modules = append(src.Modules, models.Module{ID: "M_3"})
	assert.Equal(t, 2, qc.ModuleCount(), "source mutation must not leak in")

	out := qc.Outline()
	out.Modules[0].Title = "changed"
	out.Modules = out.Modules[:1]
	assert.Equal(t, 2, qc.ModuleCount(), "returned copy must not leak back")

	m, ok := qc.FindModule("M_1")
	require.True(t, ok)
	assert.Equal(t, "Basics", m.Title)
}

func TestQueryContextMissingFields(t *testing.T) {
	qc := NewQueryContext(QueryParams{})
	assert.Equal(t, []string{"request", "outline"}, qc.MissingFields())

	req := testRequest()
	qc = NewQueryContext(QueryParams{Request: &req, Outline: testOutline()})
	assert.Empty(t, qc.MissingFields())
	assert.False(t, qc.HasReferenceText())
}

func TestLogAppendOnly(t *testing.T) {
	l := &Log{}
	l.AddQuery("why module 1", "because")
	l.AddRejectedSuggestion("silently delete", "Silent mutations are not allowed.")
	l.AddConfirmedRefinement(Refinement{ModuleID: "M_1", ChangeType: "structural_edit"})

	h := l.History()
	require.Len(t, h, 1)
	h[0].Answer = "tampered"
	assert.Equal(t, "because", l.History()[0].Answer)
	assert.Len(t, l.RejectedSuggestions(), 1)
	assert.False(t, l.ConfirmedRefinements()[0].ConfirmedAt.IsZero())
}

func TestStorePutGetDelete(t *testing.T) {
	s := NewStore(time.Minute, time.Minute, zaptest.NewLogger(t))
	req := testRequest()
	qc := NewQueryContext(QueryParams{Request: &req, Outline: testOutline()})

	id := s.Put(qc)
	assert.Equal(t, id, qc.ID())
	assert.Equal(t, 1, s.Count())

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Same(t, qc, got)

	s.Delete(id)
	_, ok = s.Get(id)
	assert.False(t, ok)
}

func TestFromRun(t *testing.T) {
	rc := NewContext(testRequest())
	require.NoError(t, rc.SetWebFindings(&models.WebFindings{Results: []models.SearchResult{{URL: "https://go.dev"}}}))
	qc := FromRun(rc, testOutline())
	assert.Len(t, qc.WebResults(), 1)
	assert.Empty(t, qc.RetrievedChunks())
}
