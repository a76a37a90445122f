package session

import (
	"sync"
	"time"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
)

// Exchange is one answered question.
type Exchange struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// Refinement is a hard-refinement proposal the caller confirmed.
type Refinement struct {
	ModuleID    string    `json:"module_id"`
	ChangeType  string    `json:"change_type"`
	Description string    `json:"description"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Rejection is a suggestion the engine or the caller turned down.
type Rejection struct {
	Suggestion string    `json:"suggestion"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
}

// Log holds the append-only records the query engine owns.
type Log struct {
	mu        sync.RWMutex
	history   []Exchange
	confirmed []Refinement
	rejected  []Rejection
}

func (l *Log) AddQuery(question, answer string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, Exchange{Question: question, Answer: answer, Timestamp: time.Now()})
}

func (l *Log) AddConfirmedRefinement(r Refinement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r.ConfirmedAt.IsZero() {
		r.ConfirmedAt = time.Now()
	}
	l.confirmed = append(l.confirmed, r)
}

func (l *Log) AddRejectedSuggestion(suggestion, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejected = append(l.rejected, Rejection{Suggestion: suggestion, Reason: reason, RejectedAt: time.Now()})
}

func (l *Log) History() []Exchange {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Exchange(nil), l.history...)
}

func (l *Log) ConfirmedRefinements() []Refinement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Refinement(nil), l.confirmed...)
}

func (l *Log) RejectedSuggestions() []Rejection {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Rejection(nil), l.rejected...)
}

// QueryParams are the inputs used to build a QueryContext.
type QueryParams struct {
	Request   *models.CourseRequest
	Outline   *models.Outline
	Retrieval *models.RetrievalResult
	Web       *models.WebFindings
	Feedback  map[string]models.ValidatorFeedback
}

// QueryContext is the read-only view the query engine works over. The
// outline is copied on the way in and on the way out, so no caller can
// change the artifact through it.
type QueryContext struct {
	id        string
	request   *models.CourseRequest
	outline   *models.Outline
	retrieval *models.RetrievalResult
	web       *models.WebFindings
	feedback  map[string]models.ValidatorFeedback
	log       *Log
}

// NewQueryContext builds a query view from a finished run.
func NewQueryContext(p QueryParams) *QueryContext {
	qc := &QueryContext{
		outline:   p.Outline.Clone(),
		retrieval: p.Retrieval,
		web:       p.Web,
		feedback:  make(map[string]models.ValidatorFeedback, len(p.Feedback)),
		log:       &Log{},
	}
	if p.Request != nil {
		req := *p.Request
		qc.request = &req
	}
	for k, v := range p.Feedback {
		qc.feedback[k] = v
	}
	return qc
}

// FromRun builds a query view from a completed run context and its outline.
func FromRun(rc *Context, outline *models.Outline) *QueryContext {
	req := rc.Request()
	retrieval, _ := rc.Retrieval()
	web, _ := rc.WebFindings()
	return NewQueryContext(QueryParams{Request: &req, Outline: outline, Retrieval: retrieval, Web: web})
}

// ID returns the session id assigned by the store, if any.
func (q *QueryContext) ID() string { return q.id }

// Request returns a copy of the original request and whether it is present.
func (q *QueryContext) Request() (models.CourseRequest, bool) {
	if q.request == nil {
		return models.CourseRequest{}, false
	}
	return *q.request, true
}

// Outline returns a copy of the artifact.
func (q *QueryContext) Outline() *models.Outline { return q.outline.Clone() }

// ModuleCount returns the number of modules in the artifact.
func (q *QueryContext) ModuleCount() int {
	if q.outline == nil {
		return 0
	}
	return len(q.outline.Modules)
}

// FindModule resolves a module id against the artifact.
func (q *QueryContext) FindModule(id string) (models.Module, bool) {
	return q.outline.Clone().FindModule(id)
}

// References returns a copy of the artifact's reference list.
func (q *QueryContext) References() []models.Reference {
	if q.outline == nil {
		return nil
	}
	return append([]models.Reference(nil), q.outline.References...)
}

// RetrievedChunks returns a copy of the retrieved chunks.
func (q *QueryContext) RetrievedChunks() []models.RetrievedChunk {
	if q.retrieval == nil {
		return nil
	}
	return append([]models.RetrievedChunk(nil), q.retrieval.Chunks...)
}

// WebResults returns a copy of the web search results.
func (q *QueryContext) WebResults() []models.SearchResult {
	if q.web == nil {
		return nil
	}
	return append([]models.SearchResult(nil), q.web.Results...)
}

// HasReferenceText reports whether the caller uploaded reference text.
func (q *QueryContext) HasReferenceText() bool {
	return q.request != nil && q.request.ReferenceText != ""
}

// Feedback returns stored validator feedback for a module.
func (q *QueryContext) Feedback(moduleID string) (models.ValidatorFeedback, bool) {
	f, ok := q.feedback[moduleID]
	return f, ok
}

// Log returns the engine-owned append-only log.
func (q *QueryContext) Log() *Log { return q.log }

// MissingFields lists required fields that are absent. A nil context is
// missing everything.
func (q *QueryContext) MissingFields() []string {
	if q == nil {
		return []string{"request", "outline"}
	}
	var missing []string
	if q.request == nil {
		missing = append(missing, "request")
	}
	if q.outline == nil {
		missing = append(missing, "outline")
	}
	return missing
}

