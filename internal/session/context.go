package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
)

// ErrSlotAlreadySet is returned when a stage tries to overwrite a populated slot.
var ErrSlotAlreadySet = errors.New("session slot already set")

// SlotState describes an enrichment slot.
type SlotState int

const (
	SlotPending SlotState = iota // stage has not resolved yet
	SlotFilled                   // stage wrote a value
	SlotAbsent                   // stage failed; value intentionally missing
)

func (s SlotState) String() string {
	switch s {
	case SlotPending:
		return "pending"
	case SlotFilled:
		return "filled"
	case SlotAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

type slot[T any] struct {
	state  SlotState
	value  T
	reason string
}

func (s *slot[T]) fill(v T) error {
	if s.state != SlotPending {
		return ErrSlotAlreadySet
	}
	s.state = SlotFilled
	s.value = v
	return nil
}

func (s *slot[T]) absent(reason string) error {
	if s.state != SlotPending {
		return ErrSlotAlreadySet
	}
	s.state = SlotAbsent
	s.reason = reason
	return nil
}

// Context carries one generation run: the request plus the outputs of each
// enrichment stage. Slots are write-once; later stages only read them.
type Context struct {
	runID     string
	createdAt time.Time
	request   models.CourseRequest

	mu        sync.RWMutex
	retrieval slot[*models.RetrievalResult]
	web       slot[*models.WebFindings]
}

// NewContext creates a run context with a fresh run id.
func NewContext(req models.CourseRequest) *Context {
	return &Context{
		runID:     uuid.New().String(),
		createdAt: time.Now(),
		request:   req,
	}
}

// RunID returns the generated run identifier.
func (c *Context) RunID() string { return c.runID }

// CreatedAt returns when the run started.
func (c *Context) CreatedAt() time.Time { return c.createdAt }

// Request returns a copy of the request.
func (c *Context) Request() models.CourseRequest { return c.request }

// ReferenceText returns the uploaded reference text, if any.
func (c *Context) ReferenceText() string { return c.request.ReferenceText }

// SetRetrieval fills the retrieval slot.
func (c *Context) SetRetrieval(r *models.RetrievalResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retrieval.fill(r)
}

// MarkRetrievalAbsent records that retrieval failed.
func (c *Context) MarkRetrievalAbsent(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retrieval.absent(reason)
}

// Retrieval returns the retrieval slot value and its state.
func (c *Context) Retrieval() (*models.RetrievalResult, SlotState) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retrieval.value, c.retrieval.state
}

// SetWebFindings fills the web findings slot.
func (c *Context) SetWebFindings(w *models.WebFindings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.web.fill(w)
}

// MarkWebFindingsAbsent records that web search failed.
func (c *Context) MarkWebFindingsAbsent(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.web.absent(reason)
}

// WebFindings returns the web findings slot value and its state.
func (c *Context) WebFindings() (*models.WebFindings, SlotState) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.web.value, c.web.state
}

// AbsentReasons lists why enrichment slots are missing, keyed by stage.
func (c *Context) AbsentReasons() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string)
	if c.retrieval.state == SlotAbsent {
		out["retrieval"] = c.retrieval.reason
	}
	if c.web.state == SlotAbsent {
		out["web_search"] = c.web.reason
	}
	return out
}
