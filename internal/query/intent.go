// Package query answers follow-up questions about a generated outline.
// It explains, traces and previews; it never changes the outline.
package query

// Intent is the routed category of a question.
type Intent string

const (
	IntentExplanation    Intent = "explanation"
	IntentProvenance     Intent = "provenance"
	IntentComparison     Intent = "comparison"
	IntentRefinementSoft Intent = "refinement_soft"
	IntentRefinementHard Intent = "refinement_hard"
	IntentValidation     Intent = "validation"
	IntentExport         Intent = "export"
	IntentClarification  Intent = "clarification"
)

func (i Intent) valid() bool {
	switch i {
	case IntentExplanation, IntentProvenance, IntentComparison, IntentRefinementSoft,
		IntentRefinementHard, IntentValidation, IntentExport, IntentClarification:
		return true
	}
	return false
}

// Status values
const (
	StatusSuccess       = "success"
	StatusClarification = "clarification"
	StatusError         = "error"
)

// Action types
const (
	ActionNone           = "none"
	ActionSoftRefinement = "soft_refinement"
	ActionHardRefinement = "hard_refinement"
	ActionExport         = "export"
)

// State is a step of the per-call query state machine.
type State string

const (
	StateIdle                 State = "idle"
	StateClassified           State = "classified"
	StateRouted               State = "routed"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateResponded            State = "responded"
	StateRejected             State = "rejected"
)

var transitions = map[State][]State{
	StateIdle:       {StateClassified, StateRejected},
	StateClassified: {StateRouted},
	StateRouted:     {StateAwaitingConfirmation, StateResponded, StateRejected},
}

// machine records the states a single call passes through.
type machine struct {
	trail []State
}

func newMachine() *machine {
	return &machine{trail: []State{StateIdle}}
}

func (m *machine) current() State { return m.trail[len(m.trail)-1] }

// to moves to next; invalid moves are ignored and reported as false.
func (m *machine) to(next State) bool {
	for _, s := range transitions[m.current()] {
		if s == next {
			m.trail = append(m.trail, next)
			return true
		}
	}
	return false
}

// Response is what Process returns to the caller.
type Response struct {
	Status         string      `json:"status"`
	Intent         Intent      `json:"intent,omitempty"`
	Confidence     float64     `json:"confidence,omitempty"`
	Response       string      `json:"response"`
	RequiresAction bool        `json:"requires_action"`
	ActionType     string      `json:"action_type"`
	Data           interface{} `json:"data,omitempty"`
	Note           string      `json:"note,omitempty"`
	State          State       `json:"state"`
	Transitions    []State     `json:"transitions,omitempty"`
}
