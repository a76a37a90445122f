package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/util"
)

// Fixed response texts
const (
	RejectedText       = "Query rejected for safety reasons."
	ClarificationText  = "Your question is ambiguous. Could you clarify: Are you asking about module structure, content, sources, or changes?"
	WhichModuleText    = "I need to know which module you're asking about. Which one?"
	WhichRefineText    = "Which module would you like me to refine?"
	WhichChangeText    = "Which module would you like to change?"
	PreviewNote        = "This is a preview. Changes are not applied to the course."
	supportedFormatsEN = "PDF, Markdown, JSON, YAML"
)

// ExportFormats lists the formats offered for export.
var ExportFormats = []string{"pdf", "markdown", "json", "yaml"}

// Engine routes questions to the explanation, provenance and refinement
// engines. It reads the session and appends to its log; the outline is
// never modified.
type Engine struct {
	classifier *Classifier
	guard      *SafetyGuard
	explainer  Explainer
	tracer     Tracer
	refiner    Refiner
	conflicts  ConflictDetector
	logger     *zap.Logger
}

func NewEngine(classifier *Classifier, guard *SafetyGuard, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = NewClassifier()
	}
	if guard == nil {
		g, err := NewSafetyGuard(context.Background(), logger)
		if err != nil {
			panic(fmt.Sprintf("built-in mutation policy: %v", err))
		}
		guard = g
	}
	return &Engine{classifier: classifier, guard: guard, logger: logger}
}

// Classifier returns the engine's classifier, for rule reloads.
func (e *Engine) Classifier() *Classifier { return e.classifier }

// Process answers one question.
func (e *Engine) Process(ctx context.Context, text string, qc *session.QueryContext) Response {
	m := newMachine()

	if !e.guard.CheckInjection(text) {
		e.logger.Warn("Potential injection attempt detected", zap.String("query", util.Prefix(text, 50)))
		return e.finish(m, StateRejected, Response{Status: StatusError, Response: RejectedText})
	}
	if missing := qc.MissingFields(); len(missing) > 0 {
		e.logger.Error("Query context incomplete", zap.Strings("missing", missing))
		return e.finish(m, StateRejected, Response{
			Status:   StatusError,
			Response: "Context incomplete: " + strings.Join(missing, ", "),
		})
	}

	c := e.classifier.Classify(text)
	m.to(StateClassified)
	e.logger.Info("Query classified",
		zap.String("intent", string(c.Intent)),
		zap.Float64("confidence", c.Confidence),
		zap.String("reasoning", c.Reasoning))
	m.to(StateRouted)

	resp := Response{Intent: c.Intent, Confidence: c.Confidence}
	switch c.Intent {
	case IntentExplanation, IntentValidation, IntentComparison:
		return e.explain(m, text, qc, resp)
	case IntentProvenance:
		return e.provenance(m, text, qc, resp)
	case IntentRefinementSoft:
		return e.softRefine(ctx, m, text, qc, resp)
	case IntentRefinementHard:
		return e.hardRefine(ctx, m, text, qc, resp)
	case IntentExport:
		resp.Status = StatusSuccess
		resp.Response = fmt.Sprintf("Export requested. Format: %s\n\nSupported formats: %s", text, supportedFormatsEN)
		resp.RequiresAction = true
		resp.ActionType = ActionExport
		resp.Data = map[string]interface{}{"formats": ExportFormats}
		qc.Log().AddQuery(text, resp.Response)
		return e.finish(m, StateResponded, resp)
	default:
		resp.Intent = IntentClarification
		resp.Status = StatusClarification
		resp.Response = ClarificationText
		return e.finish(m, StateResponded, resp)
	}
}

func (e *Engine) explain(m *machine, text string, qc *session.QueryContext, resp Response) Response {
	id, ok := ExtractModuleID(text)
	if !ok {
		resp.Status = StatusClarification
		resp.Response = WhichModuleText
		return e.finish(m, StateResponded, resp)
	}
	explanation, found := e.explainer.Explain(id, qc)
	resp.Status = StatusSuccess
	if !found {
		resp.Response = explanation
	} else {
		resp.Response = explanationHeading(resp.Intent) + "\n\n" + explanation
		resp.Data = map[string]string{"module_id": id}
	}
	qc.Log().AddQuery(text, resp.Response)
	return e.finish(m, StateResponded, resp)
}

func explanationHeading(i Intent) string {
	switch i {
	case IntentValidation:
		return "**How does this hold up?**"
	case IntentComparison:
		return "**What shapes this module?**"
	}
	return "**Why is this included?**"
}

func (e *Engine) provenance(m *machine, text string, qc *session.QueryContext, resp Response) Response {
	id, ok := ExtractModuleID(text)
	if !ok {
		resp.Status = StatusClarification
		resp.Response = WhichModuleText
		return e.finish(m, StateResponded, resp)
	}
	resp.Status = StatusSuccess
	trace, found := e.tracer.Trace(id, qc)
	if !found {
		resp.Response = notFound(id)
	} else {
		resp.Response = fmt.Sprintf("**Sources for %s**\n\n%s\n\n**Confidence:** %.0f%%",
			trace.Title, trace.Summary, trace.Confidence*100)
		resp.Data = trace
	}
	qc.Log().AddQuery(text, resp.Response)
	return e.finish(m, StateResponded, resp)
}

func (e *Engine) softRefine(ctx context.Context, m *machine, text string, qc *session.QueryContext, resp Response) Response {
	resp.ActionType = ActionSoftRefinement
	id, ok := ExtractModuleID(text)
	if !ok {
		resp.Status = StatusClarification
		resp.Response = WhichRefineText
		return e.finish(m, StateResponded, resp)
	}
	if allowed, reason := e.guard.CheckMutationSafety(ctx, text, OpSoftRefinement); !allowed {
		return e.reject(m, text, reason, qc, resp)
	}
	preview, found := e.refiner.SoftRefine(id, text, qc)
	if !found {
		resp.Status = StatusError
		resp.Response = preview
		return e.finish(m, StateResponded, resp)
	}
	resp.Status = StatusSuccess
	resp.Response = preview
	resp.Note = PreviewNote
	qc.Log().AddQuery(text, resp.Response)
	return e.finish(m, StateResponded, resp)
}

func (e *Engine) hardRefine(ctx context.Context, m *machine, text string, qc *session.QueryContext, resp Response) Response {
	resp.ActionType = ActionHardRefinement
	id, ok := ExtractModuleID(text)
	if !ok {
		resp.Status = StatusClarification
		resp.Response = WhichChangeText
		return e.finish(m, StateResponded, resp)
	}
	allowed, reason := e.guard.CheckMutationSafety(ctx, text, OpHardRefinement)
	if !allowed {
		return e.reject(m, text, reason, qc, resp)
	}
	proposal, found := e.refiner.PrepareHardRefinement(id, text, qc)
	if !found {
		resp.Status = StatusError
		resp.Response = notFound(id)
		return e.finish(m, StateResponded, resp)
	}

	req, _ := qc.Request()
	resp.RequiresAction = true
	resp.Data = proposal
	resp.Note = reason
	if conflict, question := e.conflicts.Detect(ParseProposedChange(text, req.DurationHours), req); conflict {
		e.logger.Info("Hard refinement conflicts with current request", zap.String("module_id", id))
		resp.Status = StatusClarification
		resp.Response = question
		return e.finish(m, StateAwaitingConfirmation, resp)
	}
	resp.Status = StatusSuccess
	resp.Response = proposal.ConfirmationMessage
	qc.Log().AddQuery(text, resp.Response)
	return e.finish(m, StateAwaitingConfirmation, resp)
}

func (e *Engine) reject(m *machine, text, reason string, qc *session.QueryContext, resp Response) Response {
	e.logger.Warn("Refinement rejected", zap.String("reason", reason))
	qc.Log().AddRejectedSuggestion(text, reason)
	resp.Status = StatusError
	resp.Response = reason
	resp.RequiresAction = false
	return e.finish(m, StateRejected, resp)
}

// Confirm records the caller's acceptance of a hard-refinement proposal.
// The outline is not changed; the caller re-submits the change through
// the generation pipeline.
func (e *Engine) Confirm(ctx context.Context, p Proposal, qc *session.QueryContext) Response {
	m := newMachine()
	m.to(StateClassified)
	m.to(StateRouted)
	resp := Response{Intent: IntentRefinementHard, ActionType: ActionHardRefinement}

	if missing := qc.MissingFields(); len(missing) > 0 {
		resp.Status = StatusError
		resp.Response = "Context incomplete: " + strings.Join(missing, ", ")
		return e.finish(m, StateRejected, resp)
	}
	if err := models.Validator().Struct(p); err != nil {
		resp.Status = StatusError
		resp.Response = fmt.Sprintf("Invalid proposal: %v", err)
		return e.finish(m, StateRejected, resp)
	}
	if allowed, reason := e.guard.CheckMutationSafety(ctx, p.Description, OpHardRefinement); !allowed {
		return e.reject(m, p.Description, reason, qc, resp)
	}
	mod, ok := qc.FindModule(p.TargetID)
	if !ok {
		resp.Status = StatusError
		resp.Response = notFound(p.TargetID)
		return e.finish(m, StateRejected, resp)
	}
	qc.Log().AddConfirmedRefinement(session.Refinement{
		ModuleID:    mod.ID,
		ChangeType:  p.ChangeType,
		Description: p.Description,
	})
	resp.Status = StatusSuccess
	resp.RequiresAction = true
	resp.Response = fmt.Sprintf("Confirmed. %s will be regenerated and validated: %s", mod.Title, p.Description)
	resp.Data = p
	return e.finish(m, StateResponded, resp)
}

// Reject records that the caller declined a suggestion.
func (e *Engine) Reject(suggestion, reason string, qc *session.QueryContext) {
	if qc == nil {
		return
	}
	qc.Log().AddRejectedSuggestion(suggestion, reason)
}

func (e *Engine) finish(m *machine, final State, resp Response) Response {
	if !m.to(final) {
		e.logger.Error("Invalid query state transition",
			zap.String("from", string(m.current())),
			zap.String("to", string(final)))
	}
	if resp.ActionType == "" {
		resp.ActionType = ActionNone
	}
	resp.State = m.current()
	resp.Transitions = append([]State(nil), m.trail...)
	metrics.RecordQueryMetrics(string(resp.Intent), resp.Status)
	return resp
}
