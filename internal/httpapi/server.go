// Package httpapi exposes course generation and follow-up queries over HTTP.
//
// Endpoints:
//
//	POST /v1/runs
//	GET  /v1/sessions/{id}
//	POST /v1/sessions/{id}/query
//	POST /v1/sessions/{id}/confirm
//	POST /v1/sessions/{id}/reject
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/models"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/orchestrator"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/query"
	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Runner generates an outline for a request.
type Runner interface {
	Execute(ctx context.Context, req models.CourseRequest) (*orchestrator.Result, error)
}

// Server holds the handlers and their dependencies.
type Server struct {
	runner   Runner
	engine   *query.Engine
	sessions *session.Store
	logger   *zap.Logger
}

func NewServer(runner Runner, engine *query.Engine, sessions *session.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{runner: runner, engine: engine, sessions: sessions, logger: logger}
}

// RegisterRoutes registers the API endpoints on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/runs", s.handleRun)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSession)
	mux.HandleFunc("POST /v1/sessions/{id}/query", s.handleQuery)
	mux.HandleFunc("POST /v1/sessions/{id}/confirm", s.handleConfirm)
	mux.HandleFunc("POST /v1/sessions/{id}/reject", s.handleReject)
}

type runResponse struct {
	SessionID           string            `json:"session_id"`
	RunID               string            `json:"run_id"`
	Outline             *models.Outline   `json:"outline"`
	RetrievalConfidence *float64          `json:"retrieval_confidence,omitempty"`
	WebConfidence       *float64          `json:"web_confidence,omitempty"`
	Absent              map[string]string `json:"absent,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req models.CourseRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.runner.Execute(r.Context(), req)
	if err != nil {
		var verr *orchestrator.ValidationError
		var serr *orchestrator.SynthesisError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid course request", "fields": verr.Fields})
		case errors.As(err, &serr):
			s.logger.Warn("Synthesis failed", zap.String("run_id", serr.RunID), zap.Error(serr.Err))
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": sanitizeErr(err.Error()), "run_id": serr.RunID})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "run timed out"})
		default:
			s.logger.Error("Run failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": sanitizeErr(err.Error())})
		}
		return
	}

	qc := session.FromRun(res.Session, res.Outline)
	id := s.sessions.Put(qc)
	resp := runResponse{SessionID: id, RunID: res.Session.RunID(), Outline: res.Outline, Absent: res.Session.AbsentReasons()}
	if rr, st := res.Session.Retrieval(); st == session.SlotFilled && rr != nil {
		c := rr.Confidence
		resp.RetrievalConfidence = &c
	}
	if wf, st := res.Session.WebFindings(); st == session.SlotFilled && wf != nil {
		c := wf.Confidence
		resp.WebConfidence = &c
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	qc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	log := qc.Log()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":            qc.ID(),
		"outline":               qc.Outline(),
		"module_count":          qc.ModuleCount(),
		"history":               log.History(),
		"confirmed_refinements": log.ConfirmedRefinements(),
		"rejected_suggestions":  log.RejectedSuggestions(),
	})
}

type queryRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	qc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Question == "" {
		http.Error(w, `{"error":"question is required"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Process(r.Context(), req.Question, qc))
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	qc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var p query.Proposal
	if !decode(w, r, &p) {
		return
	}
	resp := s.engine.Confirm(r.Context(), p, qc)
	status := http.StatusOK
	if resp.Status == query.StatusError {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

type rejectRequest struct {
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	qc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Suggestion == "" {
		http.Error(w, `{"error":"suggestion is required"}`, http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "Declined by user."
	}
	s.engine.Reject(req.Suggestion, req.Reason, qc)
	writeJSON(w, http.StatusOK, map[string]int{"rejected_suggestions": len(qc.Log().RejectedSuggestions())})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.QueryContext, bool) {
	qc, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return nil, false
	}
	return qc, true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sanitizeErr trims error messages for safe client output (UTF-8 safe).
func sanitizeErr(s string) string {
	runes := []rune(s)
	if len(runes) > 200 {
		return string(runes[:200])
	}
	return s
}
