package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rubricguard/rubricguard/analytics"
	"github.com/rubricguard/rubricguard/catalog"
	"github.com/rubricguard/rubricguard/dispatch"
	"github.com/rubricguard/rubricguard/session"
	"github.com/rubricguard/rubricguard/workspace"
)

// GET /assignments
func (s *Server) listAssignments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.source.Current().Assignments())
}

type startSessionReq struct {
	AssignmentID string `json:"assignment_id"`
}

type sessionResp struct {
	SessionID  string                    `json:"sessionId"`
	Assignment catalog.Assignment        `json:"assignment"`
	Position   int                       `json:"position"`
	Total      int                       `json:"total"`
	Submission catalog.Submission        `json:"submission"`
	Criteria   []catalog.Criterion       `json:"criteria"`
	Graded     session.GradedSubmission  `json:"graded"`
	Phases     map[string]dispatch.Phase `json:"phases"`
	Complete   bool                      `json:"complete"`
}

// POST /session
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AssignmentID) == "" {
		http.Error(w, "assignment_id required", http.StatusBadRequest)
		return
	}

	ws, err := workspace.New(s.source.Current(), s.judge, req.AssignmentID, s.wsConfig)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	s.mu.Lock()
	old := s.ws
	s.ws = ws
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}

	s.writeSession(w, ws)
}

// DELETE /session
func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	old := s.ws
	s.ws = nil
	s.mu.Unlock()

	if old == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	old.Close()
	w.WriteHeader(http.StatusNoContent)
}

// GET /session
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	ws := s.active()
	if ws == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	s.writeSession(w, ws)
}

type updateCriterionReq struct {
	Score       string `json:"score"`
	Explanation string `json:"explanation"`
}

type updateCriterionResp struct {
	Alert *analytics.Alert `json:"alert"`
}

// PATCH /session/criteria/{criterionID}
func (s *Server) updateCriterion(w http.ResponseWriter, r *http.Request) {
	ws := s.active()
	if ws == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	criterionID := strings.TrimSpace(chi.URLParam(r, "criterionID"))
	if criterionID == "" {
		http.Error(w, "criterionID required", http.StatusBadRequest)
		return
	}
	var req updateCriterionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}

	alert, err := ws.UpdateCriterion(criterionID, req.Score, req.Explanation)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, updateCriterionResp{Alert: alert})
}

type highlightReq struct {
	Excerpt string `json:"excerpt"`
}

// POST /session/criteria/{criterionID}/highlight
func (s *Server) attachHighlight(w http.ResponseWriter, r *http.Request) {
	ws := s.active()
	if ws == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	criterionID := strings.TrimSpace(chi.URLParam(r, "criterionID"))
	var req highlightReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := ws.AttachHighlight(criterionID, req.Excerpt); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /session/next
func (s *Server) nextSubmission(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, func(ws *workspace.Workspace) error { return ws.Next() })
}

// POST /session/previous
func (s *Server) previousSubmission(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, func(ws *workspace.Workspace) error { return ws.Previous() })
}

func (s *Server) navigate(w http.ResponseWriter, move func(*workspace.Workspace) error) {
	ws := s.active()
	if ws == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	if err := move(ws); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	s.writeSession(w, ws)
}

// GET /session/analytics
func (s *Server) getAnalytics(w http.ResponseWriter, r *http.Request) {
	ws := s.active()
	if ws == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	writeJSON(w, ws.LiveSummary())
}

type finalizeResp struct {
	GradedSubmissions []session.GradedSubmission `json:"gradedSubmissions"`
	Summary           *analytics.Summary         `json:"summary"`
}

// POST /session/finalize
func (s *Server) finalizeSession(w http.ResponseWriter, r *http.Request) {
	ws := s.active()
	if ws == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}

	graded, summary, err := ws.Finalize()
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, finalizeResp{GradedSubmissions: graded, Summary: summary})
}

// writeSession renders the current grading position for the UI.
func (s *Server) writeSession(w http.ResponseWriter, ws *workspace.Workspace) {
	sub, pos, total := ws.Current()
	graded, _ := ws.Store().Get(sub.ID)

	writeJSON(w, sessionResp{
		SessionID:  ws.ID(),
		Assignment: ws.Assignment(),
		Position:   pos,
		Total:      total,
		Submission: sub,
		Criteria:   ws.Criteria(),
		Graded:     graded,
		Phases:     ws.Phases(),
		Complete:   ws.Store().CompletionStatus(sub.ID),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
