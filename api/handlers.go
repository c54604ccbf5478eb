package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentinelops/arbiter/engine"
	"github.com/sentinelops/arbiter/types"
)

func (s *Server) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	var req engine.CreateActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := s.service.CreateAction(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, action)
}

func (s *Server) handleCorrelate(w http.ResponseWriter, r *http.Request) {
	var req engine.CorrelateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := s.service.CorrelateAndCreateAction(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, action)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.ActionFilter{
		Status:     types.ActionStatus(q.Get("status")),
		Target:     q.Get("target"),
		ActionType: q.Get("action_type"),
		CreatedBy:  q.Get("created_by"),
	}

	actions, err := s.service.ListActions(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if actions == nil {
		actions = []types.Action{}
	}
	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	action, err := s.service.GetAction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleActionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.service.ActionHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// DecisionRequest carries a reviewer's approve/reject/release input
type DecisionRequest struct {
	Actor string `json:"actor"`
	Notes string `json:"notes,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return
	}

	action, err := s.service.ApproveAction(r.Context(), chi.URLParam(r, "id"), req.Actor, req.Notes)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return
	}

	action, err := s.service.RejectAction(r.Context(), chi.URLParam(r, "id"), req.Actor, req.Notes)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return
	}

	action, err := s.service.ReleaseAction(r.Context(), chi.URLParam(r, "id"), req.Actor, req.Notes)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	action, err := s.service.DispatchAction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// Effector failure is recorded on the action, not an HTTP error
	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid window duration")
			return
		}
		window = parsed
	}

	stats, err := s.service.GetStats(r.Context(), window)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// writeServiceError maps the engine's error taxonomy onto HTTP statuses
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrNoEvidence):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrStateConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.WithContext(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
