package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/progress-engine/internal/auth"
	"github.com/terra-clan/progress-engine/internal/models"
	"github.com/terra-clan/progress-engine/internal/progress"
)

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFromContext(r.Context())
	agg, err := s.sessions.Acquire(r.Context(), userID)
	if err != nil {
		respondProgressError(w, err, "failed to load progress")
		return
	}

	summary := agg.Summary()
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		summary = agg.Refresh(r.Context())
	}

	respondJSON(w, http.StatusOK, models.SummaryResponse{
		Tools:   summary,
		Overall: summary.Overall(),
	})
}

func (s *Server) handleGetToolProgress(w http.ResponseWriter, r *http.Request) {
	toolID := chi.URLParam(r, "toolId")
	userID := auth.UserFromContext(r.Context())

	agg, err := s.sessions.Acquire(r.Context(), userID)
	if err != nil {
		respondProgressError(w, err, "failed to load progress")
		return
	}

	view, ok := agg.ToolView(toolID)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "tool not found")
		return
	}

	respondJSON(w, http.StatusOK, view.Response())
}

func (s *Server) handleMarkComplete(w http.ResponseWriter, r *http.Request) {
	completed := true

	var req models.SetCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Completed != nil {
		completed = *req.Completed
	}

	s.setCompletion(w, r, completed)
}

func (s *Server) handleMarkIncomplete(w http.ResponseWriter, r *http.Request) {
	s.setCompletion(w, r, false)
}

func (s *Server) setCompletion(w http.ResponseWriter, r *http.Request, completed bool) {
	toolID := chi.URLParam(r, "toolId")
	stepID := chi.URLParam(r, "stepId")
	userID := auth.UserFromContext(r.Context())

	if err := s.tracker.SetCompletion(r.Context(), userID, toolID, stepID, completed); err != nil {
		respondProgressError(w, err, "failed to update progress")
		return
	}

	respondJSON(w, http.StatusOK, models.SetCompletionResponse{
		ToolID:    toolID,
		StepID:    stepID,
		Completed: completed,
	})
}

// respondProgressError maps progress errors to envelope codes
func respondProgressError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, progress.ErrIdentityUnavailable):
		respondError(w, http.StatusUnauthorized, "unauthorized", "no signed-in user")
	case errors.Is(err, progress.ErrUnknownTool):
		respondError(w, http.StatusNotFound, "tool_not_found", "tool not found")
	case errors.Is(err, progress.ErrUnknownStep):
		respondError(w, http.StatusNotFound, "step_not_found", "step not found")
	default:
		slog.Error(message, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", message)
	}
}
