package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/progress-engine/internal/models"
)

// Catalog handlers

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	paths := s.catalog.Tools()
	tools := make([]models.ToolInfo, 0, len(paths))
	for _, p := range paths {
		tools = append(tools, p.Info())
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tools": tools,
		"total": len(tools),
	})
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	toolID := chi.URLParam(r, "toolId")
	tool := s.catalog.Get(toolID)
	if tool == nil {
		respondError(w, http.StatusNotFound, "not_found", "tool not found")
		return
	}
	respondJSON(w, http.StatusOK, tool)
}
