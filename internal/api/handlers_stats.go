package api

import (
	"net/http"
)

func (s *Server) handleModelStats(w http.ResponseWriter, r *http.Request) {
	var models []map[string]any
	for _, m := range s.models {
		if m.Stats == nil {
			continue
		}
		models = append(models, map[string]any{
			"name":  m.Name,
			"model": m.Model,
			"stats": m.Stats.Snapshot(),
		})
	}
	if len(models) == 0 {
		jsonError(w, "model stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}
