package api

import "net/http"

// ModelsHandler handles GET /models
func (s *Server) ModelsHandler(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.callerProfile(w, r)
	if !ok {
		return
	}

	// master admins are not bound to a plan; an empty list means everything
	allowed := []string{}
	if !profile.IsMaster() && profile.CompanyID != "" {
		allowed = s.checker.AllowedModels(r.Context(), profile.CompanyID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"models":        s.registry.Selectable(),
		"allowedModels": allowed,
		"isMaster":      profile.IsMaster(),
	})
}
