package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/chatgateway/internal/secret"
	"github.com/org/chatgateway/internal/storage"
	"github.com/org/chatgateway/pkg/models"
)

func keyErrorStatus(err error) int {
	switch {
	case errors.Is(err, secret.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, secret.ErrUnknownProvider), errors.Is(err, secret.ErrInvalidKeyFormat):
		return http.StatusBadRequest
	case errors.Is(err, secret.ErrNoCompany), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) writeKeyError(w http.ResponseWriter, r *http.Request, err error) {
	code := keyErrorStatus(err)
	if code == http.StatusInternalServerError {
		internalError(w, r, err)
		return
	}
	writeError(w, code, err.Error())
}

// KeyStatusHandler handles GET /settings/keys
func (s *Server) KeyStatusHandler(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.companyAdmin(w, r)
	if !ok {
		return
	}
	status, err := s.keys.Status(r.Context(), profile.CompanyID)
	if err != nil {
		s.writeKeyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": status})
}

// SetKeyHandler handles PUT /settings/keys/{provider}
func (s *Server) SetKeyHandler(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.callerProfile(w, r)
	if !ok {
		return
	}
	var req struct {
		Key string `json:"key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	provider := models.Provider(chi.URLParam(r, "provider"))
	status, err := s.keys.Set(r.Context(), profile, provider, req.Key)
	if err != nil {
		s.writeKeyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": status})
}

// DeleteKeyHandler handles DELETE /settings/keys/{provider}
func (s *Server) DeleteKeyHandler(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.callerProfile(w, r)
	if !ok {
		return
	}
	provider := models.Provider(chi.URLParam(r, "provider"))
	if err := s.keys.Delete(r.Context(), profile, provider); err != nil {
		s.writeKeyError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
