package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/org/chatgateway/internal/storage"
	"github.com/org/chatgateway/pkg/models"
	"github.com/rs/zerolog/log"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody)).Decode(dst)
}

// callerProfile loads the profile of the authenticated caller, writing the
// error response itself when it cannot.
func (s *Server) callerProfile(w http.ResponseWriter, r *http.Request) (*models.Profile, bool) {
	identity := identityFromCtx(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Não autorizado")
		return nil, false
	}
	profile, err := s.store.GetProfile(r.Context(), identity.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Perfil não encontrado")
		return nil, false
	}
	if err != nil {
		internalError(w, r, err)
		return nil, false
	}
	return profile, true
}

// companyProfile is callerProfile for routes that need a company.
func (s *Server) companyProfile(w http.ResponseWriter, r *http.Request) (*models.Profile, bool) {
	profile, ok := s.callerProfile(w, r)
	if !ok {
		return nil, false
	}
	if profile.CompanyID == "" {
		writeError(w, http.StatusNotFound, "Empresa não encontrada")
		return nil, false
	}
	return profile, true
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).Str("request_id", requestIDFromCtx(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
