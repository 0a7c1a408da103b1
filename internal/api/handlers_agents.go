package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/org/chatgateway/internal/chat"
	"github.com/org/chatgateway/internal/entitlement"
	"github.com/org/chatgateway/internal/registry"
	"github.com/org/chatgateway/internal/storage"
	"github.com/org/chatgateway/pkg/models"
)

// companyAdmin is companyProfile restricted to roles that manage the company.
func (s *Server) companyAdmin(w http.ResponseWriter, r *http.Request) (*models.Profile, bool) {
	profile, ok := s.companyProfile(w, r)
	if !ok {
		return nil, false
	}
	if !entitlement.CanManageCompany(profile.Role) {
		writeError(w, http.StatusForbidden, "permission denied")
		return nil, false
	}
	return profile, true
}

// ListAgentsHandler handles GET /agents
func (s *Server) ListAgentsHandler(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.companyProfile(w, r)
	if !ok {
		return
	}
	agents, err := s.store.ListAgents(r.Context(), profile.CompanyID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if agents == nil {
		agents = []*models.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": agents})
}

// SaveAgentHandler handles PUT /agents
func (s *Server) SaveAgentHandler(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.companyAdmin(w, r)
	if !ok {
		return
	}

	var req struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Description  string `json:"description"`
		PromptSystem string `json:"prompt_system"`
		Model        string `json:"model"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || strings.TrimSpace(req.PromptSystem) == "" {
		writeError(w, http.StatusBadRequest, "name and prompt_system are required")
		return
	}
	if req.Model == "" {
		req.Model = chat.DefaultModel
	}
	if _, ok := registry.ProviderOf(req.Model); !ok {
		writeError(w, http.StatusBadRequest, chat.MsgInvalidModel)
		return
	}
	if !profile.IsMaster() {
		if res := s.checker.CheckModelAccess(r.Context(), profile.CompanyID, req.Model); !res.Allowed {
			writeError(w, http.StatusForbidden, res.Error)
			return
		}
	}

	if req.ID != "" {
		existing, err := s.store.GetAgent(r.Context(), req.ID)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && existing.CompanyID != profile.CompanyID) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		if err != nil {
			internalError(w, r, err)
			return
		}
	}

	agent := &models.Agent{
		ID:           req.ID,
		CompanyID:    profile.CompanyID,
		Name:         req.Name,
		Description:  req.Description,
		PromptSystem: req.PromptSystem,
		Model:        req.Model,
	}
	if err := s.store.UpsertAgent(r.Context(), agent); err != nil {
		internalError(w, r, err)
		return
	}

	s.auditor.Log(r.Context(), &models.AuditEntry{
		CompanyID: profile.CompanyID,
		UserID:    profile.ID,
		Action:    models.AuditActionAgentSaved,
		Details:   map[string]any{"agent_id": agent.ID, "model": agent.Model},
	})
	writeJSON(w, http.StatusOK, map[string]any{"data": agent})
}

// DeleteAgentHandler handles DELETE /agents/{id}
func (s *Server) DeleteAgentHandler(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.companyAdmin(w, r)
	if !ok {
		return
	}
	agent, err := s.store.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) || (err == nil && agent.CompanyID != profile.CompanyID) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	if err := s.store.DeleteAgent(r.Context(), agent.ID); err != nil {
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
