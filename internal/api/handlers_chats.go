package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/org/chatgateway/internal/chat"
	"github.com/org/chatgateway/internal/llm"
	"github.com/org/chatgateway/internal/storage"
	"github.com/org/chatgateway/pkg/models"
)

// ownedSession loads the {id} session and checks the caller owns it.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) (*models.ChatSession, bool) {
	identity := identityFromCtx(r.Context())
	session, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) || (err == nil && session.UserID != identity.UserID) {
		writeError(w, http.StatusNotFound, chat.MsgSessionNotFound)
		return nil, false
	}
	if err != nil {
		internalError(w, r, err)
		return nil, false
	}
	return session, true
}

// ListChatsHandler handles GET /chats
func (s *Server) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())
	sessions, err := s.store.ListSessions(r.Context(), identity.UserID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*models.ChatSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": sessions})
}

// CreateChatHandler handles POST /chats
func (s *Server) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.companyProfile(w, r)
	if !ok {
		return
	}

	var req struct {
		Title   string  `json:"title"`
		Model   string  `json:"model"`
		AgentID *string `json:"agentId"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	session := &models.ChatSession{
		CompanyID: profile.CompanyID,
		UserID:    profile.ID,
		Title:     strings.TrimSpace(req.Title),
		Model:     req.Model,
	}
	if session.Title == "" {
		session.Title = chat.DefaultSessionTitle
	}
	if session.Model == "" {
		session.Model = chat.DefaultModel
	}
	if req.AgentID != nil && *req.AgentID != "" {
		agent, err := s.store.GetAgent(r.Context(), *req.AgentID)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && agent.CompanyID != profile.CompanyID) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		if err != nil {
			internalError(w, r, err)
			return
		}
		session.AgentID = &agent.ID
		if agent.Model != "" {
			session.Model = agent.Model
		}
	}

	if err := s.store.CreateSession(r.Context(), session); err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": session})
}

// GetChatHandler handles GET /chats/{id}
func (s *Server) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	messages, err := s.store.ListMessages(r.Context(), session.ID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"session":  session,
			"messages": messages,
		},
	})
}

// RenameChatHandler handles PATCH /chats/{id}
func (s *Server) RenameChatHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	title := strings.TrimSpace(req.Title)
	if err := s.store.RenameSession(r.Context(), session.ID, title); err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"title": title})
}

// DeleteChatHandler handles DELETE /chats/{id}
func (s *Server) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteSession(r.Context(), session.ID); err != nil {
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChatTitleHandler handles POST /chats/{id}/title
func (s *Server) ChatTitleHandler(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())
	var req struct {
		Messages []llm.Message `json:"messages"`
		Model    string        `json:"model"`
	}
	if err := decodeJSON(r, &req); err != nil || len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, chat.MsgNoMessages)
		return
	}

	title, err := s.chat.GenerateTitle(r.Context(), chat.TitleRequest{
		UserID:       identity.UserID,
		SessionID:    chi.URLParam(r, "id"),
		Model:        req.Model,
		FirstMessage: req.Messages[0].Content,
	})
	if err != nil {
		writeChatError(w, r, err, writeError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"title": title})
}
