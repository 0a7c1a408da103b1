// Package chat runs one chat request from tenant resolution to the persisted
// transcript and audit record.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/org/chatgateway/internal/core"
	"github.com/org/chatgateway/internal/entitlement"
	"github.com/org/chatgateway/internal/llm"
	"github.com/org/chatgateway/internal/modelfactory"
	"github.com/org/chatgateway/internal/storage"
	"github.com/org/chatgateway/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	DemoCompanyName     = "Demo Enterprise"
	DemoMessageLimit    = 10
	DefaultModel        = "openai:gpt-4o-mini"
	DefaultSessionTitle = "Nova Conversa"

	defaultGenerationTimeout = 5 * time.Minute
	defaultWriteTimeout      = 30 * time.Second
)

// Store is the tenant and transcript access the orchestrator needs.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	GetCompany(ctx context.Context, companyID string) (*models.Company, error)
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	GetSessionAgent(ctx context.Context, sessionID string) (*models.SessionAgent, error)
	CountSessionMessages(ctx context.Context, sessionID string) (int, error)
	AppendMessage(ctx context.Context, m *models.ChatMessage) error
	RenameSession(ctx context.Context, id, title string) error
}

// ModelFactory builds provider clients.
type ModelFactory interface {
	CreateModel(opts modelfactory.Options) (*modelfactory.Model, error)
}

// Entitlements answers plan questions.
type Entitlements interface {
	CheckModelAccess(ctx context.Context, companyID, modelID string) entitlement.Result
}

// Auditor persists audit entries.
type Auditor interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// Request is one inbound chat turn. Messages is the full conversation as
// the client sees it; the last entry is the new user message.
type Request struct {
	UserID       string
	SessionID    string
	Model        string
	Messages     []llm.Message
	TemporaryKey string
}

// Service is the chat orchestrator.
type Service struct {
	store   Store
	factory ModelFactory
	checker Entitlements
	auditor Auditor
	tasks   *core.Tasks

	generationTimeout time.Duration
	writeTimeout      time.Duration
}

// NewService wires the orchestrator. Background persistence runs on tasks.
func NewService(store Store, factory ModelFactory, checker Entitlements, auditor Auditor, tasks *core.Tasks) *Service {
	return &Service{
		store:             store,
		factory:           factory,
		checker:           checker,
		auditor:           auditor,
		tasks:             tasks,
		generationTimeout: defaultGenerationTimeout,
		writeTimeout:      defaultWriteTimeout,
	}
}

// Wait blocks until background persistence and title tasks have finished.
func (s *Service) Wait(ctx context.Context) error {
	return s.tasks.Wait(ctx)
}

// Pending reports how many background tasks are still running.
func (s *Service) Pending() int {
	return s.tasks.Pending()
}

// tenant is the caller context resolved by the first gates.
type tenant struct {
	profile *models.Profile
	company *models.Company
}

func (s *Service) loadTenant(ctx context.Context, userID string) (*tenant, error) {
	if userID == "" {
		return nil, newError(KindUnauthenticated, MsgUnauthorized, nil)
	}
	profile, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(KindTenantNotFound, MsgTenantNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	if profile.CompanyID == "" {
		return nil, newError(KindTenantNotFound, MsgTenantNotFound, nil)
	}
	company, err := s.store.GetCompany(ctx, profile.CompanyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(KindTenantNotFound, MsgTenantNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("loading company: %w", err)
	}
	return &tenant{profile: profile, company: company}, nil
}

// ownedSession loads a session and hides sessions of other users.
func (s *Service) ownedSession(ctx context.Context, sessionID, userID string) (*models.ChatSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && session.UserID != userID) {
		return nil, newError(KindNotFound, MsgSessionNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return session, nil
}

// Begin runs every gate, resolves the model and opens the upstream stream.
// On success the caller relays Generation.Next and must call Finish.
func (s *Service) Begin(ctx context.Context, req Request) (*Generation, error) {
	messages := sanitize(req.Messages)
	if len(messages) == 0 {
		return nil, newError(KindBadRequest, MsgNoMessages, nil)
	}

	t, err := s.loadTenant(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("company_id", t.company.ID).Str("user_id", t.profile.ID).Logger()

	var session *models.ChatSession
	var stored int
	if req.SessionID != "" {
		if session, err = s.ownedSession(ctx, req.SessionID, t.profile.ID); err != nil {
			return nil, err
		}
		logger = logger.With().Str("session_id", session.ID).Logger()
		if stored, err = s.store.CountSessionMessages(ctx, session.ID); err != nil {
			logger.Warn().Err(err).Msg("counting session messages")
		}
	}

	// a refused demo turn leaves the transcript and audit log untouched
	if t.company.Name == DemoCompanyName && stored >= DemoMessageLimit {
		return nil, newError(KindDemoQuotaExceeded, MsgDemoQuota, nil)
	}

	// the agent override is applied first so the gate sees the model that will run
	system := DefaultSystemPrompt
	modelID := req.Model
	var agentID *string
	if session != nil {
		agent, err := s.store.GetSessionAgent(ctx, session.ID)
		if err != nil {
			logger.Warn().Err(err).Msg("loading session agent")
		}
		if agent != nil {
			agentID = &agent.AgentID
			if agent.PromptSystem != "" {
				system = agent.PromptSystem
			}
			if agent.Model != "" {
				modelID = agent.Model
			}
		}
	}
	if modelID == "" {
		return nil, newError(KindBadRequest, MsgInvalidModel, nil)
	}
	logger = logger.With().Str("model", modelID).Logger()

	if !t.profile.IsMaster() {
		if res := s.checker.CheckModelAccess(ctx, t.company.ID, modelID); !res.Allowed {
			s.appendTranscript(ctx, session, models.MessageRoleAssistant, "🔒 "+res.Error)
			logger.Info().Msg("model denied by plan")
			return nil, newError(KindEntitlementDenied, res.Error, nil)
		}
	}

	model, err := s.factory.CreateModel(modelfactory.Options{
		ModelID:      modelID,
		CompanyKeys:  t.company.Keys,
		IsPrivileged: t.profile.IsMaster(),
		TemporaryKey: req.TemporaryKey,
	})
	if err != nil {
		msg := modelErrorText(err)
		s.appendTranscript(ctx, session, models.MessageRoleAssistant, msg)
		logger.Warn().Err(err).Msg("model resolution failed")
		return nil, newError(KindModelResolution, msg, err)
	}
	credentialSourceTotal.WithLabelValues(string(model.Provider), string(model.Source)).Inc()
	logger = logger.With().
		Str("provider", string(model.Provider)).
		Str("credential_source", string(model.Source)).
		Logger()

	last := messages[len(messages)-1]
	if session != nil && last.Role == models.MessageRoleUser {
		if s.appendTranscript(ctx, session, models.MessageRoleUser, last.Content) && stored == 0 && untitled(session) {
			s.scheduleTitle(ctx, model.Client, session.ID, last.Content)
		}
	}

	rec := attempt{
		companyID: t.company.ID,
		userID:    t.profile.ID,
		sessionID: req.SessionID,
		agentID:   agentID,
		modelID:   modelID,
		provider:  model.Provider,
	}

	// the upstream call outlives the client connection so the reply can be stored
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.generationTimeout)
	stream, err := model.Generate(genCtx, llm.Request{System: system, Messages: messages}, true)
	if err != nil {
		cancel()
		friendly := FriendlyError(err)
		logger.Error().Err(err).Str("kind", llm.KindOf(err).String()).Msg("generation failed to start")
		generationsTotal.WithLabelValues(string(model.Provider), outcomeStartError).Inc()
		s.appendTranscript(ctx, session, models.MessageRoleAssistant, errorTranscript(friendly))
		if err := s.audit(ctx, rec, 0, err); err != nil {
			logger.Warn().Err(err).Msg("audit write failed")
		}
		return nil, newError(KindUpstream, friendly, err)
	}

	return &Generation{svc: s, stream: stream, cancel: cancel, rec: rec, logger: logger}, nil
}

// appendTranscript stores one message if there is a session. Failures are
// logged; it reports whether the message was stored.
func (s *Service) appendTranscript(ctx context.Context, session *models.ChatSession, role, content string) bool {
	if session == nil {
		return false
	}
	err := s.store.AppendMessage(ctx, &models.ChatMessage{SessionID: session.ID, Role: role, Content: content})
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Str("role", role).Msg("saving chat message")
		return false
	}
	return true
}

func (s *Service) audit(ctx context.Context, rec attempt, tokens int64, genErr error) error {
	details := map[string]any{
		"model":       rec.modelID,
		"session_id":  nil,
		"agent_id":    nil,
		"tokens_used": tokens,
	}
	if rec.sessionID != "" {
		details["session_id"] = rec.sessionID
	}
	if rec.agentID != nil {
		details["agent_id"] = *rec.agentID
	}
	if genErr != nil {
		details["error"] = llm.KindOf(genErr).String()
	}
	return s.auditor.Record(ctx, &models.AuditEntry{
		CompanyID: rec.companyID,
		UserID:    rec.userID,
		Action:    models.AuditActionChatCompletion,
		Details:   details,
	})
}

// modelErrorText is the transcript text for a factory failure.
func modelErrorText(err error) string {
	if errors.Is(err, modelfactory.ErrUnsupportedProvider) {
		return "⚠️ " + MsgInvalidModel
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️ " + msg
	}
	return msg
}

// sanitize keeps user and assistant turns with content.
func sanitize(in []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(in))
	for _, m := range in {
		if m.Role != models.MessageRoleUser && m.Role != models.MessageRoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func untitled(s *models.ChatSession) bool {
	return s.Title == "" || s.Title == DefaultSessionTitle
}
