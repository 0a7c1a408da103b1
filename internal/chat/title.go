package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/org/chatgateway/internal/llm"
	"github.com/org/chatgateway/internal/modelfactory"
	"github.com/org/chatgateway/internal/storage"
	"github.com/rs/zerolog/log"
)

const (
	titleSystemPrompt = "Você é um assistente especialista em resumir conversas. Gere um título curto (máximo 5 palavras), conciso e descritivo para esta conversa baseado na primeira mensagem do usuário. NÃO use aspas. Retorne APENAS o título."
	titleMaxTokens    = 32
	titleMaxRunes     = 80
)

// TitleRequest asks for a session title built from its first user message.
type TitleRequest struct {
	UserID       string
	SessionID    string
	Model        string
	FirstMessage string
}

// GenerateTitle names a session with the requested model (DefaultModel if empty)
// and stores the title.
func (s *Service) GenerateTitle(ctx context.Context, req TitleRequest) (string, error) {
	if strings.TrimSpace(req.FirstMessage) == "" {
		return "", newError(KindBadRequest, MsgNoMessages, nil)
	}
	if req.UserID == "" {
		return "", newError(KindUnauthenticated, MsgUnauthorized, nil)
	}
	profile, err := s.store.GetProfile(ctx, req.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", newError(KindTenantNotFound, MsgTenantNotFound, err)
	}
	if err != nil {
		return "", err
	}
	session, err := s.ownedSession(ctx, req.SessionID, profile.ID)
	if err != nil {
		return "", err
	}

	opts := modelfactory.Options{ModelID: req.Model, IsPrivileged: profile.IsMaster()}
	if opts.ModelID == "" {
		opts.ModelID = DefaultModel
	}
	if profile.CompanyID != "" {
		if company, err := s.store.GetCompany(ctx, profile.CompanyID); err == nil {
			opts.CompanyKeys = company.Keys
		}
	}
	model, err := s.factory.CreateModel(opts)
	if err != nil {
		return "", newError(KindModelResolution, modelErrorText(err), err)
	}

	title, err := s.title(ctx, model.Client, req.FirstMessage)
	if err != nil {
		return "", err
	}
	if err := s.store.RenameSession(ctx, session.ID, title); err != nil {
		return "", err
	}
	return title, nil
}

// scheduleTitle names a new session in the background. Errors are only logged.
func (s *Service) scheduleTitle(ctx context.Context, client *llm.Client, sessionID, firstMessage string) {
	s.tasks.Go(ctx, "chat.title", func(ctx context.Context) {
		title, err := s.title(ctx, client, firstMessage)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("title generation failed")
			return
		}
		if err := s.store.RenameSession(ctx, sessionID, title); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("saving generated title")
		}
	})
}

func (s *Service) title(ctx context.Context, client *llm.Client, firstMessage string) (string, error) {
	text, _, err := client.Complete(ctx, llm.Request{
		System:    titleSystemPrompt,
		Messages:  []llm.Message{{Role: "user", Content: "Primeira mensagem do usuário: " + firstMessage}},
		MaxTokens: titleMaxTokens,
	})
	if err != nil {
		return "", newError(KindUpstream, FriendlyError(err), err)
	}
	title := cleanTitle(text)
	if title == "" {
		return "", newError(KindUpstream, MsgUnknownUpstream, errors.New("empty title"))
	}
	return title, nil
}

// cleanTitle keeps the first line, trims it and strips one pair of surrounding quotes.
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	title = strings.TrimPrefix(title, `"`)
	title = strings.TrimPrefix(title, "'")
	title = strings.TrimSuffix(title, `"`)
	title = strings.TrimSuffix(title, "'")
	title = strings.TrimSpace(title)
	if r := []rune(title); len(r) > titleMaxRunes {
		title = strings.TrimSpace(string(r[:titleMaxRunes]))
	}
	return title
}
