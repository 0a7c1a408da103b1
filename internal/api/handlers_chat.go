package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/org/chatgateway/internal/chat"
	"github.com/org/chatgateway/internal/llm"
	"github.com/rs/zerolog/log"
)

type chatRequest struct {
	Messages   []llm.Message `json:"messages"`
	Model      string        `json:"model"`
	SessionID  string        `json:"sessionId"`
	TempAPIKey string        `json:"tempApiKey"`
}

// chatStatus maps orchestrator failures to HTTP status codes.
func chatStatus(kind chat.ErrorKind) int {
	switch kind {
	case chat.KindUnauthenticated:
		return http.StatusUnauthorized
	case chat.KindTenantNotFound, chat.KindNotFound:
		return http.StatusNotFound
	case chat.KindDemoQuotaExceeded, chat.KindEntitlementDenied, chat.KindForbidden:
		return http.StatusForbidden
	case chat.KindModelResolution, chat.KindBadRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeChatError renders err with fail; unknown errors become a generic 500.
func writeChatError(w http.ResponseWriter, r *http.Request, err error, fail errorWriter) {
	var ce *chat.Error
	if errors.As(err, &ce) {
		fail(w, chatStatus(ce.Kind), ce.Message)
		return
	}
	log.Error().Err(err).Str("request_id", requestIDFromCtx(r.Context())).Msg("chat request failed")
	fail(w, http.StatusInternalServerError, chat.MsgUnknownUpstream)
}

// ChatHandler handles POST /chat and streams the reply as plain text.
func (s *Server) ChatHandler(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())
	if identity == nil {
		writeText(w, http.StatusUnauthorized, chat.MsgUnauthorized)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeText(w, http.StatusBadRequest, chat.MsgNoMessages)
		return
	}

	gen, err := s.chat.Begin(r.Context(), chat.Request{
		UserID:       identity.UserID,
		SessionID:    req.SessionID,
		Model:        req.Model,
		Messages:     req.Messages,
		TemporaryKey: req.TempAPIKey,
	})
	if err != nil {
		writeChatError(w, r, err, writeText)
		return
	}
	defer gen.Finish(r.Context())

	rc := http.NewResponseController(w)
	// streams may outlast the server write timeout
	rc.SetWriteDeadline(time.Time{}) //nolint:errcheck

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Chat-Model", gen.Model())
	w.WriteHeader(http.StatusOK)

	for {
		chunk, err := gen.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			// already reported in the transcript by the background persistence
			return
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
