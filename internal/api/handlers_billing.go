package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/org/chatgateway/internal/billing"
	"github.com/rs/zerolog/log"
)

// StripeWebhookHandler handles POST /webhooks/stripe
func (s *Server) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if s.webhook == nil {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, billing.MaxWebhookPayload))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	event, err := s.webhook.Handle(r.Context(), payload, r.Header.Get(billing.SignatureHeader))
	if errors.Is(err, billing.ErrInvalidSignature) {
		log.Warn().Err(err).Str("request_id", requestIDFromCtx(r.Context())).Msg("rejected stripe webhook")
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("stripe webhook failed")
		writeError(w, http.StatusInternalServerError, "webhook handler failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
