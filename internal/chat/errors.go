package chat

import (
	"errors"

	"github.com/org/chatgateway/internal/llm"
)

// ErrorKind is the gate or stage at which a chat request stopped.
type ErrorKind int

const (
	KindUnauthenticated ErrorKind = iota + 1
	KindTenantNotFound
	KindDemoQuotaExceeded
	KindEntitlementDenied
	KindModelResolution
	KindUpstream
	KindBadRequest
	KindNotFound
	KindForbidden
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindTenantNotFound:
		return "tenant_not_found"
	case KindDemoQuotaExceeded:
		return "demo_quota_exceeded"
	case KindEntitlementDenied:
		return "entitlement_denied"
	case KindModelResolution:
		return "model_resolution"
	case KindUpstream:
		return "upstream"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	}
	return "unknown"
}

// Error is a request-terminating failure. Message is safe to show to the user.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// KindOf returns the chat ErrorKind carried by err, or 0.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

// User-facing texts.
const (
	MsgUnauthorized     = "Não autorizado"
	MsgTenantNotFound   = "Empresa não encontrada"
	MsgSessionNotFound  = "Conversa não encontrada"
	MsgNoMessages       = "Messages must be an array"
	MsgInvalidModel     = "Modelo inválido"
	MsgDemoQuota        = "Limite da demonstração atingido. Por favor, crie sua própria conta/empresa para continuar."
	MsgQuotaExceeded    = "Cota da API OpenAI excedida. Verifique os créditos da sua chave API nas configurações."
	MsgModelUnavailable = "Modelo de IA não disponível para a chave configurada."
	MsgUnknownUpstream  = "Erro desconhecido ao processar IA"

	DefaultSystemPrompt = "Você é um assistente corporativo útil e seguro. Responda em Português."
)

// FriendlyError translates an upstream failure into the text shown and stored in the transcript.
func FriendlyError(err error) string {
	switch llm.KindOf(err) {
	case llm.KindQuotaExceeded:
		return MsgQuotaExceeded
	case llm.KindModelNotFound:
		return MsgModelUnavailable
	}
	return MsgUnknownUpstream
}

func errorTranscript(friendly string) string {
	return "🛑 **Erro:** " + friendly
}
