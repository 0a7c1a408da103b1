package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrorKind classifies upstream failures for user-facing translation.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindQuotaExceeded
	KindModelNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindModelNotFound:
		return "model_not_found"
	}
	return "other"
}

// ProviderError is an error reported by the upstream API, either as a
// non-200 response or as an error event inside a stream (StatusCode 0).
type ProviderError struct {
	StatusCode int

	// Type is the provider error type, e.g. "invalid_request_error".
	Type string

	// Code is the OpenAI-style machine code, e.g. "insufficient_quota".
	Code string

	Message string
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("provider error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Code != "" {
		b.WriteString(" " + e.Code)
	} else if e.Type != "" {
		b.WriteString(" " + e.Type)
	}
	b.WriteString(": " + e.Message)
	return b.String()
}

// Kind maps the structured type/code fields onto an ErrorKind.
func (e *ProviderError) Kind() ErrorKind {
	switch {
	case e.Code == "insufficient_quota", e.Type == "insufficient_quota":
		return KindQuotaExceeded
	case e.Code == "model_not_found", e.Type == "model_not_found":
		return KindModelNotFound
	case e.Type == "not_found_error" && strings.HasPrefix(e.Message, "model:"):
		// anthropic reports unknown models as a generic not_found_error
		return KindModelNotFound
	case e.StatusCode == http.StatusNotFound && strings.Contains(e.Message, "does not exist"):
		return KindModelNotFound
	}
	return KindOther
}

// IsRateLimited reports whether the upstream rejected the call for rate reasons.
func (e *ProviderError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests && e.Kind() != KindQuotaExceeded
}

// KindOf returns the ErrorKind of err, or KindOther if err is not a ProviderError.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind()
	}
	return KindOther
}

// wireError is the {"type","code","message"} object both APIs nest under "error".
type wireError struct {
	Type    string `json:"type"`
	Code    any    `json:"code"`
	Message string `json:"message"`
}

func (w *wireError) toProviderError(status int) *ProviderError {
	pe := &ProviderError{StatusCode: status, Type: w.Type, Message: w.Message}
	switch c := w.Code.(type) {
	case string:
		pe.Code = c
	case nil:
	default:
		pe.Code = fmt.Sprint(c)
	}
	return pe
}

func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var envelope struct {
		Error *wireError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.toProviderError(httpResponse.StatusCode)
	}
	return &ProviderError{
		StatusCode: httpResponse.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}
