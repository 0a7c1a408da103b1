package models

import "time"

// Audit actions.
const (
	AuditActionChatCompletion = "chat_completion"
	AuditActionKeyUpdated     = "api_key_updated"
	AuditActionKeyDeleted     = "api_key_deleted"
	AuditActionAgentSaved     = "agent_saved"
)

// AuditEntry is one append-only audit_logs row.
// Details must never contain credentials.
type AuditEntry struct {
	ID        int64          `json:"id"`
	CompanyID string         `json:"company_id"`
	UserID    string         `json:"user_id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}
