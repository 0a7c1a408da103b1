package models

import "time"

// Message roles as stored in chat_messages.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
	MessageRoleSystem    = "system"
)

// ChatSession is a conversation owned by one user of one company.
type ChatSession struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	UserID    string    `json:"user_id"`
	AgentID   *string   `json:"agent_id,omitempty"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is a single transcript entry.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Agent is a stored assistant configuration with its own prompt and model.
type Agent struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"company_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	PromptSystem string    `json:"prompt_system"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionAgent is the agent configuration bound to a session, if any.
type SessionAgent struct {
	AgentID      string
	PromptSystem string
	Model        string
}
