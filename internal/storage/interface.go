package storage

import (
	"context"
	"errors"
	"time"

	"github.com/org/chatgateway/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// StorageBackend defines the persistence interface for the gateway.
type StorageBackend interface {
	// Tenants
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	GetCompany(ctx context.Context, companyID string) (*models.Company, error)
	GetCompanyPlan(ctx context.Context, companyID string) (*models.Plan, error)
	CountCompanyMembers(ctx context.Context, companyID string) (int, error)
	// SetCompanyKey stores an encrypted provider key; an empty secret removes it.
	SetCompanyKey(ctx context.Context, companyID string, provider models.Provider, secret string) error

	// Billing
	SetCompanyBilling(ctx context.Context, companyID, customerID, subscriptionID string) error
	GetPlanByPriceID(ctx context.Context, priceID string) (*models.Plan, error)
	SetSubscriptionPlan(ctx context.Context, subscriptionID string, planID *string) error

	// Sessions
	CreateSession(ctx context.Context, s *models.ChatSession) error
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userID string) ([]*models.ChatSession, error)
	RenameSession(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) error
	// GetSessionAgent returns nil without error when the session has no agent.
	GetSessionAgent(ctx context.Context, sessionID string) (*models.SessionAgent, error)

	// Messages
	AppendMessage(ctx context.Context, m *models.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error)
	CountSessionMessages(ctx context.Context, sessionID string) (int, error)

	// Agents
	ListAgents(ctx context.Context, companyID string) ([]*models.Agent, error)
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	UpsertAgent(ctx context.Context, a *models.Agent) error
	DeleteAgent(ctx context.Context, id string) error

	// Audit
	WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error)

	// Lifecycle
	Close()
}

// AuditFilter specifies query parameters for audit log retrieval.
// An empty CompanyID matches every company.
type AuditFilter struct {
	CompanyID string
	Action    string
	Since     *time.Time
	Limit     int
	Offset    int
}
