package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/org/chatgateway/pkg/models"
)

// MemoryBackend is an in-process StorageBackend used for development and tests.
// Nothing survives a restart.
type MemoryBackend struct {
	mu        sync.RWMutex
	profiles  map[string]*models.Profile
	companies map[string]*models.Company
	plans     map[string]*models.Plan
	sessions  map[string]*models.ChatSession
	messages  map[string][]*models.ChatMessage // session id → transcript
	agents    map[string]*models.Agent
	audit     []*models.AuditEntry
	auditSeq  int64
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		profiles:  map[string]*models.Profile{},
		companies: map[string]*models.Company{},
		plans:     map[string]*models.Plan{},
		sessions:  map[string]*models.ChatSession{},
		messages:  map[string][]*models.ChatMessage{},
		agents:    map[string]*models.Agent{},
	}
}

// PutPlan inserts or replaces a plan.
func (m *MemoryBackend) PutPlan(p *models.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	m.plans[p.ID] = &cp
}

// PutCompany inserts or replaces a company.
func (m *MemoryBackend) PutCompany(c *models.Company) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.companies[c.ID] = copyCompany(c)
}

// PutProfile inserts or replaces a profile.
func (m *MemoryBackend) PutProfile(p *models.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.ID] = &cp
}

func copyCompany(c *models.Company) *models.Company {
	cp := *c
	cp.Keys = models.CompanyKeySet{}
	for k, v := range c.Keys {
		cp.Keys[k] = v
	}
	return &cp
}

func (m *MemoryBackend) Close() {}

func (m *MemoryBackend) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryBackend) GetCompany(_ context.Context, companyID string) (*models.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.companies[companyID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCompany(c), nil
}

func (m *MemoryBackend) GetCompanyPlan(_ context.Context, companyID string) (*models.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.companies[companyID]
	if !ok || c.PlanID == nil {
		return nil, ErrNotFound
	}
	p, ok := m.plans[*c.PlanID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryBackend) CountCompanyMembers(_ context.Context, companyID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.profiles {
		if p.CompanyID == companyID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) SetCompanyKey(_ context.Context, companyID string, provider models.Provider, secret string) error {
	if _, ok := keyColumns[provider]; !ok {
		return fmt.Errorf("no key column for provider %q", provider)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[companyID]
	if !ok {
		return ErrNotFound
	}
	if secret == "" {
		delete(c.Keys, provider)
		return nil
	}
	c.Keys[provider] = secret
	return nil
}

func (m *MemoryBackend) SetCompanyBilling(_ context.Context, companyID, customerID, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[companyID]
	if !ok {
		return ErrNotFound
	}
	c.StripeCustomerID = customerID
	c.StripeSubscriptionID = subscriptionID
	return nil
}

func (m *MemoryBackend) GetPlanByPriceID(_ context.Context, priceID string) (*models.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.plans {
		if p.PriceIDStripe == priceID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryBackend) SetSubscriptionPlan(_ context.Context, subscriptionID string, planID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, c := range m.companies {
		if c.StripeSubscriptionID == subscriptionID {
			c.PlanID = planID
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (m *MemoryBackend) CreateSession(_ context.Context, s *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryBackend) GetSession(_ context.Context, id string) (*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryBackend) ListSessions(_ context.Context, userID string) ([]*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ChatSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryBackend) RenameSession(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Title = title
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryBackend) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryBackend) GetSessionAgent(_ context.Context, sessionID string) (*models.SessionAgent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.AgentID == nil {
		return nil, nil
	}
	sa := &models.SessionAgent{AgentID: *s.AgentID}
	if a, ok := m.agents[*s.AgentID]; ok {
		sa.PromptSystem = a.PromptSystem
		sa.Model = a.Model
	}
	return sa, nil
}

func (m *MemoryBackend) AppendMessage(_ context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[msg.SessionID]
	if !ok {
		return ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &cp)
	s.UpdatedAt = msg.CreatedAt
	return nil
}

func (m *MemoryBackend) ListMessages(_ context.Context, sessionID string) ([]*models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[sessionID]
	out := make([]*models.ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryBackend) CountSessionMessages(_ context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[sessionID]), nil
}

func (m *MemoryBackend) ListAgents(_ context.Context, companyID string) ([]*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Agent
	for _, a := range m.agents {
		if a.CompanyID == companyID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryBackend) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryBackend) UpsertAgent(_ context.Context, a *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if prev, ok := m.agents[a.ID]; ok {
		a.CreatedAt = prev.CreatedAt
	} else if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *MemoryBackend) DeleteAgent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return ErrNotFound
	}
	delete(m.agents, id)
	for _, s := range m.sessions {
		if s.AgentID != nil && *s.AgentID == id {
			s.AgentID = nil
		}
	}
	return nil
}

func (m *MemoryBackend) WriteAuditEntry(_ context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditSeq++
	entry.ID = m.auditSeq
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	cp := *entry
	m.audit = append(m.audit, &cp)
	return nil
}

func (m *MemoryBackend) QueryAuditLog(_ context.Context, filter AuditFilter) ([]*models.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.AuditEntry
	// newest first
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if filter.CompanyID != "" && e.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Since != nil && e.CreatedAt.Before(*filter.Since) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
