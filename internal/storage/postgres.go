package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/chatgateway/pkg/models"
)

// keyColumns maps providers to their companies column. Only these names are
// ever interpolated into SQL.
var keyColumns = map[models.Provider]string{
	models.ProviderOpenAI:    "api_key_openai",
	models.ProviderAnthropic: "api_key_anthropic",
	models.ProviderDeepSeek:  "api_key_deepseek",
}

// PostgresBackend is a StorageBackend backed by PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pgxpool connection and returns a ready backend.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) Close() {
	p.pool.Close()
}

// Ping checks database connectivity for health reporting.
func (p *PostgresBackend) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// --- Tenants ---

func (p *PostgresBackend) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var pr models.Profile
	var companyID *string
	err := p.pool.QueryRow(ctx,
		`SELECT id, company_id, role, COALESCE(full_name, '') FROM profiles WHERE id = $1`,
		userID,
	).Scan(&pr.ID, &companyID, &pr.Role, &pr.FullName)
	if err != nil {
		return nil, notFound(err)
	}
	if companyID != nil {
		pr.CompanyID = *companyID
	}
	return &pr, nil
}

func (p *PostgresBackend) GetCompany(ctx context.Context, companyID string) (*models.Company, error) {
	var c models.Company
	var customer, subscription, openai, anthropic, deepseek *string
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, plan_id, stripe_customer_id, stripe_subscription_id,
		        api_key_openai, api_key_anthropic, api_key_deepseek, created_at
		 FROM companies WHERE id = $1`,
		companyID,
	).Scan(&c.ID, &c.Name, &c.PlanID, &customer, &subscription, &openai, &anthropic, &deepseek, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	c.StripeCustomerID = deref(customer)
	c.StripeSubscriptionID = deref(subscription)
	c.Keys = models.CompanyKeySet{}
	for provider, secret := range map[models.Provider]*string{
		models.ProviderOpenAI:    openai,
		models.ProviderAnthropic: anthropic,
		models.ProviderDeepSeek:  deepseek,
	} {
		if s := deref(secret); s != "" {
			c.Keys[provider] = s
		}
	}
	return &c, nil
}

func (p *PostgresBackend) GetCompanyPlan(ctx context.Context, companyID string) (*models.Plan, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT pl.id, pl.name, COALESCE(pl.price_id_stripe, ''), pl.limits
		 FROM companies c JOIN plans pl ON pl.id = c.plan_id
		 WHERE c.id = $1`,
		companyID,
	)
	return scanPlan(row)
}

func scanPlan(row pgx.Row) (*models.Plan, error) {
	var pl models.Plan
	var limitsJSON []byte
	if err := row.Scan(&pl.ID, &pl.Name, &pl.PriceIDStripe, &limitsJSON); err != nil {
		return nil, notFound(err)
	}
	if len(limitsJSON) > 0 {
		if err := json.Unmarshal(limitsJSON, &pl.Limits); err != nil {
			return nil, fmt.Errorf("decoding plan limits: %w", err)
		}
	}
	return &pl, nil
}

func (p *PostgresBackend) CountCompanyMembers(ctx context.Context, companyID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM profiles WHERE company_id = $1`, companyID).Scan(&n)
	return n, err
}

func (p *PostgresBackend) SetCompanyKey(ctx context.Context, companyID string, provider models.Provider, secret string) error {
	col, ok := keyColumns[provider]
	if !ok {
		return fmt.Errorf("no key column for provider %q", provider)
	}
	var value *string
	if secret != "" {
		value = &secret
	}
	tag, err := p.pool.Exec(ctx, `UPDATE companies SET `+col+` = $1 WHERE id = $2`, value, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Billing ---

func (p *PostgresBackend) SetCompanyBilling(ctx context.Context, companyID, customerID, subscriptionID string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE companies SET stripe_customer_id = $1, stripe_subscription_id = $2 WHERE id = $3`,
		customerID, subscriptionID, companyID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) GetPlanByPriceID(ctx context.Context, priceID string) (*models.Plan, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(price_id_stripe, ''), limits FROM plans WHERE price_id_stripe = $1`,
		priceID,
	)
	return scanPlan(row)
}

func (p *PostgresBackend) SetSubscriptionPlan(ctx context.Context, subscriptionID string, planID *string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE companies SET plan_id = $1 WHERE stripe_subscription_id = $2`,
		planID, subscriptionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Sessions ---

func (p *PostgresBackend) CreateSession(ctx context.Context, s *models.ChatSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = s.CreatedAt
	_, err := p.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id, company_id, user_id, agent_id, title, model, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.CompanyID, s.UserID, s.AgentID, s.Title, s.Model, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

const sessionColumns = `id, company_id, user_id, agent_id, title, model, created_at, updated_at`

func scanSession(row pgx.Row) (*models.ChatSession, error) {
	var s models.ChatSession
	if err := row.Scan(&s.ID, &s.CompanyID, &s.UserID, &s.AgentID, &s.Title, &s.Model, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (p *PostgresBackend) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	return scanSession(p.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1`, id))
}

func (p *PostgresBackend) ListSessions(ctx context.Context, userID string) ([]*models.ChatSession, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE user_id = $1 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresBackend) RenameSession(ctx context.Context, id, title string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE chat_sessions SET title = $1, updated_at = NOW() WHERE id = $2`, title, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) DeleteSession(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) GetSessionAgent(ctx context.Context, sessionID string) (*models.SessionAgent, error) {
	var agentID, prompt, model *string
	err := p.pool.QueryRow(ctx,
		`SELECT s.agent_id, a.prompt_system, a.model
		 FROM chat_sessions s LEFT JOIN ai_agents a ON a.id = s.agent_id
		 WHERE s.id = $1`,
		sessionID,
	).Scan(&agentID, &prompt, &model)
	if err != nil {
		return nil, notFound(err)
	}
	if agentID == nil {
		return nil, nil
	}
	return &models.SessionAgent{AgentID: *agentID, PromptSystem: deref(prompt), Model: deref(model)}, nil
}

// --- Messages ---

func (p *PostgresBackend) AppendMessage(ctx context.Context, m *models.ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.SessionID, m.Role, m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE chat_sessions SET updated_at = $1 WHERE id = $2`, m.CreatedAt, m.SessionID); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *PostgresBackend) ListMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, session_id, role, content, created_at FROM chat_messages
		 WHERE session_id = $1 ORDER BY created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (p *PostgresBackend) CountSessionMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}

// --- Agents ---

const agentColumns = `id, company_id, name, COALESCE(description, ''), prompt_system, model, created_at`

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var a models.Agent
	if err := row.Scan(&a.ID, &a.CompanyID, &a.Name, &a.Description, &a.PromptSystem, &a.Model, &a.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (p *PostgresBackend) ListAgents(ctx context.Context, companyID string) ([]*models.Agent, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM ai_agents WHERE company_id = $1 ORDER BY name ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresBackend) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	return scanAgent(p.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM ai_agents WHERE id = $1`, id))
}

func (p *PostgresBackend) UpsertAgent(ctx context.Context, a *models.Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO ai_agents (id, company_id, name, description, prompt_system, model, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
		     prompt_system = EXCLUDED.prompt_system, model = EXCLUDED.model`,
		a.ID, a.CompanyID, a.Name, a.Description, a.PromptSystem, a.Model, a.CreatedAt,
	)
	return err
}

func (p *PostgresBackend) DeleteAgent(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM ai_agents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Audit ---

func (p *PostgresBackend) WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		detailsJSON = []byte("{}")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return p.pool.QueryRow(ctx,
		`INSERT INTO audit_logs (company_id, user_id, action, details, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		nullable(entry.CompanyID), nullable(entry.UserID), entry.Action, detailsJSON, entry.CreatedAt,
	).Scan(&entry.ID)
}

func (p *PostgresBackend) QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, COALESCE(company_id::text, ''), COALESCE(user_id::text, ''), action, details, created_at FROM audit_logs WHERE 1=1`)
	args := []any{}
	n := 1
	if filter.CompanyID != "" {
		fmt.Fprintf(&query, ` AND company_id = $%d`, n)
		args = append(args, filter.CompanyID)
		n++
	}
	if filter.Action != "" {
		fmt.Fprintf(&query, ` AND action = $%d`, n)
		args = append(args, filter.Action)
		n++
	}
	if filter.Since != nil {
		fmt.Fprintf(&query, ` AND created_at >= $%d`, n)
		args = append(args, *filter.Since)
		n++
	}
	query.WriteString(` ORDER BY created_at DESC`)
	if filter.Limit > 0 {
		fmt.Fprintf(&query, ` LIMIT $%d`, n)
		args = append(args, filter.Limit)
		n++
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&query, ` OFFSET $%d`, n)
		args = append(args, filter.Offset)
	}

	rows, err := p.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.UserID, &e.Action, &detailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal(detailsJSON, &e.Details) //nolint:errcheck
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
