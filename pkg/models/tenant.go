package models

import "time"

// Role is a profile role within a company.
type Role string

const (
	RoleMasterAdmin Role = "master_admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleEmployee    Role = "employee"
)

// Provider names an upstream LLM vendor.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderDeepSeek  Provider = "deepseek"
)

// KnownProviders lists every provider a company can store a key for, in display order.
var KnownProviders = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek}

// Profile is the tenant-side view of an authenticated user.
type Profile struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id,omitempty"`
	Role      Role   `json:"role"`
	FullName  string `json:"full_name"`
}

// IsMaster reports whether the profile carries the master admin role.
// Only that exact role bypasses plan entitlement.
func (p *Profile) IsMaster() bool {
	return p != nil && p.Role == RoleMasterAdmin
}

// CompanyKeySet maps provider to its stored encrypted secret. A missing entry means no key.
type CompanyKeySet map[Provider]string

// Company is a tenant.
type Company struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	PlanID               *string       `json:"plan_id,omitempty"`
	StripeCustomerID     string        `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string        `json:"stripe_subscription_id,omitempty"`
	Keys                 CompanyKeySet `json:"-"`
	CreatedAt            time.Time     `json:"created_at"`
}

// PlanLimits is the JSON limits document attached to a plan.
// Nil numeric fields mean the plan does not set them.
type PlanLimits struct {
	MaxUsers      *int     `json:"max_users,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	AllowedModels []string `json:"allowed_models,omitempty"`
}

// Plan is a billing plan.
type Plan struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	PriceIDStripe string     `json:"price_id_stripe,omitempty"`
	Limits        PlanLimits `json:"limits"`
}
