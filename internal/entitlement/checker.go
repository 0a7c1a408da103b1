// Package entitlement decides what a company's plan permits.
package entitlement

import (
	"context"
	"fmt"
	"slices"

	"github.com/org/chatgateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultMaxUsers applies when a plan's limits omit max_users.
const DefaultMaxUsers = 5

// Unlimited is the sentinel for an uncapped numeric limit.
const Unlimited = -1

// PlanGetter is the minimal interface the Checker needs from storage.
type PlanGetter interface {
	GetCompanyPlan(ctx context.Context, companyID string) (*models.Plan, error)
	CountCompanyMembers(ctx context.Context, companyID string) (int, error)
}

// Result is the outcome of a check. Error is user-facing and set only when Allowed is false.
type Result struct {
	Allowed bool   `json:"allowed"`
	Error   string `json:"error,omitempty"`
}

const (
	msgPlanNotFound   = "Plano não encontrado ou empresa inválida."
	msgPlanLookup     = "Erro crítico ao verificar plano da empresa. Contate o suporte."
	msgCountFailed    = "Erro ao validar quantidade de usuários."
	fmtModelDenied    = "Seu plano atual não permite o uso do modelo %q. Atualize seu plano para ter acesso a modelos avançados."
	fmtUserLimitReach = "Limite de usuários atingido (%d/%d). Faça upgrade do plano para adicionar mais membros."
)

// Checker evaluates plan limits. Master admins must be filtered out by the
// caller before model checks; the Checker has no notion of role bypass.
type Checker struct {
	store PlanGetter
}

// NewChecker creates a Checker backed by the given storage.
func NewChecker(store PlanGetter) *Checker {
	return &Checker{store: store}
}

func (c *Checker) plan(ctx context.Context, companyID string) (*models.Plan, error) {
	if companyID == "" {
		return nil, fmt.Errorf("empty company id")
	}
	plan, err := c.store.GetCompanyPlan(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("company %s has no plan", companyID)
	}
	return plan, nil
}

// CheckModelAccess reports whether the company's plan lists modelID.
// Any failure to resolve the plan denies access.
func (c *Checker) CheckModelAccess(ctx context.Context, companyID, modelID string) Result {
	plan, err := c.plan(ctx, companyID)
	if err != nil {
		log.Warn().Err(err).Str("company_id", companyID).Msg("plan lookup failed, denying model access")
		return Result{Error: msgPlanNotFound}
	}
	if !slices.Contains(plan.Limits.AllowedModels, modelID) {
		return Result{Error: fmt.Sprintf(fmtModelDenied, modelID)}
	}
	return Result{Allowed: true}
}

// CheckUserLimit reports whether the company can take another member.
func (c *Checker) CheckUserLimit(ctx context.Context, companyID string) Result {
	plan, err := c.plan(ctx, companyID)
	if err != nil {
		log.Error().Err(err).Str("company_id", companyID).Msg("plan lookup failed")
		return Result{Error: msgPlanLookup}
	}

	maxUsers := DefaultMaxUsers
	if plan.Limits.MaxUsers != nil {
		maxUsers = *plan.Limits.MaxUsers
	}
	if maxUsers == Unlimited {
		return Result{Allowed: true}
	}

	count, err := c.store.CountCompanyMembers(ctx, companyID)
	if err != nil {
		log.Error().Err(err).Str("company_id", companyID).Msg("member count failed")
		return Result{Error: msgCountFailed}
	}
	if count >= maxUsers {
		return Result{Error: fmt.Sprintf(fmtUserLimitReach, count, maxUsers)}
	}
	return Result{Allowed: true}
}

// AllowedModels returns the plan's model list, or an empty list when the plan
// cannot be resolved. An empty list here never means "all models".
func (c *Checker) AllowedModels(ctx context.Context, companyID string) []string {
	plan, err := c.plan(ctx, companyID)
	if err != nil {
		log.Warn().Err(err).Str("company_id", companyID).Msg("plan lookup failed for allowed models")
		return []string{}
	}
	if plan.Limits.AllowedModels == nil {
		return []string{}
	}
	return slices.Clone(plan.Limits.AllowedModels)
}

// CanManageCompany reports whether role may change company settings and agents.
func CanManageCompany(role models.Role) bool {
	return role == models.RoleTenantAdmin || role == models.RoleMasterAdmin
}
