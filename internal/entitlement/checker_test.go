package entitlement

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/org/chatgateway/pkg/models"
)

// mockPlanStore is a minimal in-memory PlanGetter for testing.
type mockPlanStore struct {
	plans    map[string]*models.Plan
	members  map[string]int
	planErr  error
	countErr error
	calls    int
}

func newMockStore() *mockPlanStore {
	return &mockPlanStore{plans: map[string]*models.Plan{}, members: map[string]int{}}
}

func (m *mockPlanStore) GetCompanyPlan(_ context.Context, companyID string) (*models.Plan, error) {
	m.calls++
	if m.planErr != nil {
		return nil, m.planErr
	}
	return m.plans[companyID], nil
}

func (m *mockPlanStore) CountCompanyMembers(_ context.Context, companyID string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.members[companyID], nil
}

func intPtr(n int) *int { return &n }

func TestCheckModelAccessAllowed(t *testing.T) {
	store := newMockStore()
	store.plans["c1"] = &models.Plan{Limits: models.PlanLimits{AllowedModels: []string{"openai:gpt-4o-mini"}}}
	c := NewChecker(store)

	res := c.CheckModelAccess(context.Background(), "c1", "openai:gpt-4o-mini")
	if !res.Allowed || res.Error != "" {
		t.Errorf("expected allowed, got %+v", res)
	}
}

func TestCheckModelAccessDenied(t *testing.T) {
	store := newMockStore()
	store.plans["c1"] = &models.Plan{Limits: models.PlanLimits{AllowedModels: []string{"openai:gpt-4o-mini"}}}
	c := NewChecker(store)

	res := c.CheckModelAccess(context.Background(), "c1", "anthropic:opus")
	if res.Allowed {
		t.Fatal("expected denied")
	}
	if !strings.Contains(res.Error, `"anthropic:opus"`) {
		t.Errorf("expected model named in error, got %q", res.Error)
	}
}

func TestCheckModelAccessFailsClosed(t *testing.T) {
	cases := map[string]func(*mockPlanStore){
		"lookup error":  func(m *mockPlanStore) { m.planErr = errors.New("db down") },
		"no plan":       func(m *mockPlanStore) {},
		"empty company": nil,
	}
	for name, setup := range cases {
		store := newMockStore()
		companyID := "c1"
		if setup == nil {
			companyID = ""
		} else {
			setup(store)
		}
		res := NewChecker(store).CheckModelAccess(context.Background(), companyID, "openai:gpt-4o")
		if res.Allowed {
			t.Errorf("%s: expected fail closed", name)
		}
		if res.Error != msgPlanNotFound {
			t.Errorf("%s: error = %q", name, res.Error)
		}
	}
}

func TestCheckModelAccessEmptyAllowList(t *testing.T) {
	store := newMockStore()
	store.plans["c1"] = &models.Plan{}
	res := NewChecker(store).CheckModelAccess(context.Background(), "c1", "openai:gpt-4o")
	if res.Allowed {
		t.Error("a plan without allowed_models must not permit anything")
	}
}

func TestCheckUserLimit(t *testing.T) {
	cases := []struct {
		name    string
		max     *int
		members int
		allowed bool
	}{
		{"default five, four members", nil, 4, true},
		{"default five, five members", nil, 5, false},
		{"unlimited", intPtr(-1), 10000, true},
		{"explicit cap under", intPtr(20), 19, true},
		{"explicit cap reached", intPtr(20), 20, false},
		{"zero cap", intPtr(0), 0, false},
	}
	for _, tc := range cases {
		store := newMockStore()
		store.plans["c1"] = &models.Plan{Limits: models.PlanLimits{MaxUsers: tc.max}}
		store.members["c1"] = tc.members
		res := NewChecker(store).CheckUserLimit(context.Background(), "c1")
		if res.Allowed != tc.allowed {
			t.Errorf("%s: allowed = %v, want %v (%q)", tc.name, res.Allowed, tc.allowed, res.Error)
		}
	}
}

func TestCheckUserLimitMessage(t *testing.T) {
	store := newMockStore()
	store.plans["c1"] = &models.Plan{Limits: models.PlanLimits{MaxUsers: intPtr(3)}}
	store.members["c1"] = 3
	res := NewChecker(store).CheckUserLimit(context.Background(), "c1")
	if !strings.Contains(res.Error, "(3/3)") {
		t.Errorf("expected count in message, got %q", res.Error)
	}
}

func TestCheckUserLimitFailures(t *testing.T) {
	store := newMockStore()
	store.planErr = errors.New("boom")
	if res := NewChecker(store).CheckUserLimit(context.Background(), "c1"); res.Allowed || res.Error != msgPlanLookup {
		t.Errorf("plan error: got %+v", res)
	}

	store = newMockStore()
	store.plans["c1"] = &models.Plan{}
	store.countErr = errors.New("boom")
	if res := NewChecker(store).CheckUserLimit(context.Background(), "c1"); res.Allowed || res.Error != msgCountFailed {
		t.Errorf("count error: got %+v", res)
	}
}

func TestAllowedModels(t *testing.T) {
	store := newMockStore()
	store.plans["c1"] = &models.Plan{Limits: models.PlanLimits{AllowedModels: []string{"a:1", "b:2"}}}
	c := NewChecker(store)

	got := c.AllowedModels(context.Background(), "c1")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Errorf("AllowedModels = %v", got)
	}
	got[0] = "mutated"
	if store.plans["c1"].Limits.AllowedModels[0] != "a:1" {
		t.Error("AllowedModels must return a copy")
	}

	if got := c.AllowedModels(context.Background(), "missing"); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
	store.planErr = errors.New("down")
	if got := c.AllowedModels(context.Background(), "c1"); len(got) != 0 {
		t.Errorf("expected empty on error, got %v", got)
	}
}

func TestCanManageCompany(t *testing.T) {
	if !CanManageCompany(models.RoleTenantAdmin) || !CanManageCompany(models.RoleMasterAdmin) {
		t.Error("admins should manage")
	}
	if CanManageCompany(models.RoleEmployee) || CanManageCompany("admin") {
		t.Error("employees and unknown roles must not manage")
	}
}
