// Package policy implements the two gates every non-discovery media-buy
// operation must pass: brief-compliance review and the tenant setup
// checklist.
package policy

import (
	"context"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/store"
)

// Outcome is the brief-compliance verdict.
type Outcome string

const (
	OutcomeApproved   Outcome = "APPROVED"
	OutcomeRestricted Outcome = "RESTRICTED"
	OutcomeBlocked    Outcome = "BLOCKED"
)

// BriefCheckRequest bundles what a PolicyCheckService needs to render a verdict.
type BriefCheckRequest struct {
	Brief            string
	PromotedOffering string
	BrandManifest    map[string]string
	TenantPolicies   map[string]string
}

// PolicyCheckService reviews a brief against tenant and platform policy.
// Production deployments wire this to an external moderation service; tests
// and the mock adapter path use StaticPolicyCheckService.
type PolicyCheckService interface {
	Check(ctx context.Context, req BriefCheckRequest) (Outcome, string, error)
}

// StaticPolicyCheckService always returns a fixed outcome; used by the mock
// adapter path and in tests that don't exercise policy branching.
type StaticPolicyCheckService struct {
	Outcome Outcome
	Reason  string
}

func (s StaticPolicyCheckService) Check(ctx context.Context, req BriefCheckRequest) (Outcome, string, error) {
	return s.Outcome, s.Reason, nil
}

// CheckBrief runs the brief-compliance gate. A BLOCKED verdict
// fails the operation outright. A RESTRICTED verdict under
// require_manual_review policy reports that a policy_review workflow step
// is needed; the caller is responsible for creating it and returning an
// empty product list.
func CheckBrief(ctx context.Context, svc PolicyCheckService, req BriefCheckRequest, tenant adcp.Tenant) (needsReview bool, err *adcperr.Error) {
	outcome, reason, checkErr := svc.Check(ctx, req)
	if checkErr != nil {
		return false, adcperr.Policy("policy check service error: %v", checkErr)
	}
	switch outcome {
	case OutcomeBlocked:
		return false, adcperr.Policy("brief blocked by policy: %s", reason)
	case OutcomeRestricted:
		return tenant.RequireManualReview, nil
	default:
		return false, nil
	}
}

// SetupCheck is one named critical task in the tenant setup checklist.
type SetupCheck struct {
	Name      string
	Satisfied bool
	Detail    string
}

// RunSetupChecklist evaluates the critical tasks a tenant must complete and
// returns the names of any unsatisfied ones. The mock adapter auto-satisfies
// inventory_synced; every other adapter requires persisted inventory records
// (not modeled here — callers must populate AdapterInventorySynced for
// non-mock adapters from their own state).
func RunSetupChecklist(s *store.Store, tenant adcp.Tenant, adapterType string, adapterInventorySynced bool) []string {
	checks := []SetupCheck{
		{Name: "adapter_configured", Satisfied: adapterType != ""},
		{Name: "currency_limits_configured", Satisfied: hasCurrencyLimits(s, tenant.TenantID)},
		{Name: "authorized_properties_configured", Satisfied: hasAuthorizedProperties(s, tenant.TenantID)},
		{Name: "inventory_synced", Satisfied: adapterType == "mock" || adapterInventorySynced},
		{Name: "has_product", Satisfied: hasProducts(s, tenant.TenantID)},
		{Name: "has_principal", Satisfied: hasPrincipals(s, tenant.TenantID)},
		{Name: "access_control_configured", Satisfied: tenant.AdminToken != ""},
	}
	if requiresGemini(tenant) {
		checks = append(checks, SetupCheck{Name: "gemini_key_configured", Satisfied: tenant.GeminiAPIKey != ""})
	}

	var missing []string
	for _, c := range checks {
		if !c.Satisfied {
			missing = append(missing, c.Name)
		}
	}
	return missing
}

func requiresGemini(tenant adcp.Tenant) bool {
	return tenant.ApprovalMode == adcp.ApprovalAIPowered || tenant.DynamicPricingEnabled
}

func hasCurrencyLimits(s *store.Store, tenantID string) bool {
	// Any currency configured at all satisfies the check; exact currency
	// coverage is validated per-request by the pricing validator.
	return len(s.ListCurrencyLimits(tenantID)) > 0
}

func hasAuthorizedProperties(s *store.Store, tenantID string) bool {
	return len(s.ListAuthorizedProperties(tenantID)) > 0
}

func hasProducts(s *store.Store, tenantID string) bool {
	return len(s.ListProducts(tenantID)) > 0
}

func hasPrincipals(s *store.Store, tenantID string) bool {
	return len(s.ListPrincipals(tenantID)) > 0
}
