package policy

import (
	"context"
	"testing"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/store"
)

func TestCheckBriefBlocked(t *testing.T) {
	svc := StaticPolicyCheckService{Outcome: OutcomeBlocked, Reason: "prohibited category"}
	_, aerr := CheckBrief(context.Background(), svc, BriefCheckRequest{}, adcp.Tenant{})
	if aerr == nil || aerr.Code != "POLICY_VIOLATION" {
		t.Fatalf("expected POLICY_VIOLATION, got %v", aerr)
	}
}

func TestCheckBriefRestrictedRequiresReview(t *testing.T) {
	svc := StaticPolicyCheckService{Outcome: OutcomeRestricted}
	needsReview, aerr := CheckBrief(context.Background(), svc, BriefCheckRequest{}, adcp.Tenant{RequireManualReview: true})
	if aerr != nil {
		t.Fatalf("unexpected error: %v", aerr)
	}
	if !needsReview {
		t.Fatalf("expected needsReview=true")
	}
}

func TestCheckBriefApproved(t *testing.T) {
	svc := StaticPolicyCheckService{Outcome: OutcomeApproved}
	needsReview, aerr := CheckBrief(context.Background(), svc, BriefCheckRequest{}, adcp.Tenant{})
	if aerr != nil || needsReview {
		t.Fatalf("expected clean approval, got needsReview=%v err=%v", needsReview, aerr)
	}
}

func TestRunSetupChecklistReportsMissingTasks(t *testing.T) {
	s := store.New()
	tenant := adcp.Tenant{TenantID: "acme", AdapterType: "google_ad_manager"}
	missing := RunSetupChecklist(s, tenant, tenant.AdapterType, false)
	if len(missing) == 0 {
		t.Fatalf("expected missing tasks for an unconfigured tenant")
	}
}

func TestRunSetupChecklistMockAutoSatisfiesInventory(t *testing.T) {
	s := store.New()
	tenant := adcp.Tenant{TenantID: "acme", AdapterType: "mock"}
	missing := RunSetupChecklist(s, tenant, "mock", false)
	for _, m := range missing {
		if m == "inventory_synced" {
			t.Fatalf("mock adapter should auto-satisfy inventory_synced")
		}
	}
}

func TestRunSetupChecklistFullyConfigured(t *testing.T) {
	s := store.New()
	tenant := adcp.Tenant{TenantID: "acme", AdapterType: "mock", AdminToken: "secret"}
	s.PutCurrencyLimit(adcp.CurrencyLimit{TenantID: "acme", Currency: "USD"})
	s.PutAuthorizedProperty(adcp.AuthorizedProperty{TenantID: "acme", Property: "example.com", Verified: true})
	s.PutProduct(adcp.Product{TenantID: "acme", ProductID: "prod1"})
	s.PutPrincipal(adcp.Principal{TenantID: "acme", PrincipalID: "acme_admin"})
	missing := RunSetupChecklist(s, tenant, "mock", false)
	if len(missing) != 0 {
		t.Fatalf("expected no missing tasks, got %v", missing)
	}
}
