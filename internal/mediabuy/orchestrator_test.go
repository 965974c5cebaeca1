package mediabuy

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/policy"
	"github.com/adcp/salesagent/internal/store"
	"github.com/adcp/salesagent/internal/workflow"
)

const testTenantID = "acme"
const testPrincipalID = "buyer1"

// newTestOrchestrator wires a fresh store and a fully-configured tenant
// satisfying every RunSetupChecklist critical task, so tests exercise the
// pipeline past the setup gate and into pricing/approval/status logic.
func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store, adcp.Tenant) {
	t.Helper()
	s := store.New()
	tenant := adcp.Tenant{
		TenantID:            testTenantID,
		Subdomain:           testTenantID,
		AdapterType:         "mock",
		AdminToken:          "admin-secret",
		ApprovalMode:        adcp.ApprovalAutoApprove,
		AutoCreateMediaBuys: true,
		Active:              true,
	}
	s.PutTenant(tenant)
	s.PutPrincipal(adcp.Principal{TenantID: testTenantID, PrincipalID: testPrincipalID, AccessToken: "tok-buyer1"})
	s.PutCurrencyLimit(adcp.CurrencyLimit{TenantID: testTenantID, Currency: "USD"})
	s.PutAuthorizedProperty(adcp.AuthorizedProperty{TenantID: testTenantID, Property: "example.com", Verified: true})
	s.PutCreativeFormat(adcp.CreativeFormat{TenantID: testTenantID, AgentURL: "https://agents.example.com", FormatID: "banner_300x250", Width: 300, Height: 250})

	rate := 5.0
	s.PutProduct(adcp.Product{
		TenantID:          testTenantID,
		ProductID:         "prod_cpm_fixed",
		Name:              "Run of site",
		DeliveryType:      adcp.DeliveryGuaranteed,
		AutoCreateEnabled: true,
		Formats:           []adcp.FormatRef{{AgentURL: "https://agents.example.com", ID: "banner_300x250"}},
		PricingOptions: []adcp.PricingOption{
			{PricingOptionID: "opt_fixed", PricingModel: "CPM", Currency: "USD", IsFixed: true, Rate: &rate},
		},
	})
	s.PutProduct(adcp.Product{
		TenantID:          testTenantID,
		ProductID:         "prod_cpm_auction",
		Name:              "Auction inventory",
		DeliveryType:      adcp.DeliveryNonGuaranteed,
		AutoCreateEnabled: true,
		Formats:           []adcp.FormatRef{{AgentURL: "https://agents.example.com", ID: "banner_300x250"}},
		PricingOptions: []adcp.PricingOption{
			{PricingOptionID: "opt_auction", PricingModel: "CPM", Currency: "USD", IsFixed: false, PriceGuidance: &adcp.PriceGuidance{Floor: 8.0}},
		},
	})

	engine := workflow.NewEngine(s, nil, nil)
	orch := NewOrchestrator(s, nil, engine, policy.StaticPolicyCheckService{Outcome: policy.OutcomeApproved}, nil, nil, 2*time.Second, nil)
	return orch, s, tenant
}

func flightWindow(t *testing.T, startIn, endIn time.Duration) (string, string) {
	t.Helper()
	now := time.Now().UTC()
	return now.Add(startIn).Format(time.RFC3339), now.Add(endIn).Format(time.RFC3339)
}

// Auto-approved creation with an already-approved creative attached:
// exercises the fix requiring computeStatus's creativesApproved argument to
// reflect real Creative.Status rather than the mere presence of a creative_id.
func TestCreateAutoApprovedWithApprovedCreativeIsReady(t *testing.T) {
	orch, s, tenant := newTestOrchestrator(t)
	s.PutCreative(adcp.Creative{
		TenantID:    testTenantID,
		PrincipalID: testPrincipalID,
		CreativeID:  "cr1",
		Name:        "Spring Banner",
		Status:      adcp.CreativeApproved,
		Format:      adcp.FormatRef{AgentURL: "https://agents.example.com", ID: "banner_300x250"},
		Data:        adcp.CreativePayload{HostedAssetURL: "https://cdn.example.com/spring.jpg", Width: 300, Height: 250},
	})
	startStr, endStr := flightWindow(t, 24*time.Hour, 31*24*time.Hour)

	result, aerr := orch.Create(context.Background(), tenant, CreateRequest{
		PrincipalID: testPrincipalID,
		BuyerRef:    "bref-1",
		StartTime:   startStr,
		EndTime:     endStr,
		Packages: []PackageInput{
			{ProductID: "prod_cpm_fixed", PricingModel: "CPM", Budget: 10000, CreativeIDs: []string{"cr1"}},
		},
	})

	require.Nil(t, aerr)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, adcp.MediaBuyReady, result.MediaBuyStatus)
	require.Len(t, result.Packages, 1)
	assert.True(t, strings.HasPrefix(result.Packages[0].PackageID, "pkg_prod_cpm_fixed_"))

	mb, ok := s.GetMediaBuy(result.MediaBuyID)
	require.True(t, ok)
	assert.Equal(t, adcp.MediaBuyReady, mb.Status)
}

// A media buy with a creative_id that never resolves to an approved Creative
// must not be reported ready: this is the exact regression the creatives-
// approved fix targets.
func TestCreateAutoApprovedWithUnapprovedCreativeNeedsCreatives(t *testing.T) {
	orch, s, tenant := newTestOrchestrator(t)
	s.PutCreative(adcp.Creative{
		TenantID:    testTenantID,
		PrincipalID: testPrincipalID,
		CreativeID:  "cr1",
		Name:        "Pending Banner",
		Status:      adcp.CreativePending,
		Format:      adcp.FormatRef{AgentURL: "https://agents.example.com", ID: "banner_300x250"},
	})
	startStr, endStr := flightWindow(t, 24*time.Hour, 31*24*time.Hour)

	result, aerr := orch.Create(context.Background(), tenant, CreateRequest{
		PrincipalID: testPrincipalID,
		BuyerRef:    "bref-2",
		StartTime:   startStr,
		EndTime:     endStr,
		Packages: []PackageInput{
			{ProductID: "prod_cpm_fixed", PricingModel: "CPM", Budget: 10000, CreativeIDs: []string{"cr1"}},
		},
	})

	require.Nil(t, aerr)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, adcp.MediaBuyNeedsCreatives, result.MediaBuyStatus)
}

// Manual-approval path: the adapter/tenant configuration forces a hold, and
// a later execute_approved_media_buy carries forward the same permanent id
// and resolves to ready once its attached creative is approved.
func TestManualApprovalThenExecuteApprovedReachesReady(t *testing.T) {
	orch, s, tenant := newTestOrchestrator(t)
	tenant.AutoCreateMediaBuys = false
	s.PutTenant(tenant)
	s.PutCreative(adcp.Creative{
		TenantID:    testTenantID,
		PrincipalID: testPrincipalID,
		CreativeID:  "cr1",
		Name:        "Spring Banner",
		Status:      adcp.CreativeApproved,
		Format:      adcp.FormatRef{AgentURL: "https://agents.example.com", ID: "banner_300x250"},
		Data:        adcp.CreativePayload{HostedAssetURL: "https://cdn.example.com/spring.jpg", Width: 300, Height: 250},
	})
	startStr, endStr := flightWindow(t, 24*time.Hour, 31*24*time.Hour)
	req := CreateRequest{
		PrincipalID: testPrincipalID,
		BuyerRef:    "bref-3",
		StartTime:   startStr,
		EndTime:     endStr,
		Packages: []PackageInput{
			{ProductID: "prod_cpm_fixed", PricingModel: "CPM", Budget: 10000, CreativeIDs: []string{"cr1"}},
		},
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	req.RawRequest = raw

	created, aerr := orch.Create(context.Background(), tenant, req)
	require.Nil(t, aerr)
	assert.Equal(t, "input-required", created.Status)
	require.NotEmpty(t, created.MediaBuyID)
	require.True(t, strings.HasPrefix(created.MediaBuyID, "mb_"))

	mb, ok := s.GetMediaBuy(created.MediaBuyID)
	require.True(t, ok)
	assert.Equal(t, adcp.MediaBuyPendingApproval, mb.Status)

	executed, aerr := orch.ExecuteApproved(context.Background(), tenant, created.MediaBuyID)
	require.Nil(t, aerr)
	assert.Equal(t, "completed", executed.Status)
	assert.Equal(t, created.MediaBuyID, executed.MediaBuyID)
	assert.Equal(t, adcp.MediaBuyReady, executed.MediaBuyStatus)
	require.Len(t, executed.Packages, 1)
	assert.Equal(t, created.Packages[0].PackageID, executed.Packages[0].PackageID)
}

// Pricing rejection: an auction bid below the pricing option's floor must
// fail the whole create, leaving no MediaBuy behind.
func TestCreateRejectsBidBelowFloor(t *testing.T) {
	orch, s, tenant := newTestOrchestrator(t)
	startStr, endStr := flightWindow(t, 24*time.Hour, 31*24*time.Hour)
	bid := 5.0

	result, aerr := orch.Create(context.Background(), tenant, CreateRequest{
		PrincipalID: testPrincipalID,
		BuyerRef:    "bref-4",
		StartTime:   startStr,
		EndTime:     endStr,
		Packages: []PackageInput{
			{ProductID: "prod_cpm_auction", PricingModel: "CPM", Budget: 1000, BidPrice: &bid},
		},
	})

	require.NotNil(t, aerr)
	assert.Equal(t, adcperr.CodePricingError, aerr.Code)
	assert.Contains(t, aerr.Message, "below floor price")
	assert.Equal(t, "failed", result.Status)
	assert.Empty(t, s.ListMediaBuysByPrincipal(testTenantID, testPrincipalID))
}

// Currency-bypass attempt via flight extension: shrinking the flight window
// on update re-runs the daily-spend check against the *new* flight length,
// even though the budget itself is unchanged.
func TestUpdateRejectsFlightShrinkThatExceedsDailyCap(t *testing.T) {
	orch, s, tenant := newTestOrchestrator(t)
	maxDaily := 1000.0
	s.PutCurrencyLimit(adcp.CurrencyLimit{TenantID: testTenantID, Currency: "USD", MaxDailyPackageSpend: &maxDaily})

	mediaBuyID := "mb_existing"
	packageID := "pkg_prod_cpm_fixed_1"
	s.PutMediaBuy(adcp.MediaBuy{
		MediaBuyID:  mediaBuyID,
		TenantID:    testTenantID,
		PrincipalID: testPrincipalID,
		BuyerRef:    "bref-5",
		StartTime:   time.Now().UTC(),
		EndTime:     time.Now().UTC().Add(30 * 24 * time.Hour),
		TotalBudget: 30000,
		Currency:    "USD",
		Status:      adcp.MediaBuyActive,
	})
	s.PutPackages(mediaBuyID, []adcp.MediaPackage{
		{PackageID: packageID, TenantID: testTenantID, ProductID: "prod_cpm_fixed", Budget: 30000},
	})

	newEnd := time.Now().UTC().Add(5 * 24 * time.Hour).Format(time.RFC3339)
	result, aerr := orch.Update(context.Background(), tenant, UpdateRequest{
		MediaBuyID:  mediaBuyID,
		PrincipalID: testPrincipalID,
		EndTime:     &newEnd,
	})

	require.NotNil(t, aerr)
	assert.Equal(t, adcperr.CodeBudgetLimitExceeded, aerr.Code)
	assert.Contains(t, aerr.Message, "daily maximum")
	assert.Equal(t, "failed", result.Status)

	mb, ok := s.GetMediaBuy(mediaBuyID)
	require.True(t, ok)
	assert.Equal(t, 30*24*time.Hour, mb.EndTime.Sub(mb.StartTime).Round(time.Hour))
}
