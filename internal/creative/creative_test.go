package creative

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/observability"
	"github.com/adcp/salesagent/internal/store"
	"github.com/adcp/salesagent/internal/workflow"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s := store.New()
	s.PutCreativeFormat(adcp.CreativeFormat{TenantID: "acme", AgentURL: "https://agents.example.com", FormatID: "banner_300x250", Width: 300, Height: 250})
	engine := workflow.NewEngine(s, nil, nil)
	svc := NewService(s, nil, engine, nil, nil, observability.NewNoOpRegistry(), 2, nil)
	t.Cleanup(svc.Close)
	return svc, s
}

func hostedInput(id string) Input {
	return Input{
		CreativeID: id,
		Name:       "Spring Banner",
		Format:     adcp.FormatRef{AgentURL: "https://agents.example.com", ID: "banner_300x250"},
		Data:       adcp.CreativePayload{HostedAssetURL: "https://cdn.example.com/spring.jpg", Width: 300, Height: 250},
	}
}

func TestSyncCreativesAutoApproveCreatesApproved(t *testing.T) {
	svc, _ := newTestService(t)
	tenant := adcp.Tenant{TenantID: "acme", ApprovalMode: adcp.ApprovalAutoApprove}

	resp, aerr := svc.Sync(context.Background(), tenant, SyncRequest{
		TenantID:    "acme",
		PrincipalID: "buyer1",
		Creatives:   []Input{hostedInput("")},
	})
	require.Nil(t, aerr)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "created", resp.Results[0].Action)
	assert.Equal(t, adcp.CreativeApproved, resp.Results[0].Status)
	assert.Equal(t, 1, resp.Summary.Created)
	assert.NotEmpty(t, resp.Results[0].CreativeID)
}

func TestSyncCreativesRequireHumanStaysPendingAndOpensStep(t *testing.T) {
	svc, s := newTestService(t)
	tenant := adcp.Tenant{TenantID: "acme", ApprovalMode: adcp.ApprovalRequireHuman}

	resp, aerr := svc.Sync(context.Background(), tenant, SyncRequest{
		TenantID:    "acme",
		PrincipalID: "buyer1",
		Creatives:   []Input{hostedInput("")},
	})
	require.Nil(t, aerr)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, adcp.CreativePending, resp.Results[0].Status)

	mappings := s.GetMappingsForObject("creative", resp.Results[0].CreativeID)
	require.Len(t, mappings, 1)
	step, ok := s.GetStep(mappings[0].StepID)
	require.True(t, ok)
	assert.Equal(t, adcp.StepRequiresApproval, step.Status)
}

func TestSyncCreativesIdempotentReSyncIsUnchanged(t *testing.T) {
	svc, _ := newTestService(t)
	tenant := adcp.Tenant{TenantID: "acme", ApprovalMode: adcp.ApprovalAutoApprove}

	first, aerr := svc.Sync(context.Background(), tenant, SyncRequest{
		TenantID: "acme", PrincipalID: "buyer1", Creatives: []Input{hostedInput("")},
	})
	require.Nil(t, aerr)
	id := first.Results[0].CreativeID

	second, aerr := svc.Sync(context.Background(), tenant, SyncRequest{
		TenantID: "acme", PrincipalID: "buyer1", Creatives: []Input{hostedInput(id)},
	})
	require.Nil(t, aerr)
	require.Len(t, second.Results, 1)
	assert.Equal(t, "unchanged", second.Results[0].Action)
	assert.Equal(t, 1, second.Summary.Unchanged)
}

func TestSyncCreativesRejectsSnippetAndHostedTogether(t *testing.T) {
	svc, _ := newTestService(t)
	tenant := adcp.Tenant{TenantID: "acme", ApprovalMode: adcp.ApprovalAutoApprove}
	in := hostedInput("")
	in.Data.Snippet = "<script></script>"

	resp, aerr := svc.Sync(context.Background(), tenant, SyncRequest{
		TenantID: "acme", PrincipalID: "buyer1", Creatives: []Input{in},
	})
	require.Nil(t, aerr)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "failed", resp.Results[0].Action)
	assert.Equal(t, 1, resp.Summary.Failed)
}

func TestSyncCreativesDeleteMissingIsRejected(t *testing.T) {
	svc, _ := newTestService(t)
	tenant := adcp.Tenant{TenantID: "acme", ApprovalMode: adcp.ApprovalAutoApprove}

	_, aerr := svc.Sync(context.Background(), tenant, SyncRequest{
		TenantID: "acme", PrincipalID: "buyer1", DeleteMissing: true,
	})
	require.NotNil(t, aerr)
	assert.Equal(t, "validation_error", aerr.Code)
}

func TestSyncCreativesUnknownFormatRejected(t *testing.T) {
	svc, _ := newTestService(t)
	tenant := adcp.Tenant{TenantID: "acme", ApprovalMode: adcp.ApprovalAutoApprove}
	in := hostedInput("")
	in.Format.ID = "does_not_exist"

	resp, aerr := svc.Sync(context.Background(), tenant, SyncRequest{
		TenantID: "acme", PrincipalID: "buyer1", Creatives: []Input{in},
	})
	require.Nil(t, aerr)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "failed", resp.Results[0].Action)
	assert.Equal(t, "FORMAT_VALIDATION_ERROR", resp.Results[0].Error.Code)
}

func TestListCreativesScopedToPrincipal(t *testing.T) {
	svc, _ := newTestService(t)
	tenant := adcp.Tenant{TenantID: "acme", ApprovalMode: adcp.ApprovalAutoApprove}

	_, aerr := svc.Sync(context.Background(), tenant, SyncRequest{
		TenantID: "acme", PrincipalID: "buyer1", Creatives: []Input{hostedInput("")},
	})
	require.Nil(t, aerr)
	_, aerr = svc.Sync(context.Background(), tenant, SyncRequest{
		TenantID: "acme", PrincipalID: "buyer2", Creatives: []Input{hostedInput("")},
	})
	require.Nil(t, aerr)

	resp := svc.List("acme", "buyer1", ListFilter{})
	require.Len(t, resp.Creatives, 1)
	assert.Equal(t, "buyer1", resp.Creatives[0].PrincipalID)
}

func TestListCreativesPagination(t *testing.T) {
	svc, _ := newTestService(t)
	tenant := adcp.Tenant{TenantID: "acme", ApprovalMode: adcp.ApprovalAutoApprove}
	for i := 0; i < 5; i++ {
		_, aerr := svc.Sync(context.Background(), tenant, SyncRequest{
			TenantID: "acme", PrincipalID: "buyer1", Creatives: []Input{hostedInput("")},
		})
		require.Nil(t, aerr)
	}

	resp := svc.List("acme", "buyer1", ListFilter{Page: 1, Limit: 2})
	assert.Len(t, resp.Creatives, 2)
	assert.Equal(t, 5, resp.Total)
	assert.Equal(t, 3, resp.TotalPages)
	assert.True(t, resp.HasMore)
}

func TestSyncCreativesAssignmentsStrictRejectsUnknownPackage(t *testing.T) {
	svc, _ := newTestService(t)
	tenant := adcp.Tenant{TenantID: "acme", ApprovalMode: adcp.ApprovalAutoApprove}

	resp, aerr := svc.Sync(context.Background(), tenant, SyncRequest{
		TenantID:    "acme",
		PrincipalID: "buyer1",
		Creatives:   []Input{hostedInput("")},
		Assignments: []AssignmentInput{{CreativeID: "", PackageIDs: []string{"pkg_missing_1"}}},
	})
	require.Nil(t, aerr)
	creativeID := resp.Results[0].CreativeID

	resp, aerr = svc.Sync(context.Background(), tenant, SyncRequest{
		TenantID:    "acme",
		PrincipalID: "buyer1",
		Creatives:   []Input{hostedInput(creativeID)},
		Assignments: []AssignmentInput{{CreativeID: creativeID, PackageIDs: []string{"pkg_missing_1"}}},
	})
	require.Nil(t, aerr)
	var sawAssignmentFailure bool
	for _, r := range resp.Results {
		if r.CreativeID == creativeID && r.Action == "failed" {
			sawAssignmentFailure = true
		}
	}
	assert.True(t, sawAssignmentFailure)
}
