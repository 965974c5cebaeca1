package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/creative"
	"github.com/adcp/salesagent/internal/middleware"
	"github.com/adcp/salesagent/internal/observability"
	"github.com/adcp/salesagent/internal/pricing"
	signalsvc "github.com/adcp/salesagent/internal/signal"
	"github.com/adcp/salesagent/internal/store"
	"github.com/adcp/salesagent/internal/tenant"
	"github.com/adcp/salesagent/internal/workflow"
)

// ctxWithHeaders round-trips an http.Request through WithAdcpHeaders so
// tests get the same context shape a real request would produce; headersKey
// is unexported, so this is the only way to construct one from outside the
// middleware package.
func ctxWithHeaders(t *testing.T, host, bearer string) context.Context {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Host = host
	if bearer != "" {
		req.Header.Set("x-adcp-auth", bearer)
	}
	var captured context.Context
	handler := middleware.WithAdcpHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Context()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, captured)
	return captured
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	s := store.New()
	s.PutTenant(adcp.Tenant{TenantID: "acme", Subdomain: "acme", Active: true, ApprovalMode: adcp.ApprovalAutoApprove})
	s.PutPrincipal(adcp.Principal{TenantID: "acme", PrincipalID: "buyer1", AccessToken: "tok-buyer1"})
	s.PutPrincipal(adcp.Principal{TenantID: "acme", PrincipalID: "buyer2", AccessToken: "tok-buyer2"})
	s.PutCreativeFormat(adcp.CreativeFormat{TenantID: "acme", AgentURL: "https://agents.example.com", FormatID: "banner_300x250", Width: 300, Height: 250})
	rate := 5.0
	s.PutProduct(adcp.Product{
		TenantID:     "acme",
		ProductID:    "prod1",
		Name:         "Run of site",
		DeliveryType: adcp.DeliveryGuaranteed,
		Formats:      []adcp.FormatRef{{AgentURL: "https://agents.example.com", ID: "banner_300x250"}},
		PricingOptions: []adcp.PricingOption{
			{PricingOptionID: "opt1", PricingModel: "CPM", Currency: "USD", IsFixed: true, Rate: &rate},
		},
	})

	engine := workflow.NewEngine(s, nil, nil)
	creatives := creative.NewService(s, nil, engine, nil, nil, observability.NewNoOpRegistry(), 2, nil)
	t.Cleanup(creatives.Close)
	signals := signalsvc.NewService(signalsvc.StaticProvider{Store: s}, engine, nil)

	srv := NewServer(s, tenant.NewResolver(s), engine, nil, creatives, nil, signals, pricing.NoOpEnricher{}, nil, nil, nil)
	return srv, s
}

func TestDispatchAuthFailureReturnsFailedEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := ctxWithHeaders(t, "acme.adcp.example", "bogus-token")

	out := srv.GetSignals(ctx, GetSignalsInput{})
	assert.Equal(t, "failed", out.Status)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "INVALID_AUTH_TOKEN", out.Errors[0].Code)
}

func TestGetProductsAnonymousStripsPricing(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := ctxWithHeaders(t, "acme.adcp.example", "")

	out := srv.GetProducts(ctx, GetProductsInput{})
	assert.Equal(t, "completed", out.Status)
	require.Len(t, out.Products, 1)
	assert.Nil(t, out.Products[0].PricingOptions)
}

func TestGetProductsAuthenticatedKeepsPricing(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := ctxWithHeaders(t, "acme.adcp.example", "tok-buyer1")

	out := srv.GetProducts(ctx, GetProductsInput{})
	assert.Equal(t, "completed", out.Status)
	require.Len(t, out.Products, 1)
	assert.Len(t, out.Products[0].PricingOptions, 1)
}

func TestListCreativesIsolatedPerPrincipal(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx1 := ctxWithHeaders(t, "acme.adcp.example", "tok-buyer1")
	ctx2 := ctxWithHeaders(t, "acme.adcp.example", "tok-buyer2")

	syncOut := srv.SyncCreatives(ctx1, creative.SyncRequest{
		Creatives: []creative.Input{{
			Name:   "Spring Banner",
			Format: adcp.FormatRef{AgentURL: "https://agents.example.com", ID: "banner_300x250"},
			Data:   adcp.CreativePayload{HostedAssetURL: "https://cdn.example.com/spring.jpg", Width: 300, Height: 250},
		}},
	})
	require.Equal(t, "completed", syncOut.Status)

	out1 := srv.ListCreatives(ctx1, creative.ListFilter{})
	out2 := srv.ListCreatives(ctx2, creative.ListFilter{})
	assert.Len(t, out1.Creatives, 1)
	assert.Len(t, out2.Creatives, 0)
}

func TestActivateSignalRejectsMediaBuyFromOtherPrincipal(t *testing.T) {
	srv, s := newTestServer(t)
	s.PutMediaBuy(adcp.MediaBuy{MediaBuyID: "mb1", TenantID: "acme", PrincipalID: "buyer1"})
	ctx := ctxWithHeaders(t, "acme.adcp.example", "tok-buyer2")

	out := srv.ActivateSignal(ctx, ActivateSignalInput{MediaBuyID: "mb1", SignalID: "sig1"})
	assert.Equal(t, "failed", out.Status)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "not_found", out.Errors[0].Code)
}

func TestActivateSignalAlwaysRequiresApproval(t *testing.T) {
	srv, s := newTestServer(t)
	s.PutMediaBuy(adcp.MediaBuy{MediaBuyID: "mb1", TenantID: "acme", PrincipalID: "buyer1"})
	ctx := ctxWithHeaders(t, "acme.adcp.example", "tok-buyer1")

	out := srv.ActivateSignal(ctx, ActivateSignalInput{MediaBuyID: "mb1", SignalID: "sig1"})
	assert.Equal(t, "input-required", out.Status)
	assert.NotEmpty(t, out.WorkflowStepID)
}

// taskFixture opens a context and a requires_approval step the way
// activate_signal or a pending creative review would, returning their ids
// for list_tasks/get_task/complete_task coverage.
func taskFixture(t *testing.T, srv *Server, s *store.Store) (contextID, stepID string) {
	t.Helper()
	wfCtx, aerr := srv.Engine.ResolveContext("", "acme", "buyer1")
	require.Nil(t, aerr)
	step := srv.Engine.StartStep(wfCtx, adcp.StepApproval, adcp.OwnerPrincipal, "activate_signal", nil)
	_, aerr = srv.Engine.Transition(context.Background(), step.StepID, adcp.StepRequiresApproval, nil, "")
	require.Nil(t, aerr)
	return wfCtx.ContextID, step.StepID
}

func TestListTasksScopedToOwningPrincipal(t *testing.T) {
	srv, s := newTestServer(t)
	contextID, _ := taskFixture(t, srv, s)

	ctxOwner := ctxWithHeaders(t, "acme.adcp.example", "tok-buyer1")
	out := srv.ListTasks(ctxOwner, ListTasksInput{ContextID: contextID})
	assert.Equal(t, "completed", out.Status)
	assert.Len(t, out.Tasks, 1)

	ctxOther := ctxWithHeaders(t, "acme.adcp.example", "tok-buyer2")
	outOther := srv.ListTasks(ctxOther, ListTasksInput{ContextID: contextID})
	assert.Equal(t, "failed", outOther.Status)
}

func TestGetTaskHiddenFromOtherPrincipal(t *testing.T) {
	srv, s := newTestServer(t)
	_, stepID := taskFixture(t, srv, s)

	ctxOther := ctxWithHeaders(t, "acme.adcp.example", "tok-buyer2")
	out := srv.GetTask(ctxOther, GetTaskInput{TaskID: stepID})
	assert.Equal(t, "failed", out.Status)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "not_found", out.Errors[0].Code)
}

func TestCompleteTaskApprovedTransitionsToCompleted(t *testing.T) {
	srv, s := newTestServer(t)
	_, stepID := taskFixture(t, srv, s)

	ctx := ctxWithHeaders(t, "acme.adcp.example", "tok-buyer1")
	out := srv.CompleteTask(ctx, CompleteTaskInput{TaskID: stepID, Resolution: "approved", Comment: "looks fine"})
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, adcp.StepCompleted, out.Task.Status)
	require.Len(t, out.Task.Comments, 1)
	assert.Equal(t, "looks fine", out.Task.Comments[0].Text)
}

func TestCompleteTaskRejectedTransitionsToFailed(t *testing.T) {
	srv, s := newTestServer(t)
	_, stepID := taskFixture(t, srv, s)

	ctx := ctxWithHeaders(t, "acme.adcp.example", "tok-buyer1")
	out := srv.CompleteTask(ctx, CompleteTaskInput{TaskID: stepID, Resolution: "rejected"})
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, adcp.StepFailed, out.Task.Status)
	assert.Equal(t, "rejected", out.Task.ErrorMessage)
}

func TestCompleteTaskInvalidResolutionIsValidationError(t *testing.T) {
	srv, s := newTestServer(t)
	_, stepID := taskFixture(t, srv, s)

	ctx := ctxWithHeaders(t, "acme.adcp.example", "tok-buyer1")
	out := srv.CompleteTask(ctx, CompleteTaskInput{TaskID: stepID, Resolution: "maybe"})
	assert.Equal(t, "failed", out.Status)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "validation_error", out.Errors[0].Code)
}

func TestCompleteTaskAlreadyResolvedIsRejected(t *testing.T) {
	srv, s := newTestServer(t)
	_, stepID := taskFixture(t, srv, s)
	ctx := ctxWithHeaders(t, "acme.adcp.example", "tok-buyer1")

	first := srv.CompleteTask(ctx, CompleteTaskInput{TaskID: stepID, Resolution: "approved"})
	require.Equal(t, "completed", first.Status)

	second := srv.CompleteTask(ctx, CompleteTaskInput{TaskID: stepID, Resolution: "approved"})
	assert.Equal(t, "failed", second.Status)
	require.Len(t, second.Errors, 1)
	assert.Equal(t, "validation_error", second.Errors[0].Code)
}
