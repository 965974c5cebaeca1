// Package mediabuy implements the create/execute/update pipeline for media
// buys: pricing resolution, approval-mode determination, adapter dispatch,
// and dual-write persistence of MediaBuy and MediaPackage records.
package mediabuy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adcp/salesagent/internal/adapter"
	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/format"
	"github.com/adcp/salesagent/internal/observability"
	"github.com/adcp/salesagent/internal/policy"
	"github.com/adcp/salesagent/internal/pricing"
	"github.com/adcp/salesagent/internal/store"
	"github.com/adcp/salesagent/internal/workflow"
)

// Persister durably records what the orchestrator writes to the shared
// in-memory store. A nil Persister leaves durable storage untouched, which
// is how orchestrator tests exercise the pipeline without a live database.
// *db.Postgres satisfies this interface without any adapter shim.
type Persister interface {
	InsertMediaBuy(ctx context.Context, mb adcp.MediaBuy) error
	UpdateMediaBuy(ctx context.Context, mb adcp.MediaBuy) error
	PutMediaPackages(ctx context.Context, mediaBuyID string, pkgs []adcp.MediaPackage) error
	UpsertCreative(ctx context.Context, c adcp.Creative) error
	InsertCreativeAssignment(ctx context.Context, a adcp.CreativeAssignment) error
}

// Orchestrator runs the create_media_buy / execute_approved_media_buy /
// update_media_buy pipelines against the shared store.
type Orchestrator struct {
	store          *store.Store
	persister      Persister
	engine         *workflow.Engine
	policySvc      policy.PolicyCheckService
	newAdapter     func(adapter.Config) adapter.Port
	metrics        observability.MetricsRegistry
	adapterTimeout time.Duration
	log            *zap.Logger
}

func NewOrchestrator(
	s *store.Store,
	persister Persister,
	engine *workflow.Engine,
	policySvc policy.PolicyCheckService,
	newAdapter func(adapter.Config) adapter.Port,
	metrics observability.MetricsRegistry,
	adapterTimeout time.Duration,
	log *zap.Logger,
) *Orchestrator {
	if newAdapter == nil {
		newAdapter = adapter.New
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:          s,
		persister:      persister,
		engine:         engine,
		policySvc:      policySvc,
		newAdapter:     newAdapter,
		metrics:        metrics,
		adapterTimeout: adapterTimeout,
		log:            log,
	}
}

// PackageInput is one requested package within a CreateRequest.
type PackageInput struct {
	ProductID       string          `json:"product_id"`
	PricingOptionID string          `json:"pricing_option_id,omitempty"`
	PricingModel    string          `json:"pricing_model,omitempty"`
	BidPrice        *float64        `json:"bid_price,omitempty"`
	Budget          float64         `json:"budget"`
	Targeting       json.RawMessage `json:"targeting,omitempty"`
	CreativeIDs     []string        `json:"creative_ids,omitempty"`
	PackageConfig   json.RawMessage `json:"package_config,omitempty"`
}

// CreateRequest is the decoded create_media_buy request body. RawRequest is
// retained verbatim so execute_approved_media_buy can reconstruct it.
type CreateRequest struct {
	PrincipalID      string            `json:"-"`
	BuyerRef         string            `json:"buyer_ref"`
	PONumber         string            `json:"po_number,omitempty"`
	Packages         []PackageInput    `json:"packages"`
	StartTime        string            `json:"start_time"` // "asap" or RFC3339
	EndTime          string            `json:"end_time"`
	Currency         string            `json:"currency,omitempty"`
	BrandManifest    map[string]string `json:"brand_manifest,omitempty"`
	PromotedOffering string            `json:"promoted_offering,omitempty"`
	Brief            string            `json:"brief,omitempty"`
	ContextID        string            `json:"context_id,omitempty"`
	DryRun           bool              `json:"dry_run,omitempty"`
	RawRequest       json.RawMessage   `json:"-"`
}

// PackageResult is one package as reported back to the caller.
type PackageResult struct {
	PackageID    string             `json:"package_id"`
	ProductID    string             `json:"product_id"`
	Budget       float64            `json:"budget"`
	PricingModel string             `json:"pricing_model"`
	BidPrice     *float64           `json:"bid_price,omitempty"`
	Status       adcp.PackageStatus `json:"status"`
}

// Result is what Create, ExecuteApproved and Update return to the dispatcher.
type Result struct {
	Status         string             `json:"status"` // "completed" | "input-required" | "failed"
	MediaBuyID     string             `json:"media_buy_id,omitempty"`
	BuyerRef       string             `json:"buyer_ref,omitempty"`
	ContextID      string             `json:"context_id,omitempty"`
	WorkflowStepID string             `json:"workflow_step_id,omitempty"`
	MediaBuyStatus adcp.MediaBuyStatus `json:"media_buy_status,omitempty"`
	Packages       []PackageResult    `json:"packages,omitempty"`
	Errors         []*adcperr.Error   `json:"errors,omitempty"`
}

func failResult(err *adcperr.Error) (Result, *adcperr.Error) {
	return Result{Status: "failed", Errors: []*adcperr.Error{err}}, err
}

// Create runs the full create_media_buy pipeline: decode/validate, policy
// and setup gates, currency and pricing resolution, approval-mode
// determination, adapter dispatch, dual-write persistence, and inline
// creative upload/association.
func (o *Orchestrator) Create(ctx context.Context, tenant adcp.Tenant, req CreateRequest) (Result, *adcperr.Error) {
	now := time.Now().UTC()

	start, end, verr := resolveFlightWindow(req.StartTime, req.EndTime, now)
	if verr != nil {
		return failResult(verr)
	}
	if req.BuyerRef == "" {
		return failResult(adcperr.Validation("buyer_ref is required"))
	}
	if len(req.Packages) == 0 {
		return failResult(adcperr.Validation("create_media_buy requires at least one package"))
	}
	if dup := duplicateProductID(req.Packages); dup != "" {
		return failResult(adcperr.Validation("product_id %q is targeted by more than one package", dup))
	}

	wfCtx, cerr := o.engine.ResolveContext(req.ContextID, tenant.TenantID, req.PrincipalID)
	if cerr != nil {
		return failResult(cerr)
	}

	needsReview, perr := policy.CheckBrief(ctx, o.policySvc, policy.BriefCheckRequest{
		Brief:            req.Brief,
		PromotedOffering: req.PromotedOffering,
		BrandManifest:    req.BrandManifest,
	}, tenant)
	if perr != nil {
		return failResult(perr)
	}
	if !req.DryRun {
		if missing := policy.RunSetupChecklist(o.store, tenant, tenant.AdapterType, true); len(missing) > 0 {
			return failResult(adcperr.SetupIncomplete(missing))
		}
	}

	step := o.engine.StartStep(wfCtx, adcp.StepMediaBuyCreation, adcp.OwnerSystem, "create_media_buy", req.RawRequest)

	if needsReview {
		reviewStep := o.engine.StartStep(wfCtx, adcp.StepPolicyReview, adcp.OwnerPublisher, "create_media_buy", req.RawRequest)
		o.engine.MapObject(reviewStep, "media_buy", "", adcp.MappingApprovalRequired)
		if _, terr := o.engine.Transition(ctx, reviewStep.StepID, adcp.StepRequiresApproval, nil, ""); terr != nil {
			o.log.Warn("failed to open policy review step", zap.Error(terr))
		}
		o.failStep(ctx, step, adcperr.Policy("brief requires manual policy review before this media buy can proceed"))
		return Result{Status: "input-required", WorkflowStepID: reviewStep.StepID, ContextID: wfCtx.ContextID}, nil
	}

	currency, cerr := resolveCurrency(req, tenant, o.store)
	if cerr != nil {
		o.failStep(ctx, step, cerr)
		return failResult(cerr)
	}

	flightDays := end.Sub(start).Hours() / 24
	resolved := make([]pricing.Resolved, len(req.Packages))
	for i, pkg := range req.Packages {
		product, ok := o.store.GetProduct(tenant.TenantID, pkg.ProductID)
		if !ok {
			aerr := adcperr.NotFound("product %q not found", pkg.ProductID)
			o.failStep(ctx, step, aerr)
			return failResult(aerr)
		}
		r, perr := pricing.Resolve(pricing.PackageRequest{
			PricingOptionID: pkg.PricingOptionID,
			PricingModel:    pkg.PricingModel,
			BidPrice:        pkg.BidPrice,
			Budget:          pkg.Budget,
			FlightDays:      flightDays,
		}, product, currency)
		if perr != nil {
			o.metrics.IncrementPricingRejections(perr.Code)
			o.failStep(ctx, step, perr)
			return failResult(perr)
		}
		if limit, ok := o.store.GetCurrencyLimit(tenant.TenantID, currency); ok {
			if cerr := pricing.CheckCurrencyLimits(pricing.PackageRequest{Budget: pkg.Budget, FlightDays: flightDays}, limit); cerr != nil {
				o.metrics.IncrementPricingRejections(cerr.Code)
				o.failStep(ctx, step, cerr)
				return failResult(cerr)
			}
		}
		resolved[i] = r
	}

	a := o.newAdapter(adapter.Config{
		AdapterType: tenant.AdapterType,
		TenantID:    tenant.TenantID,
		PrincipalID: req.PrincipalID,
		DryRun:      req.DryRun,
	})

	manualRequired := a.ManualApprovalRequired("create_media_buy") || !tenant.AutoCreateMediaBuys
	for _, pkg := range req.Packages {
		if product, ok := o.store.GetProduct(tenant.TenantID, pkg.ProductID); ok && !product.AutoCreateEnabled {
			manualRequired = true
		}
	}

	mediaBuyID := genMediaBuyID()
	packageIDs := make([]string, len(req.Packages))
	for i, pkg := range req.Packages {
		packageIDs[i] = genPackageID(pkg.ProductID, i)
	}

	if manualRequired {
		pkgs := buildMediaPackages(tenant.TenantID, mediaBuyID, packageIDs, req.Packages, resolved, "")
		mb := adcp.MediaBuy{
			MediaBuyID:  mediaBuyID,
			TenantID:    tenant.TenantID,
			PrincipalID: req.PrincipalID,
			BuyerRef:    req.BuyerRef,
			PONumber:    req.PONumber,
			StartTime:   start,
			EndTime:     end,
			TotalBudget: totalBudget(req.Packages),
			Currency:    currency,
			Status:      adcp.MediaBuyPendingApproval,
			RawRequest:  req.RawRequest,
		}
		o.persistCreate(ctx, mb, pkgs)
		o.registerInlineCreatives(ctx, tenant.TenantID, req.PrincipalID, mediaBuyID, packageIDs, req.Packages)
		o.engine.MapObject(step, "media_buy", mediaBuyID, adcp.MappingCreate)
		if _, terr := o.engine.Transition(ctx, step.StepID, adcp.StepRequiresApproval, nil, ""); terr != nil {
			o.log.Warn("failed to move step to requires_approval", zap.Error(terr))
		}
		o.metrics.IncrementMediaBuysCreated(string(adcp.MediaBuyPendingApproval))
		return Result{
			Status:         "input-required",
			MediaBuyID:     mediaBuyID,
			BuyerRef:       req.BuyerRef,
			ContextID:      wfCtx.ContextID,
			WorkflowStepID: step.StepID,
			MediaBuyStatus: adcp.MediaBuyPendingApproval,
			Packages:       toPackageResults(pkgs),
		}, nil
	}

	adapterReq := adapter.CreateRequest{
		TenantID:    tenant.TenantID,
		PrincipalID: req.PrincipalID,
		BuyerRef:    req.BuyerRef,
		MediaBuyID:  mediaBuyID,
		StartTime:   start,
		EndTime:     end,
		DryRun:      req.DryRun,
	}
	for i, pkg := range req.Packages {
		adapterReq.Packages = append(adapterReq.Packages, adapter.PackageRequest{
			PackageID: packageIDs[i],
			ProductID: pkg.ProductID,
			Budget:    pkg.Budget,
			Pricing:   toPricingInfo(resolved[i]),
			Targeting: pkg.Targeting,
		})
	}

	mbResult, aerr := o.callCreateMediaBuy(ctx, tenant.AdapterType, a, adapterReq)
	if aerr != nil {
		o.failStep(ctx, step, aerr)
		return failResult(aerr)
	}

	resultByPackageID := make(map[string]adapter.ResultPackage, len(mbResult.Packages))
	for _, rp := range mbResult.Packages {
		if rp.PackageID == "" {
			aerr := adcperr.Adapter("adapter returned a package result without package_id")
			o.failStep(ctx, step, aerr)
			return failResult(aerr)
		}
		resultByPackageID[rp.PackageID] = rp
	}

	hasCreatives := anyHasCreatives(req.Packages)
	creativesOK := allCreativesApproved(o.store, tenant.TenantID, req.PrincipalID, req.Packages)
	status := computeStatus(false, hasCreatives, creativesOK, now, start, end)
	pkgs := buildMediaPackages(tenant.TenantID, mediaBuyID, packageIDs, req.Packages, resolved, packageStatusFor(status))
	mb := adcp.MediaBuy{
		MediaBuyID:  mediaBuyID,
		TenantID:    tenant.TenantID,
		PrincipalID: req.PrincipalID,
		BuyerRef:    req.BuyerRef,
		PONumber:    req.PONumber,
		StartTime:   start,
		EndTime:     end,
		TotalBudget: totalBudget(req.Packages),
		Currency:    currency,
		Status:      status,
		RawRequest:  req.RawRequest,
	}
	o.persistCreate(ctx, mb, pkgs)
	o.handleInlineCreatives(ctx, tenant.TenantID, req.PrincipalID, a, mediaBuyID, packageIDs, req.Packages, resultByPackageID)

	o.engine.MapObject(step, "media_buy", mediaBuyID, adcp.MappingCreate)
	if _, terr := o.engine.Transition(ctx, step.StepID, adcp.StepCompleted, nil, ""); terr != nil {
		o.log.Warn("failed to complete media_buy_creation step", zap.Error(terr))
	}
	o.metrics.IncrementMediaBuysCreated(string(status))

	return Result{
		Status:         "completed",
		MediaBuyID:     mediaBuyID,
		BuyerRef:       req.BuyerRef,
		ContextID:      wfCtx.ContextID,
		WorkflowStepID: step.StepID,
		MediaBuyStatus: status,
		Packages:       toPackageResults(pkgs),
	}, nil
}

// ExecuteApproved runs steps 8-12 of the create pipeline against a media buy
// that already exists in pending_approval, reconstructing the original
// request from raw_request. It re-uploads creatives lacking a
// platform_creative_id and re-attempts approve_order. The caller is
// responsible for transitioning the originating workflow step.
func (o *Orchestrator) ExecuteApproved(ctx context.Context, tenant adcp.Tenant, mediaBuyID string) (Result, *adcperr.Error) {
	mb, ok := o.store.GetMediaBuy(mediaBuyID)
	if !ok || mb.TenantID != tenant.TenantID {
		return failResult(adcperr.NotFound("media buy %q not found", mediaBuyID))
	}

	var req CreateRequest
	if err := json.Unmarshal(mb.RawRequest, &req); err != nil {
		return failResult(adcperr.Validation("stored raw_request for %q is not valid JSON: %v", mediaBuyID, err))
	}

	pkgs := o.store.GetPackages(mediaBuyID)
	packageIDs := make([]string, len(pkgs))
	inputs := make([]PackageInput, len(pkgs))
	for i, pkg := range pkgs {
		packageIDs[i] = pkg.PackageID
		inputs[i] = PackageInput{
			ProductID:   pkg.ProductID,
			BidPrice:    pkg.BidPrice,
			Budget:      pkg.Budget,
			Targeting:   pkg.Targeting,
			CreativeIDs: pkg.CreativeIDs,
		}
	}

	a := o.newAdapter(adapter.Config{
		AdapterType:    tenant.AdapterType,
		TenantID:       tenant.TenantID,
		PrincipalID:    mb.PrincipalID,
		ManualApproval: nil, // the step has already cleared approval; do not re-gate it
	})

	adapterReq := adapter.CreateRequest{
		TenantID:    tenant.TenantID,
		PrincipalID: mb.PrincipalID,
		BuyerRef:    mb.BuyerRef,
		MediaBuyID:  mediaBuyID,
		StartTime:   mb.StartTime,
		EndTime:     mb.EndTime,
	}
	for i, pkg := range pkgs {
		product, _ := o.store.GetProduct(tenant.TenantID, pkg.ProductID)
		adapterReq.Packages = append(adapterReq.Packages, adapter.PackageRequest{
			PackageID: pkg.PackageID,
			ProductID: pkg.ProductID,
			Budget:    pkg.Budget,
			Pricing:   pricingInfoFromPackage(pkg, product, mb.Currency),
			Targeting: pkg.Targeting,
		})
		_ = i
	}

	mbResult, aerr := o.callCreateMediaBuy(ctx, tenant.AdapterType, a, adapterReq)
	if aerr != nil {
		return failResult(aerr)
	}

	resultByPackageID := make(map[string]adapter.ResultPackage, len(mbResult.Packages))
	for _, rp := range mbResult.Packages {
		resultByPackageID[rp.PackageID] = rp
	}

	now := time.Now().UTC()
	hasCreatives := anyHasCreatives(inputs)
	creativesOK := allCreativesApproved(o.store, tenant.TenantID, mb.PrincipalID, inputs)
	status := computeStatus(false, hasCreatives, creativesOK, now, mb.StartTime, mb.EndTime)
	for i := range pkgs {
		pkgs[i].Status = packageStatusFor(status)
	}
	mb.Status = status
	o.persistUpdate(ctx, mb, pkgs)

	o.handleInlineCreatives(ctx, tenant.TenantID, mb.PrincipalID, a, mediaBuyID, packageIDs, inputs, resultByPackageID)

	if approved, err := a.ApproveOrder(ctx, mediaBuyID); err != nil {
		o.log.Warn("approve_order failed", zap.String("media_buy_id", mediaBuyID), zap.Error(err))
	} else if !approved {
		o.log.Info("adapter declined to auto-approve the order", zap.String("media_buy_id", mediaBuyID))
	}

	o.metrics.IncrementMediaBuysCreated(string(status))
	return Result{
		Status:         "completed",
		MediaBuyID:     mediaBuyID,
		BuyerRef:       mb.BuyerRef,
		MediaBuyStatus: status,
		Packages:       toPackageResults(pkgs),
	}, nil
}

// PackageUpdate is one requested per-package change within an UpdateRequest.
type PackageUpdate struct {
	PackageID      string               `json:"package_id"`
	Budget         *float64             `json:"budget,omitempty"`
	Status         *adcp.PackageStatus  `json:"status,omitempty"`
	Targeting      json.RawMessage      `json:"targeting,omitempty"`
	Pacing         *string              `json:"pacing,omitempty"`
	AddCreativeIDs []string             `json:"add_creative_ids,omitempty"`
}

// UpdateRequest is the decoded update_media_buy request body.
type UpdateRequest struct {
	MediaBuyID  string          `json:"media_buy_id"`
	PrincipalID string          `json:"-"`
	BuyerRef    *string         `json:"buyer_ref,omitempty"`
	StartTime   *string         `json:"start_time,omitempty"`
	EndTime     *string         `json:"end_time,omitempty"`
	Currency    *string         `json:"currency,omitempty"`
	TotalBudget *float64        `json:"total_budget,omitempty"`
	Packages    []PackageUpdate `json:"packages,omitempty"`
}

// Update applies campaign- and package-level changes. Each requested change
// is forwarded to the adapter as a discrete action; the first failure
// aborts and leaves earlier changes in place. A currency change mid-flight
// is rejected unless it matches the buy's existing currency. Only the
// principal that owns the media buy may update it.
func (o *Orchestrator) Update(ctx context.Context, tenant adcp.Tenant, req UpdateRequest) (Result, *adcperr.Error) {
	mb, ok := o.store.GetMediaBuy(req.MediaBuyID)
	if !ok || mb.TenantID != tenant.TenantID {
		return failResult(adcperr.NotFound("media buy %q not found", req.MediaBuyID))
	}
	if mb.PrincipalID != req.PrincipalID {
		return failResult(adcperr.Permission("principal %q does not own media buy %q", req.PrincipalID, req.MediaBuyID))
	}
	if req.Currency != nil && *req.Currency != mb.Currency {
		return failResult(adcperr.Validation("currency cannot change mid-flight: media buy %q is in %s", mb.MediaBuyID, mb.Currency))
	}

	newStart, newEnd := mb.StartTime, mb.EndTime
	if req.StartTime != nil {
		t, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			return failResult(adcperr.Newf(adcperr.CodeInvalidDatetime, "invalid start_time %q: %v", *req.StartTime, err))
		}
		newStart = t
	}
	if req.EndTime != nil {
		t, err := time.Parse(time.RFC3339, *req.EndTime)
		if err != nil {
			return failResult(adcperr.Newf(adcperr.CodeInvalidDatetime, "invalid end_time %q: %v", *req.EndTime, err))
		}
		newEnd = t
	}
	if !newEnd.After(newStart) {
		return failResult(adcperr.Validation("end_time must be after start_time"))
	}

	pkgs := o.store.GetPackages(req.MediaBuyID)
	byID := make(map[string]int, len(pkgs))
	for i, p := range pkgs {
		byID[p.PackageID] = i
	}

	flightDays := newEnd.Sub(newStart).Hours() / 24
	if limit, ok := o.store.GetCurrencyLimit(tenant.TenantID, mb.Currency); ok {
		for _, p := range pkgs {
			budget := p.Budget
			for _, pu := range req.Packages {
				if pu.PackageID == p.PackageID && pu.Budget != nil {
					budget = *pu.Budget
				}
			}
			if cerr := pricing.CheckCurrencyLimits(pricing.PackageRequest{Budget: budget, FlightDays: flightDays}, limit); cerr != nil {
				return failResult(cerr)
			}
		}
	}

	a := o.newAdapter(adapter.Config{AdapterType: tenant.AdapterType, TenantID: tenant.TenantID, PrincipalID: mb.PrincipalID})

	if req.TotalBudget != nil || req.BuyerRef != nil {
		var budget *float64
		if req.TotalBudget != nil {
			budget = req.TotalBudget
		}
		res, err := a.UpdateMediaBuy(ctx, mb.MediaBuyID, "update_campaign", "", budget, time.Now())
		if err != nil {
			return failResult(adcperr.Adapter("campaign update failed: %v", err))
		}
		if !res.Success {
			return failResult(adcperr.Adapter("campaign update rejected: %s", res.Message))
		}
	}

	for _, pu := range req.Packages {
		idx, found := byID[pu.PackageID]
		if !found {
			return failResult(adcperr.NotFound("package %q not found on media buy %q", pu.PackageID, req.MediaBuyID))
		}
		action := "update_package"
		if pu.Status != nil {
			action = string(*pu.Status)
		}
		res, err := a.UpdateMediaBuy(ctx, mb.MediaBuyID, action, pu.PackageID, pu.Budget, time.Now())
		if err != nil {
			return failResult(adcperr.Adapter("package %q update failed: %v", pu.PackageID, err))
		}
		if !res.Success {
			return failResult(adcperr.Adapter("package %q update rejected: %s", pu.PackageID, res.Message))
		}
		if pu.Budget != nil {
			pkgs[idx].Budget = *pu.Budget
		}
		if pu.Status != nil {
			pkgs[idx].Status = *pu.Status
		}
		if pu.Targeting != nil {
			pkgs[idx].Targeting = pu.Targeting
		}
		if pu.Pacing != nil {
			pkgs[idx].Pacing = *pu.Pacing
		}
		if len(pu.AddCreativeIDs) > 0 {
			pkgs[idx].CreativeIDs = append(pkgs[idx].CreativeIDs, pu.AddCreativeIDs...)
		}
	}

	if req.TotalBudget != nil {
		mb.TotalBudget = *req.TotalBudget
	}
	if req.BuyerRef != nil {
		mb.BuyerRef = *req.BuyerRef
	}
	mb.StartTime, mb.EndTime = newStart, newEnd
	hasCreatives := anyPackageHasCreatives(pkgs)
	creativesOK := allPackageCreativesApproved(o.store, tenant.TenantID, mb.PrincipalID, pkgs)
	mb.Status = computeStatus(false, hasCreatives, creativesOK, time.Now().UTC(), newStart, newEnd)

	o.persistUpdate(ctx, mb, pkgs)

	return Result{
		Status:         "completed",
		MediaBuyID:     mb.MediaBuyID,
		BuyerRef:       mb.BuyerRef,
		MediaBuyStatus: mb.Status,
		Packages:       toPackageResults(pkgs),
	}, nil
}

// callCreateMediaBuy invokes the adapter under the configured timeout and
// translates context deadline exceeded into the adapter-timeout error code.
func (o *Orchestrator) callCreateMediaBuy(ctx context.Context, adapterType string, a adapter.Port, req adapter.CreateRequest) (adapter.MediaBuyResult, *adcperr.Error) {
	callCtx := ctx
	if o.adapterTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.adapterTimeout)
		defer cancel()
	}
	started := time.Now()
	result, err := a.CreateMediaBuy(callCtx, req)
	o.metrics.RecordAdapterCallLatency(adapterType, "create_media_buy", time.Since(started))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			o.metrics.IncrementAdapterTimeouts(adapterType, "create_media_buy")
			return adapter.MediaBuyResult{}, adcperr.Timeout("adapter create_media_buy timed out: %v", err)
		}
		return adapter.MediaBuyResult{}, adcperr.Adapter("adapter create_media_buy failed: %v", err)
	}
	return result, nil
}

func (o *Orchestrator) failStep(ctx context.Context, step adcp.WorkflowStep, aerr *adcperr.Error) {
	if _, terr := o.engine.Transition(ctx, step.StepID, adcp.StepFailed, nil, aerr.Error()); terr != nil {
		o.log.Warn("failed to transition workflow step to failed", zap.String("step_id", step.StepID), zap.Error(terr))
	}
	o.metrics.IncrementMediaBuysCreated("failed")
}

func (o *Orchestrator) persistCreate(ctx context.Context, mb adcp.MediaBuy, pkgs []adcp.MediaPackage) {
	o.store.PutMediaBuy(mb)
	o.store.PutPackages(mb.MediaBuyID, pkgs)
	if o.persister == nil {
		return
	}
	if err := o.persister.InsertMediaBuy(ctx, mb); err != nil {
		o.log.Warn("failed to persist media buy", zap.String("media_buy_id", mb.MediaBuyID), zap.Error(err))
	}
	if err := o.persister.PutMediaPackages(ctx, mb.MediaBuyID, pkgs); err != nil {
		o.log.Warn("failed to persist media packages", zap.String("media_buy_id", mb.MediaBuyID), zap.Error(err))
	}
}

func (o *Orchestrator) persistUpdate(ctx context.Context, mb adcp.MediaBuy, pkgs []adcp.MediaPackage) {
	o.store.PutMediaBuy(mb)
	o.store.PutPackages(mb.MediaBuyID, pkgs)
	if o.persister == nil {
		return
	}
	if err := o.persister.UpdateMediaBuy(ctx, mb); err != nil {
		o.log.Warn("failed to persist media buy update", zap.String("media_buy_id", mb.MediaBuyID), zap.Error(err))
	}
	if err := o.persister.PutMediaPackages(ctx, mb.MediaBuyID, pkgs); err != nil {
		o.log.Warn("failed to persist media package update", zap.String("media_buy_id", mb.MediaBuyID), zap.Error(err))
	}
}

// registerInlineCreatives links already-uploaded creatives to their
// packages without any adapter call, for the pending_approval path where no
// line items exist yet to associate against.
func (o *Orchestrator) registerInlineCreatives(ctx context.Context, tenantID, principalID, mediaBuyID string, packageIDs []string, inputs []PackageInput) {
	for i, pkg := range inputs {
		for _, creativeID := range pkg.CreativeIDs {
			if _, ok := o.store.GetCreative(tenantID, principalID, creativeID); !ok {
				continue
			}
			o.putAssignment(ctx, tenantID, mediaBuyID, packageIDs[i], creativeID)
		}
	}
}

// handleInlineCreatives uploads any creative lacking a platform_creative_id,
// persists the assignment, and associates accepted creatives with their
// package's adapter-assigned line item.
func (o *Orchestrator) handleInlineCreatives(ctx context.Context, tenantID, principalID string, a adapter.Port, mediaBuyID string, packageIDs []string, inputs []PackageInput, resultByPackageID map[string]adapter.ResultPackage) {
	var lineItemIDs, platformIDs []string
	for i, pkg := range inputs {
		packageID := packageIDs[i]
		lineItemID := resultByPackageID[packageID].LineItemID
		for _, creativeID := range pkg.CreativeIDs {
			c, ok := o.store.GetCreative(tenantID, principalID, creativeID)
			if !ok {
				continue
			}
			if c.PlatformCreativeID == "" {
				width, height := c.Data.Width, c.Data.Height
				if width == 0 && height == 0 {
					width, height = o.dimensionsFromFormat(tenantID, c.Format)
				}
				statuses, err := a.AddCreativeAssets(ctx, mediaBuyID, []adapter.CreativeAsset{{
					CreativeID:     c.CreativeID,
					HostedAssetURL: c.Data.HostedAssetURL,
					Snippet:        c.Data.Snippet,
					Width:          width,
					Height:         height,
					DurationMS:     c.Data.DurationMS,
				}}, time.Now())
				if err != nil || len(statuses) == 0 || !statuses[0].Accepted {
					o.log.Warn("creative upload rejected", zap.String("creative_id", c.CreativeID))
					continue
				}
				c.PlatformCreativeID = statuses[0].PlatformCreativeID
				o.store.PutCreative(c)
				if o.persister != nil {
					if perr := o.persister.UpsertCreative(ctx, c); perr != nil {
						o.log.Warn("failed to persist uploaded creative", zap.Error(perr))
					}
				}
			}
			o.putAssignment(ctx, tenantID, mediaBuyID, packageID, creativeID)
			if lineItemID != "" && c.PlatformCreativeID != "" {
				lineItemIDs = append(lineItemIDs, lineItemID)
				platformIDs = append(platformIDs, c.PlatformCreativeID)
			}
		}
	}
	if len(lineItemIDs) > 0 {
		if _, err := a.AssociateCreatives(ctx, lineItemIDs, platformIDs); err != nil {
			o.log.Warn("creative association failed", zap.String("media_buy_id", mediaBuyID), zap.Error(err))
		}
	}
}

func (o *Orchestrator) putAssignment(ctx context.Context, tenantID, mediaBuyID, packageID, creativeID string) {
	assignment := adcp.CreativeAssignment{
		AssignmentID: "ca_" + uuid.New().String(),
		TenantID:     tenantID,
		MediaBuyID:   mediaBuyID,
		PackageID:    packageID,
		CreativeID:   creativeID,
		Weight:       100,
	}
	o.store.PutAssignment(assignment)
	if o.persister != nil {
		if perr := o.persister.InsertCreativeAssignment(ctx, assignment); perr != nil {
			o.log.Warn("failed to persist creative assignment", zap.Error(perr))
		}
	}
}

func (o *Orchestrator) dimensionsFromFormat(tenantID string, ref adcp.FormatRef) (int, int) {
	for _, f := range o.store.ListCreativeFormats(tenantID) {
		if f.FormatID == ref.ID && format.SameAgent(f.AgentURL, ref.AgentURL) {
			return f.Width, f.Height
		}
	}
	return 0, 0
}

// computeStatus is the single source of truth for MediaBuy status; adapters
// must never invent one of their own.
func computeStatus(manualApprovalRequired, hasCreatives, creativesApproved bool, now, start, end time.Time) adcp.MediaBuyStatus {
	switch {
	case manualApprovalRequired:
		return adcp.MediaBuyPendingApproval
	case !hasCreatives || !creativesApproved:
		return adcp.MediaBuyNeedsCreatives
	case now.Before(start):
		return adcp.MediaBuyReady
	case now.After(end):
		return adcp.MediaBuyCompleted
	default:
		return adcp.MediaBuyActive
	}
}

func packageStatusFor(mbStatus adcp.MediaBuyStatus) adcp.PackageStatus {
	switch mbStatus {
	case adcp.MediaBuyActive:
		return adcp.PackageActive
	case adcp.MediaBuyCompleted:
		return adcp.PackageCompleted
	case adcp.MediaBuyPendingApproval, adcp.MediaBuyNeedsCreatives:
		return adcp.PackageDraft
	default:
		return adcp.PackageDraft
	}
}

func resolveFlightWindow(startStr, endStr string, now time.Time) (time.Time, time.Time, *adcperr.Error) {
	var start time.Time
	asap := startStr == "" || strings.EqualFold(startStr, "asap")
	if asap {
		start = now
	} else {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return time.Time{}, time.Time{}, adcperr.Newf(adcperr.CodeInvalidDatetime, "invalid start_time %q: %v", startStr, err)
		}
		if t.Before(now.Add(-time.Minute)) {
			return time.Time{}, time.Time{}, adcperr.Validation("start_time %s is in the past", startStr)
		}
		start = t
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, adcperr.Newf(adcperr.CodeInvalidDatetime, "invalid end_time %q: %v", endStr, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, adcperr.Validation("end_time must be after start_time")
	}
	return start, end, nil
}

func resolveCurrency(req CreateRequest, tenant adcp.Tenant, s *store.Store) (string, *adcperr.Error) {
	currency := ""
	if len(req.Packages) > 0 {
		pkg := req.Packages[0]
		if product, ok := s.GetProduct(tenant.TenantID, pkg.ProductID); ok {
			if pkg.PricingOptionID != "" {
				for _, opt := range product.PricingOptions {
					id := opt.PricingOptionID
					if id == "" {
						id = opt.CompositeID()
					}
					if id == pkg.PricingOptionID {
						currency = opt.Currency
						break
					}
				}
			}
			if currency == "" && len(product.PricingOptions) > 0 {
				currency = product.PricingOptions[0].Currency
			}
		}
	}
	if currency == "" {
		currency = req.Currency
	}
	if currency == "" {
		currency = "USD"
	}
	if !currencySupported(s, tenant.TenantID, currency) {
		return "", adcperr.Newf(adcperr.CodeCurrencyNotSupported, "tenant %q does not support currency %q", tenant.TenantID, currency)
	}
	return currency, nil
}

// currencySupported mirrors the check the setup checklist uses: a tenant
// that has opted into specific currencies must have a limit row for this
// one; a tenant with no currency limits configured at all is unrestricted.
func currencySupported(s *store.Store, tenantID, currency string) bool {
	limits := s.ListCurrencyLimits(tenantID)
	if len(limits) == 0 {
		return true
	}
	for _, l := range limits {
		if l.Currency == currency {
			return true
		}
	}
	return false
}

func duplicateProductID(inputs []PackageInput) string {
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if seen[in.ProductID] {
			return in.ProductID
		}
		seen[in.ProductID] = true
	}
	return ""
}

func anyHasCreatives(inputs []PackageInput) bool {
	for _, in := range inputs {
		if len(in.CreativeIDs) > 0 {
			return true
		}
	}
	return false
}

func anyPackageHasCreatives(pkgs []adcp.MediaPackage) bool {
	for _, p := range pkgs {
		if len(p.CreativeIDs) > 0 {
			return true
		}
	}
	return false
}

// allCreativesApproved reports whether every creative referenced across
// inputs is approved. A creative_id that doesn't resolve counts as
// unapproved rather than being skipped.
func allCreativesApproved(s *store.Store, tenantID, principalID string, inputs []PackageInput) bool {
	for _, in := range inputs {
		for _, creativeID := range in.CreativeIDs {
			c, ok := s.GetCreative(tenantID, principalID, creativeID)
			if !ok || c.Status != adcp.CreativeApproved {
				return false
			}
		}
	}
	return true
}

// allPackageCreativesApproved is allCreativesApproved's counterpart for
// already-persisted MediaPackage records, used by Update.
func allPackageCreativesApproved(s *store.Store, tenantID, principalID string, pkgs []adcp.MediaPackage) bool {
	for _, p := range pkgs {
		for _, creativeID := range p.CreativeIDs {
			c, ok := s.GetCreative(tenantID, principalID, creativeID)
			if !ok || c.Status != adcp.CreativeApproved {
				return false
			}
		}
	}
	return true
}

func totalBudget(inputs []PackageInput) float64 {
	var total float64
	for _, in := range inputs {
		total += in.Budget
	}
	return total
}

func buildMediaPackages(tenantID, mediaBuyID string, packageIDs []string, inputs []PackageInput, resolved []pricing.Resolved, status adcp.PackageStatus) []adcp.MediaPackage {
	pkgs := make([]adcp.MediaPackage, len(inputs))
	for i, in := range inputs {
		pkgs[i] = adcp.MediaPackage{
			PackageID:     packageIDs[i],
			MediaBuyID:    mediaBuyID,
			TenantID:      tenantID,
			ProductID:     in.ProductID,
			Budget:        in.Budget,
			PricingModel:  resolved[i].PricingModel,
			BidPrice:      resolved[i].BidPrice,
			Targeting:     in.Targeting,
			CreativeIDs:   in.CreativeIDs,
			Status:        status,
			Pacing:        "even",
			PackageConfig: in.PackageConfig,
		}
	}
	return pkgs
}

func toPackageResults(pkgs []adcp.MediaPackage) []PackageResult {
	out := make([]PackageResult, len(pkgs))
	for i, p := range pkgs {
		out[i] = PackageResult{
			PackageID:    p.PackageID,
			ProductID:    p.ProductID,
			Budget:       p.Budget,
			PricingModel: p.PricingModel,
			BidPrice:     p.BidPrice,
			Status:       p.Status,
		}
	}
	return out
}

func toPricingInfo(r pricing.Resolved) adapter.PricingInfo {
	return adapter.PricingInfo{
		PricingModel: r.PricingModel,
		Rate:         r.Rate,
		Currency:     r.Currency,
		IsFixed:      r.IsFixed,
		BidPrice:     r.BidPrice,
	}
}

// pricingInfoFromPackage rebuilds adapter pricing info from a persisted
// MediaPackage for re-execution, matching its stored pricing_model back to
// the product's current pricing options to recover rate/is_fixed.
func pricingInfoFromPackage(pkg adcp.MediaPackage, product adcp.Product, currency string) adapter.PricingInfo {
	info := adapter.PricingInfo{PricingModel: pkg.PricingModel, Currency: currency, BidPrice: pkg.BidPrice}
	for _, opt := range product.PricingOptions {
		if strings.EqualFold(opt.PricingModel, pkg.PricingModel) && opt.Currency == currency {
			info.Rate = opt.Rate
			info.IsFixed = opt.IsFixed
			break
		}
	}
	return info
}

func genMediaBuyID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return "mb_" + hex.EncodeToString(b)
}

func genPackageID(productID string, idx int) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("pkg_%s_%s_%d", productID, hex.EncodeToString(b), idx)
}
