// Package creative implements sync_creatives and list_creatives: upsert of
// a principal's creative library, approval-mode branching, package
// assignment, and the background AI review path for ai-powered tenants.
package creative

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/format"
	"github.com/adcp/salesagent/internal/observability"
	"github.com/adcp/salesagent/internal/store"
	"github.com/adcp/salesagent/internal/workflow"
)

// Persister durably records a creative and its assignments inside a single
// per-creative savepoint. *db.Postgres satisfies this without an adapter
// shim. A nil Persister leaves durable storage untouched, which is how
// package tests exercise the pipeline without a live database.
type Persister interface {
	SyncCreativeTx(ctx context.Context, c adcp.Creative, assignments []adcp.CreativeAssignment) error
}

// Previewer validates a creative against the format registry before any
// write lands — the "creative-agent registry" check in the spec. The mock
// implementation checks the format is known to the tenant; a production
// deployment would call the creative agent's preview_creative operation.
type Previewer interface {
	Preview(ctx context.Context, tenantID string, ref adcp.FormatRef, payload adcp.CreativePayload) (ok bool, reason string, err error)
}

// RegistryPreviewer accepts any format resolving against the merged
// standard-plus-tenant format registry (format.MergeFormats).
type RegistryPreviewer struct {
	Store *store.Store
}

func (p RegistryPreviewer) Preview(ctx context.Context, tenantID string, ref adcp.FormatRef, payload adcp.CreativePayload) (bool, string, error) {
	if format.Known(tenantID, p.Store.ListCreativeFormats(tenantID), ref) {
		return true, "", nil
	}
	return false, fmt.Sprintf("format %q not registered for agent %q", ref.ID, ref.AgentURL), nil
}

// Reviewer runs the ai-powered approval path in the background. Production
// deployments wire this to a Gemini-backed moderation call; StaticReviewer
// is used by tests and by tenants without a configured review model.
type Reviewer interface {
	Review(ctx context.Context, c adcp.Creative) (approved bool, reason string, err error)
}

// StaticReviewer always returns a fixed verdict.
type StaticReviewer struct {
	Approved bool
	Reason   string
}

func (r StaticReviewer) Review(ctx context.Context, c adcp.Creative) (bool, string, error) {
	return r.Approved, r.Reason, nil
}

// Input is one creative as submitted to sync_creatives.
type Input struct {
	CreativeID string                `json:"creative_id"`
	Name       string                `json:"name"`
	Format     adcp.FormatRef        `json:"format"`
	Data       adcp.CreativePayload  `json:"data"`
	Tags       []string              `json:"tags,omitempty"`
	MediaBuyID string                `json:"media_buy_id,omitempty"`
	BuyerRef   string                `json:"buyer_ref,omitempty"`
}

// AssignmentInput requests linking one creative to a set of packages.
type AssignmentInput struct {
	CreativeID string   `json:"creative_id"`
	PackageIDs []string `json:"package_ids"`
}

// SyncRequest is the decoded sync_creatives request body.
type SyncRequest struct {
	TenantID               string                        `json:"-"`
	PrincipalID            string                        `json:"-"`
	ContextID              string                        `json:"context_id,omitempty"`
	Creatives              []Input                       `json:"creatives"`
	Patch                  bool                          `json:"patch,omitempty"`
	Assignments            []AssignmentInput             `json:"assignments,omitempty"`
	DeleteMissing          bool                          `json:"delete_missing,omitempty"`
	DryRun                 bool                          `json:"dry_run,omitempty"`
	ValidationMode         string                        `json:"validation_mode,omitempty"` // "strict" (default) | "lenient"
	PushNotificationConfig *adcp.PushNotificationConfig  `json:"push_notification_config,omitempty"`
}

// Result is one creative's outcome in a sync_creatives response.
type Result struct {
	CreativeID string               `json:"creative_id"`
	Action     string               `json:"action"` // created | updated | unchanged | failed
	Status     adcp.CreativeStatus  `json:"status,omitempty"`
	Changes    []string             `json:"changes,omitempty"`
	Error      *adcperr.Error       `json:"error,omitempty"`
}

// Summary aggregates a SyncResponse's per-creative actions.
type Summary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// SyncResponse is what Sync returns to the dispatcher.
type SyncResponse struct {
	Status    string   `json:"status"`
	ContextID string   `json:"context_id,omitempty"`
	Results   []Result `json:"results"`
	Summary   Summary  `json:"summary"`
}

// Service runs sync_creatives and list_creatives against the shared store.
type Service struct {
	store     *store.Store
	persister Persister
	engine    *workflow.Engine
	previewer Previewer
	reviewer  Reviewer
	metrics   observability.MetricsRegistry
	pool      *workerPool
	log       *zap.Logger
}

func NewService(
	s *store.Store,
	persister Persister,
	engine *workflow.Engine,
	previewer Previewer,
	reviewer Reviewer,
	metrics observability.MetricsRegistry,
	aiReviewConcurrency int,
	log *zap.Logger,
) *Service {
	if previewer == nil {
		previewer = RegistryPreviewer{Store: s}
	}
	if reviewer == nil {
		reviewer = StaticReviewer{Approved: true}
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if aiReviewConcurrency <= 0 {
		aiReviewConcurrency = 4
	}
	return &Service{
		store:     s,
		persister: persister,
		engine:    engine,
		previewer: previewer,
		reviewer:  reviewer,
		metrics:   metrics,
		pool:      newWorkerPool(aiReviewConcurrency),
		log:       log,
	}
}

// Close stops the background AI-review worker pool.
func (s *Service) Close() { s.pool.close() }

// Sync runs the full sync_creatives pipeline described in spec §4.7: per-
// creative structural validation and registry preview before any write,
// upsert with per-creative savepoint isolation, approval-mode branching,
// then package assignment.
func (s *Service) Sync(ctx context.Context, tenant adcp.Tenant, req SyncRequest) (SyncResponse, *adcperr.Error) {
	if req.DeleteMissing {
		return SyncResponse{}, adcperr.Validation("delete_missing is not supported")
	}
	validationMode := req.ValidationMode
	if validationMode == "" {
		validationMode = "strict"
	}
	if validationMode != "strict" && validationMode != "lenient" {
		return SyncResponse{}, adcperr.Validation("unknown validation_mode %q", validationMode)
	}

	wfCtx, werr := s.engine.ResolveContext(req.ContextID, req.TenantID, req.PrincipalID)
	if werr != nil {
		return SyncResponse{}, werr
	}

	if req.PushNotificationConfig != nil {
		cfg := *req.PushNotificationConfig
		cfg.TenantID, cfg.PrincipalID = req.TenantID, req.PrincipalID
		s.engine.UpsertPushConfig(cfg)
	}

	results := make([]Result, 0, len(req.Creatives))
	var summary Summary
	for _, in := range req.Creatives {
		res := s.syncOne(ctx, tenant, req.TenantID, req.PrincipalID, in, req.Patch, req.DryRun, wfCtx)
		results = append(results, res)
		s.metrics.IncrementCreativeSyncActions(res.Action)
		switch res.Action {
		case "created":
			summary.Created++
		case "updated":
			summary.Updated++
		case "unchanged":
			summary.Unchanged++
		case "failed":
			summary.Failed++
		}
	}

	for _, a := range req.Assignments {
		s.applyAssignments(ctx, req.TenantID, req.PrincipalID, a, validationMode, &results)
	}

	return SyncResponse{Status: "completed", ContextID: wfCtx.ContextID, Results: results, Summary: summary}, nil
}

func (s *Service) syncOne(ctx context.Context, tenant adcp.Tenant, tenantID, principalID string, in Input, patch, dryRun bool, wfCtx adcp.Context) Result {
	if verr := validateStructure(in); verr != nil {
		return Result{CreativeID: in.CreativeID, Action: "failed", Error: verr}
	}

	existing, exists := adcp.Creative{}, false
	if in.CreativeID != "" {
		existing, exists = s.store.GetCreative(tenantID, principalID, in.CreativeID)
	}

	merged := mergeCreative(existing, exists, in, patch)
	if merged.CreativeID == "" {
		merged.CreativeID = "cr_" + uuid.New().String()
	}
	merged.TenantID, merged.PrincipalID = tenantID, principalID

	ok, reason, err := s.previewer.Preview(ctx, tenantID, merged.Format, merged.Data)
	if err != nil {
		return Result{CreativeID: merged.CreativeID, Action: "failed", Error: adcperr.Newf(adcperr.CodeFormatValidation, "creative preview failed: %v", err)}
	}
	if !ok {
		return Result{CreativeID: merged.CreativeID, Action: "failed", Error: adcperr.Newf(adcperr.CodeFormatValidation, "%s", reason)}
	}

	changes := diffCreative(existing, exists, merged)
	action := "updated"
	switch {
	case !exists:
		action = "created"
	case len(changes) == 0:
		action = "unchanged"
	}

	if dryRun {
		return Result{CreativeID: merged.CreativeID, Action: action, Status: merged.Status, Changes: changes}
	}

	if action != "unchanged" {
		now := time.Now()
		if !exists {
			merged.CreatedAt = now
		}
		merged.UpdatedAt = now
		merged = s.applyApprovalMode(ctx, tenant, merged, wfCtx)
	} else {
		merged.Status = existing.Status
	}

	s.store.PutCreative(merged)
	if s.persister != nil && action != "unchanged" {
		if perr := s.persister.SyncCreativeTx(ctx, merged, nil); perr != nil {
			s.log.Warn("failed to persist creative", zap.String("creative_id", merged.CreativeID), zap.Error(perr))
		}
	}

	return Result{CreativeID: merged.CreativeID, Action: action, Status: merged.Status, Changes: changes}
}

// applyApprovalMode sets merged.Status per the tenant's ApprovalMode and
// fires the require-human / ai-powered side effects.
func (s *Service) applyApprovalMode(ctx context.Context, tenant adcp.Tenant, c adcp.Creative, wfCtx adcp.Context) adcp.Creative {
	switch tenant.ApprovalMode {
	case adcp.ApprovalAutoApprove:
		c.Status = adcp.CreativeApproved
	case adcp.ApprovalAIPowered:
		c.Status = adcp.CreativePending
		step := s.engine.StartStep(wfCtx, adcp.StepCreativeApproval, adcp.OwnerSystem, "sync_creatives", nil)
		s.engine.MapObject(step, "creative", c.CreativeID, adcp.MappingCreate)
		s.pool.submit(func() { s.runAIReview(context.Background(), tenant.TenantID, c) })
	default: // require-human
		c.Status = adcp.CreativePending
		step := s.engine.StartStep(wfCtx, adcp.StepCreativeApproval, adcp.OwnerPublisher, "sync_creatives", nil)
		s.engine.MapObject(step, "creative", c.CreativeID, adcp.MappingCreate)
		if _, err := s.engine.Transition(ctx, step.StepID, adcp.StepRequiresApproval, nil, ""); err != nil {
			s.log.Warn("creative approval notification failed", zap.String("creative_id", c.CreativeID), zap.Error(err))
		}
	}
	return c
}

// runAIReview executes on the bounded worker pool; it never blocks the
// calling request. The result is reconciled by transitioning whatever
// creative_approval step exists for this creative and persisting the
// resulting status, then letting the workflow engine's own notifier fire.
func (s *Service) runAIReview(ctx context.Context, tenantID string, c adcp.Creative) {
	approved, reason, err := s.reviewer.Review(ctx, c)
	if err != nil {
		s.log.Warn("ai creative review failed", zap.String("creative_id", c.CreativeID), zap.Error(err))
		return
	}
	c.Status = adcp.CreativeRejected
	if approved {
		c.Status = adcp.CreativeApproved
	}
	s.store.PutCreative(c)
	if s.persister != nil {
		if perr := s.persister.SyncCreativeTx(ctx, c, nil); perr != nil {
			s.log.Warn("failed to persist ai review result", zap.String("creative_id", c.CreativeID), zap.Error(perr))
		}
	}
	for _, m := range s.store.GetMappingsForObject("creative", c.CreativeID) {
		if _, aerr := s.engine.Transition(ctx, m.StepID, adcp.StepCompleted, []byte(`{"reason":"`+reason+`"}`), ""); aerr != nil {
			s.log.Warn("ai review step transition failed", zap.String("step_id", m.StepID), zap.Error(aerr))
		}
	}
}

// ResolveApproval applies a human decision made via complete_task to a
// creative left pending by the require-human approval path, persists the
// result, and transitions every creative_approval step mapped to it.
func (s *Service) ResolveApproval(ctx context.Context, tenantID, creativeID, principalID string, approved bool, reason string) *adcperr.Error {
	c, ok := s.store.GetCreative(tenantID, principalID, creativeID)
	if !ok {
		return adcperr.Newf(adcperr.CodeCreativesNotFound, "creative %q not found", creativeID)
	}
	c.Status = adcp.CreativeRejected
	if approved {
		c.Status = adcp.CreativeApproved
	}
	c.UpdatedAt = time.Now()
	s.store.PutCreative(c)
	if s.persister != nil {
		if perr := s.persister.SyncCreativeTx(ctx, c, nil); perr != nil {
			s.log.Warn("failed to persist creative approval decision", zap.String("creative_id", creativeID), zap.Error(perr))
		}
	}
	for _, m := range s.store.GetMappingsForObject("creative", creativeID) {
		if _, aerr := s.engine.Transition(ctx, m.StepID, adcp.StepCompleted, []byte(`{"reason":"`+reason+`"}`), ""); aerr != nil {
			s.log.Warn("creative approval step transition failed", zap.String("step_id", m.StepID), zap.Error(aerr))
		}
	}
	return nil
}

func (s *Service) applyAssignments(ctx context.Context, tenantID, principalID string, a AssignmentInput, validationMode string, results *[]Result) {
	c, ok := s.store.GetCreative(tenantID, principalID, a.CreativeID)
	if !ok {
		*results = append(*results, Result{CreativeID: a.CreativeID, Action: "failed",
			Error: adcperr.Newf(adcperr.CodeCreativesNotFound, "creative %q not found", a.CreativeID)})
		return
	}

	var accepted []adcp.CreativeAssignment
	for _, packageID := range a.PackageIDs {
		mediaBuyID := c.MediaBuyID
		found := false
		for _, pkg := range s.store.GetPackages(mediaBuyID) {
			if pkg.PackageID == packageID {
				found = true
				break
			}
		}
		if !found {
			if validationMode == "strict" {
				*results = append(*results, Result{CreativeID: a.CreativeID, Action: "failed",
					Error: adcperr.Validation("unknown package_id %q", packageID)})
				continue
			}
			continue // lenient: skip unknown package silently
		}
		assignment := adcp.CreativeAssignment{
			AssignmentID: "ca_" + uuid.New().String(),
			TenantID:     tenantID,
			MediaBuyID:   mediaBuyID,
			PackageID:    packageID,
			CreativeID:   a.CreativeID,
			Weight:       100,
		}
		s.store.PutAssignment(assignment)
		accepted = append(accepted, assignment)
	}
	if len(accepted) > 0 && s.persister != nil {
		if perr := s.persister.SyncCreativeTx(ctx, c, accepted); perr != nil {
			s.log.Warn("failed to persist creative assignments", zap.String("creative_id", a.CreativeID), zap.Error(perr))
		}
	}
}

func validateStructure(in Input) *adcperr.Error {
	if in.Name == "" {
		return adcperr.Validation("creative name is required")
	}
	if in.Format.ID == "" || in.Format.AgentURL == "" {
		return adcperr.Newf(adcperr.CodeFormatValidation, "creative format reference is required")
	}
	hasSnippet := in.Data.Snippet != ""
	hasHosted := in.Data.IsHosted()
	if hasSnippet == hasHosted {
		return adcperr.Newf(adcperr.CodeFormatValidation, "creative must carry exactly one of snippet or hosted_asset_url")
	}
	return nil
}

func mergeCreative(existing adcp.Creative, exists bool, in Input, patch bool) adcp.Creative {
	if !exists || !patch {
		return adcp.Creative{
			CreativeID: in.CreativeID,
			Name:       in.Name,
			Format:     in.Format,
			Data:       in.Data,
			Tags:       in.Tags,
			MediaBuyID: in.MediaBuyID,
			BuyerRef:   in.BuyerRef,
			CreatedAt:  existing.CreatedAt,
		}
	}
	merged := existing
	if in.Name != "" {
		merged.Name = in.Name
	}
	if in.Format.ID != "" {
		merged.Format = in.Format
	}
	if in.Data.Snippet != "" || in.Data.IsHosted() {
		merged.Data = in.Data
	}
	if in.Tags != nil {
		merged.Tags = in.Tags
	}
	if in.MediaBuyID != "" {
		merged.MediaBuyID = in.MediaBuyID
	}
	if in.BuyerRef != "" {
		merged.BuyerRef = in.BuyerRef
	}
	return merged
}

func diffCreative(existing adcp.Creative, exists bool, merged adcp.Creative) []string {
	if !exists {
		return []string{"created"}
	}
	var changes []string
	if existing.Name != merged.Name {
		changes = append(changes, "name")
	}
	if existing.Format != merged.Format {
		changes = append(changes, "format")
	}
	if existing.Data != merged.Data {
		changes = append(changes, "data")
	}
	if existing.MediaBuyID != merged.MediaBuyID {
		changes = append(changes, "media_buy_id")
	}
	if existing.BuyerRef != merged.BuyerRef {
		changes = append(changes, "buyer_ref")
	}
	if !equalTags(existing.Tags, merged.Tags) {
		changes = append(changes, "tags")
	}
	return changes
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ListFilter narrows list_creatives to a subset of the caller's library.
type ListFilter struct {
	Status     adcp.CreativeStatus `json:"status,omitempty"`
	FormatID   string              `json:"format_id,omitempty"`
	Tags       []string            `json:"tags,omitempty"`
	Text       string              `json:"text,omitempty"`
	MediaBuyID string              `json:"media_buy_id,omitempty"`
	BuyerRef   string              `json:"buyer_ref,omitempty"`
	Since      time.Time           `json:"since,omitempty"`
	Until      time.Time           `json:"until,omitempty"`
	SortBy     string              `json:"sort_by,omitempty"` // created_at (default) | name | status
	Page       int                 `json:"page,omitempty"`
	Limit      int                 `json:"limit,omitempty"`
}

// ListResponse is the paginated list_creatives result.
type ListResponse struct {
	Creatives  []adcp.Creative `json:"creatives"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	HasMore    bool            `json:"has_more"`
	TotalPages int             `json:"total_pages"`
}

// List returns the calling principal's creatives only — list_creatives never
// crosses the principal boundary even for identically-named creatives owned
// by another principal of the same tenant.
func (s *Service) List(tenantID, principalID string, f ListFilter) ListResponse {
	all := s.store.ListCreativesByPrincipal(tenantID, principalID)

	filtered := make([]adcp.Creative, 0, len(all))
	for _, c := range all {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.FormatID != "" && c.Format.ID != f.FormatID {
			continue
		}
		if f.MediaBuyID != "" && c.MediaBuyID != f.MediaBuyID {
			continue
		}
		if f.BuyerRef != "" && c.BuyerRef != f.BuyerRef {
			continue
		}
		if len(f.Tags) > 0 && !hasAllTags(c.Tags, f.Tags) {
			continue
		}
		if f.Text != "" && !containsFold(c.Name, f.Text) {
			continue
		}
		if !f.Since.IsZero() && c.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && c.CreatedAt.After(f.Until) {
			continue
		}
		filtered = append(filtered, c)
	}

	sortCreatives(filtered, f.SortBy)

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	total := len(filtered)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}
	return ListResponse{
		Creatives:  filtered[start:end],
		Total:      total,
		Page:       page,
		Limit:      limit,
		HasMore:    end < total,
		TotalPages: totalPages,
	}
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func sortCreatives(cs []adcp.Creative, sortBy string) {
	switch sortBy {
	case "name":
		sort.Slice(cs, func(i, j int) bool { return cs[i].Name < cs[j].Name })
	case "status":
		sort.Slice(cs, func(i, j int) bool { return cs[i].Status < cs[j].Status })
	default:
		sort.Slice(cs, func(i, j int) bool { return cs[i].CreatedAt.Before(cs[j].CreatedAt) })
	}
}
