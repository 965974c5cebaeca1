package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/delivery"
	"github.com/adcp/salesagent/internal/mediabuy"
	"github.com/adcp/salesagent/internal/middleware"
	"github.com/adcp/salesagent/internal/tenant"
)

// CreateMediaBuyOutput wraps mediabuy.Result with the envelope every tool
// response carries.
type CreateMediaBuyOutput struct {
	Envelope
	mediabuy.Result
}

// CreateMediaBuy runs the create_media_buy pipeline (§4.6): pricing
// resolution, policy/setup gating, approval-mode determination, adapter
// dispatch, and persistence.
func (s *Server) CreateMediaBuy(ctx context.Context, in mediabuy.CreateRequest) CreateMediaBuyOutput {
	return dispatch(s, ctx, "create_media_buy",
		func(aerr *adcperr.Error) CreateMediaBuyOutput {
			return CreateMediaBuyOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (CreateMediaBuyOutput, bool, string) {
			req := in
			req.PrincipalID = res.PrincipalID
			if req.ContextID == "" {
				req.ContextID = middleware.RequestMetaFromContext(ctx).ContextID
			}
			if raw, err := json.Marshal(in); err == nil {
				req.RawRequest = raw
			}
			result, aerr := s.Orchestrator.Create(ctx, res.Tenant, req)
			return mediaBuyOutcome(result, aerr, "buyer_ref="+in.BuyerRef)
		},
	)
}

// ExecuteApprovedMediaBuyInput is the decoded execute_approved_media_buy
// callback body. This is an Admin-UI-facing HTTP callback, not part of the
// MCP tool surface (§6), so it is invoked over gorilla/mux rather than
// mcp.AddTool.
type ExecuteApprovedMediaBuyInput struct {
	MediaBuyID string `json:"media_buy_id"`
	TenantID   string `json:"tenant_id"`
}

// ExecuteApprovedMediaBuy reconstructs a manually-approved create request
// from its persisted raw_request and runs the adapter-dispatch tail of the
// create pipeline (§4.6.2).
func (s *Server) ExecuteApprovedMediaBuy(ctx context.Context, in ExecuteApprovedMediaBuyInput) CreateMediaBuyOutput {
	t, ok := s.Store.GetTenant(in.TenantID)
	if !ok {
		verr := adcperr.NotFound("tenant %q not found", in.TenantID)
		return CreateMediaBuyOutput{Envelope: failedEnvelope(verr)}
	}
	result, aerr := s.Orchestrator.ExecuteApproved(ctx, t, in.MediaBuyID)
	out, success, detail := mediaBuyOutcome(result, aerr, "media_buy_id="+in.MediaBuyID)
	principal := "system"
	if mb, ok := s.Store.GetMediaBuy(in.MediaBuyID); ok {
		principal = mb.PrincipalID
	}
	s.audit(ctx, in.TenantID, principal, "execute_approved_media_buy", success, detail, "")
	s.Metrics.IncrementToolCalls("execute_approved_media_buy", out.Status)
	return out
}

// UpdateMediaBuyOutput wraps mediabuy.Result with the envelope every tool
// response carries.
type UpdateMediaBuyOutput struct {
	Envelope
	mediabuy.Result
}

// UpdateMediaBuy runs campaign- and package-level changes (§4.6.3). Only
// the principal that owns the media buy may update it.
func (s *Server) UpdateMediaBuy(ctx context.Context, in mediabuy.UpdateRequest) UpdateMediaBuyOutput {
	return dispatch(s, ctx, "update_media_buy",
		func(aerr *adcperr.Error) UpdateMediaBuyOutput {
			return UpdateMediaBuyOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (UpdateMediaBuyOutput, bool, string) {
			req := in
			req.PrincipalID = res.PrincipalID
			result, aerr := s.Orchestrator.Update(ctx, res.Tenant, req)
			out, success, detail := mediaBuyOutcome(result, aerr, "media_buy_id="+in.MediaBuyID)
			return UpdateMediaBuyOutput(out), success, detail
		},
	)
}

func mediaBuyOutcome(result mediabuy.Result, aerr *adcperr.Error, detail string) (CreateMediaBuyOutput, bool, string) {
	status := result.Status
	if status == "" {
		status = "failed"
	}
	out := CreateMediaBuyOutput{Envelope: Envelope{Status: status, Errors: result.Errors}, Result: result}
	if aerr != nil {
		out.Envelope = failedEnvelope(aerr)
		return out, false, aerr.Error()
	}
	return out, status != "failed", detail
}

// GetMediaBuyDeliveryOutput wraps delivery.Response with the envelope every
// tool response carries.
type GetMediaBuyDeliveryOutput struct {
	Envelope
	delivery.Response
}

// GetMediaBuyDelivery answers get_media_buy_delivery (§4.8), scoped to the
// calling principal's media buys.
func (s *Server) GetMediaBuyDelivery(ctx context.Context, in delivery.Request) GetMediaBuyDeliveryOutput {
	return dispatch(s, ctx, "get_media_buy_delivery",
		func(aerr *adcperr.Error) GetMediaBuyDeliveryOutput {
			return GetMediaBuyDeliveryOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (GetMediaBuyDeliveryOutput, bool, string) {
			resp, aerr := s.Delivery.GetDelivery(ctx, res.Tenant, res.PrincipalID, in)
			if aerr != nil {
				return GetMediaBuyDeliveryOutput{Envelope: failedEnvelope(aerr)}, false, aerr.Error()
			}
			out := GetMediaBuyDeliveryOutput{Envelope: completedEnvelope(), Response: resp}
			return out, true, ""
		},
	)
}

// UpdatePerformanceIndexInput is the decoded update_performance_index
// request body.
type UpdatePerformanceIndexInput struct {
	MediaBuyID string  `json:"media_buy_id"`
	ProductID  string  `json:"product_id"`
	Country    string  `json:"country,omitempty"`
	FormatID   string  `json:"format_id,omitempty"`
	Score      float64 `json:"performance_index"`
}

// UpdatePerformanceIndexOutput is what update_performance_index returns.
type UpdatePerformanceIndexOutput struct {
	Envelope
}

// UpdatePerformanceIndex fans a per-product optimization score into the
// adapter and the FormatPerformanceMetrics rolling aggregate (§4.8).
func (s *Server) UpdatePerformanceIndex(ctx context.Context, in UpdatePerformanceIndexInput) UpdatePerformanceIndexOutput {
	return dispatch(s, ctx, "update_performance_index",
		func(aerr *adcperr.Error) UpdatePerformanceIndexOutput {
			return UpdatePerformanceIndexOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (UpdatePerformanceIndexOutput, bool, string) {
			mb, ok := s.Store.GetMediaBuy(in.MediaBuyID)
			if !ok || mb.TenantID != res.Tenant.TenantID || mb.PrincipalID != res.PrincipalID {
				nerr := adcperr.NotFound("media buy %q not found", in.MediaBuyID)
				return UpdatePerformanceIndexOutput{Envelope: failedEnvelope(nerr)}, false, nerr.Error()
			}
			if aerr := s.Delivery.UpdatePerformanceIndex(ctx, res.Tenant, in.MediaBuyID, in.ProductID, in.Country, in.FormatID, in.Score); aerr != nil {
				return UpdatePerformanceIndexOutput{Envelope: failedEnvelope(aerr)}, false, aerr.Error()
			}
			return UpdatePerformanceIndexOutput{Envelope: completedEnvelope()}, true, "score applied"
		},
	)
}
