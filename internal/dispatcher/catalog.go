package dispatcher

import (
	"context"
	"strconv"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/format"
	"github.com/adcp/salesagent/internal/middleware"
	"github.com/adcp/salesagent/internal/pricing"
	"github.com/adcp/salesagent/internal/tenant"
)

// ProductFilters narrows get_products to a delivery type, a set of
// formats, or a reporting country used only for pricing enrichment.
type ProductFilters struct {
	DeliveryType string   `json:"delivery_type,omitempty"`
	FormatIDs    []string `json:"format_ids,omitempty"`
	Country      string   `json:"country,omitempty"`
}

// GetProductsInput is the decoded get_products request body.
type GetProductsInput struct {
	PromotedOffering string          `json:"promoted_offering,omitempty"`
	Filters          *ProductFilters `json:"filters,omitempty"`
}

// GetProductsOutput is what get_products returns.
type GetProductsOutput struct {
	Envelope
	Products []adcp.Product `json:"products"`
}

// GetProducts is a discovery operation: it proceeds without a bearer, and
// anonymous callers get pricing stripped from every returned product.
func (s *Server) GetProducts(ctx context.Context, in GetProductsInput) GetProductsOutput {
	return dispatch(s, ctx, "get_products",
		func(aerr *adcperr.Error) GetProductsOutput {
			return GetProductsOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (GetProductsOutput, bool, string) {
			all := s.Store.ListProducts(res.Tenant.TenantID)
			country := ""
			if in.Filters != nil {
				country = in.Filters.Country
			}

			products := make([]adcp.Product, 0, len(all))
			for _, p := range all {
				if in.Filters != nil && in.Filters.DeliveryType != "" && string(p.DeliveryType) != in.Filters.DeliveryType {
					continue
				}
				if in.Filters != nil && len(in.Filters.FormatIDs) > 0 && !productHasAnyFormat(p, in.Filters.FormatIDs) {
					continue
				}
				if res.Tenant.DynamicPricingEnabled {
					p = pricing.EnrichProduct(ctx, s.Enricher, res.Tenant.TenantID, country, p)
				}
				if res.PrincipalID == "" {
					p.PricingOptions = nil
				}
				products = append(products, p)
			}
			out := GetProductsOutput{Envelope: completedEnvelope(), Products: products}
			return out, true, "products_returned=" + strconv.Itoa(len(products))
		},
	)
}

func productHasAnyFormat(p adcp.Product, wanted []string) bool {
	for _, f := range p.Formats {
		for _, w := range wanted {
			if f.ID == w {
				return true
			}
		}
	}
	return false
}

// ListCreativeFormatsInput is the decoded list_creative_formats request
// body; it carries no filters today.
type ListCreativeFormatsInput struct{}

// ListCreativeFormatsOutput is what list_creative_formats returns.
type ListCreativeFormatsOutput struct {
	Envelope
	Formats []adcp.CreativeFormat `json:"formats"`
}

// ListCreativeFormats is the second discovery operation: it merges the
// shared registry with the tenant's custom overrides and proceeds without
// a bearer.
func (s *Server) ListCreativeFormats(ctx context.Context, in ListCreativeFormatsInput) ListCreativeFormatsOutput {
	return dispatch(s, ctx, "list_creative_formats",
		func(aerr *adcperr.Error) ListCreativeFormatsOutput {
			return ListCreativeFormatsOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (ListCreativeFormatsOutput, bool, string) {
			merged := format.MergeFormats(res.Tenant.TenantID, s.Store.ListCreativeFormats(res.Tenant.TenantID))
			out := ListCreativeFormatsOutput{Envelope: completedEnvelope(), Formats: merged}
			return out, true, ""
		},
	)
}

// ListAuthorizedPropertiesInput is the decoded list_authorized_properties
// request body; it carries no filters today.
type ListAuthorizedPropertiesInput struct{}

// ListAuthorizedPropertiesOutput is what list_authorized_properties returns.
type ListAuthorizedPropertiesOutput struct {
	Envelope
	Properties []adcp.AuthorizedProperty `json:"properties"`
}

func (s *Server) ListAuthorizedProperties(ctx context.Context, in ListAuthorizedPropertiesInput) ListAuthorizedPropertiesOutput {
	return dispatch(s, ctx, "list_authorized_properties",
		func(aerr *adcperr.Error) ListAuthorizedPropertiesOutput {
			return ListAuthorizedPropertiesOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (ListAuthorizedPropertiesOutput, bool, string) {
			props := s.Store.ListAuthorizedProperties(res.Tenant.TenantID)
			out := ListAuthorizedPropertiesOutput{Envelope: completedEnvelope(), Properties: props}
			return out, true, ""
		},
	)
}

// GetSignalsInput is the decoded get_signals request body.
type GetSignalsInput struct {
	Category string `json:"category,omitempty"`
	Query    string `json:"query,omitempty"`
}

// GetSignalsOutput is what get_signals returns.
type GetSignalsOutput struct {
	Envelope
	Signals []adcp.Signal `json:"signals"`
}

func (s *Server) GetSignals(ctx context.Context, in GetSignalsInput) GetSignalsOutput {
	return dispatch(s, ctx, "get_signals",
		func(aerr *adcperr.Error) GetSignalsOutput {
			return GetSignalsOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (GetSignalsOutput, bool, string) {
			signals, serr := s.Signals.Discover(ctx, res.Tenant.TenantID, in.Category, in.Query)
			if serr != nil {
				return GetSignalsOutput{Envelope: failedEnvelope(serr)}, false, serr.Error()
			}
			out := GetSignalsOutput{Envelope: completedEnvelope(), Signals: signals}
			return out, true, ""
		},
	)
}

// ActivateSignalInput is the decoded activate_signal request body.
type ActivateSignalInput struct {
	MediaBuyID string `json:"media_buy_id"`
	SignalID   string `json:"signal_id"`
}

// ActivateSignalOutput is what activate_signal returns. Activation always
// requires approval, so Status is always "input-required" on success.
type ActivateSignalOutput struct {
	Envelope
	WorkflowStepID string `json:"workflow_step_id,omitempty"`
	ContextID      string `json:"context_id,omitempty"`
}

func (s *Server) ActivateSignal(ctx context.Context, in ActivateSignalInput) ActivateSignalOutput {
	return dispatch(s, ctx, "activate_signal",
		func(aerr *adcperr.Error) ActivateSignalOutput {
			return ActivateSignalOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (ActivateSignalOutput, bool, string) {
			if in.MediaBuyID == "" || in.SignalID == "" {
				verr := adcperr.Validation("media_buy_id and signal_id are required")
				return ActivateSignalOutput{Envelope: failedEnvelope(verr)}, false, verr.Error()
			}
			mb, ok := s.Store.GetMediaBuy(in.MediaBuyID)
			if !ok || mb.TenantID != res.Tenant.TenantID || mb.PrincipalID != res.PrincipalID {
				nerr := adcperr.NotFound("media buy %q not found", in.MediaBuyID)
				return ActivateSignalOutput{Envelope: failedEnvelope(nerr)}, false, nerr.Error()
			}
			meta := middleware.RequestMetaFromContext(ctx)
			wfCtx, cerr := s.Engine.ResolveContext(meta.ContextID, res.Tenant.TenantID, res.PrincipalID)
			if cerr != nil {
				return ActivateSignalOutput{Envelope: failedEnvelope(cerr)}, false, cerr.Error()
			}
			result := s.Signals.Activate(wfCtx, res.Tenant, in.MediaBuyID, in.SignalID)
			out := ActivateSignalOutput{
				Envelope:       Envelope{Status: result.Status},
				WorkflowStepID: result.WorkflowStepID,
				ContextID:      wfCtx.ContextID,
			}
			return out, true, "signal_id=" + in.SignalID
		},
	)
}
