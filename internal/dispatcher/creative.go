package dispatcher

import (
	"context"
	"strconv"

	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/creative"
	"github.com/adcp/salesagent/internal/tenant"
)

// SyncCreativesOutput wraps creative.SyncResponse with the envelope every
// tool response carries.
type SyncCreativesOutput struct {
	Envelope
	creative.SyncResponse
}

// SyncCreatives runs the sync_creatives upsert pipeline (§4.7).
func (s *Server) SyncCreatives(ctx context.Context, in creative.SyncRequest) SyncCreativesOutput {
	return dispatch(s, ctx, "sync_creatives",
		func(aerr *adcperr.Error) SyncCreativesOutput {
			return SyncCreativesOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (SyncCreativesOutput, bool, string) {
			req := in
			req.TenantID = res.Tenant.TenantID
			req.PrincipalID = res.PrincipalID
			resp, aerr := s.Creatives.Sync(ctx, res.Tenant, req)
			if aerr != nil {
				return SyncCreativesOutput{Envelope: failedEnvelope(aerr)}, false, aerr.Error()
			}
			out := SyncCreativesOutput{
				Envelope:     Envelope{Status: resp.Status},
				SyncResponse: resp,
			}
			return out, resp.Status != "failed", "created=" +
				strconv.Itoa(resp.Summary.Created) + " updated=" + strconv.Itoa(resp.Summary.Updated) +
				" failed=" + strconv.Itoa(resp.Summary.Failed)
		},
	)
}

// ListCreativesOutput wraps creative.ListResponse with the envelope every
// tool response carries.
type ListCreativesOutput struct {
	Envelope
	creative.ListResponse
}

// ListCreatives returns the authenticated principal's creative library,
// filtered and paginated (§4.7). It never crosses the principal boundary.
func (s *Server) ListCreatives(ctx context.Context, in creative.ListFilter) ListCreativesOutput {
	return dispatch(s, ctx, "list_creatives",
		func(aerr *adcperr.Error) ListCreativesOutput {
			return ListCreativesOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (ListCreativesOutput, bool, string) {
			resp := s.Creatives.List(res.Tenant.TenantID, res.PrincipalID, in)
			out := ListCreativesOutput{Envelope: completedEnvelope(), ListResponse: resp}
			return out, true, ""
		},
	)
}
