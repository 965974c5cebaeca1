// Package dispatcher implements the AdCP tool surface: one method per
// tool, each authenticating the caller, running the matching domain
// service, and folding the result into the {status, errors} envelope every
// tool response carries. No tool method here ever returns a transport-level
// error for a domain failure — a ValidationError, a permission error, an
// adapter timeout, all come back as a populated envelope so the MCP layer
// in cmd/mcp-server can respond without special-casing failure shapes.
package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/creative"
	"github.com/adcp/salesagent/internal/delivery"
	"github.com/adcp/salesagent/internal/mediabuy"
	"github.com/adcp/salesagent/internal/middleware"
	"github.com/adcp/salesagent/internal/observability"
	"github.com/adcp/salesagent/internal/pricing"
	"github.com/adcp/salesagent/internal/signal"
	"github.com/adcp/salesagent/internal/store"
	"github.com/adcp/salesagent/internal/tenant"
	"github.com/adcp/salesagent/internal/workflow"
)

// AuditLogger records a best-effort audit trail. *db.Postgres satisfies
// this without an adapter shim; a nil AuditLogger drops entries, which is
// how dispatcher tests run without a live database.
type AuditLogger interface {
	InsertAuditLogEntry(ctx context.Context, e adcp.AuditLogEntry) error
}

// Server wires every domain service behind the fixed AdCP tool surface.
type Server struct {
	Store        *store.Store
	Resolver     *tenant.Resolver
	Engine       *workflow.Engine
	Orchestrator *mediabuy.Orchestrator
	Creatives    *creative.Service
	Delivery     *delivery.Engine
	Signals      *signal.Service
	Enricher     pricing.PricingEnricher
	Audit        AuditLogger
	Metrics      observability.MetricsRegistry
	Log          *zap.Logger
}

// NewServer constructs a Server. A nil Metrics falls back to a no-op
// registry so callers that don't care about Prometheus don't need to wire
// one up, mirroring mediabuy.NewOrchestrator and creative.NewService.
func NewServer(
	s *store.Store,
	resolver *tenant.Resolver,
	engine *workflow.Engine,
	orch *mediabuy.Orchestrator,
	creatives *creative.Service,
	deliveryEngine *delivery.Engine,
	signals *signal.Service,
	enricher pricing.PricingEnricher,
	audit AuditLogger,
	metrics observability.MetricsRegistry,
	log *zap.Logger,
) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if enricher == nil {
		enricher = pricing.NoOpEnricher{}
	}
	return &Server{
		Store:        s,
		Resolver:     resolver,
		Engine:       engine,
		Orchestrator: orch,
		Creatives:    creatives,
		Delivery:     deliveryEngine,
		Signals:      signals,
		Enricher:     enricher,
		Audit:        audit,
		Metrics:      metrics,
		Log:          log,
	}
}

// Envelope is the {status, errors} pair every AdCP tool response carries.
// Tool-specific output structs embed it.
type Envelope struct {
	Status string           `json:"status"`
	Errors []*adcperr.Error `json:"errors,omitempty"`
}

func completedEnvelope() Envelope { return Envelope{Status: "completed"} }

func failedEnvelope(err *adcperr.Error) Envelope {
	return Envelope{Status: "failed", Errors: []*adcperr.Error{err}}
}

// dispatch centralizes the per-tool boilerplate every handler needs: pull
// headers out of the context, resolve (tenant, principal), run body, then
// record audit and metrics. A Resolve failure short-circuits straight to
// authFail without invoking body. body reports its own success/detail
// since only it knows whether the domain call actually succeeded.
func dispatch[TOut any](
	s *Server,
	ctx context.Context,
	toolName string,
	authFail func(*adcperr.Error) TOut,
	body func(ctx context.Context, res tenant.Resolved) (out TOut, success bool, detail string),
) TOut {
	start := time.Now()
	meta := middleware.RequestMetaFromContext(ctx)
	res, aerr := s.Resolver.Resolve(meta.Headers, toolName)
	if aerr != nil {
		tag := ""
		if aerr.Code == adcperr.CodeInvalidAuthToken || aerr.Code == adcperr.CodeAuthentication {
			tag = "security_violation"
		}
		s.audit(ctx, "", "anonymous", toolName, false, aerr.Error(), tag)
		s.Metrics.IncrementToolCalls(toolName, "failed")
		s.Metrics.RecordToolCallLatency(toolName, time.Since(start))
		return authFail(aerr)
	}

	out, success, detail := body(ctx, res)
	status := "completed"
	if !success {
		status = "failed"
	}
	s.audit(ctx, res.Tenant.TenantID, principalLabel(res), toolName, success, detail, "")
	s.Metrics.IncrementToolCalls(toolName, status)
	s.Metrics.RecordToolCallLatency(toolName, time.Since(start))
	return out
}

func principalLabel(res tenant.Resolved) string {
	if res.PrincipalID == "" {
		return "anonymous"
	}
	return res.PrincipalID
}

func (s *Server) audit(ctx context.Context, tenantID, principal, operation string, success bool, detail, securityTag string) {
	if s.Audit == nil {
		return
	}
	entry := adcp.AuditLogEntry{
		TenantID:      tenantID,
		PrincipalName: principal,
		Operation:     operation,
		Success:       success,
		Detail:        detail,
		SecurityTag:   securityTag,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.Audit.InsertAuditLogEntry(ctx, entry); err != nil {
		s.Log.Warn("audit log write failed", zap.String("operation", operation), zap.Error(err))
	}
}
