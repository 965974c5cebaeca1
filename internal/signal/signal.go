// Package signal implements get_signals discovery and activate_signal
// requests. Real signal providers (audience data co-ops, contextual
// classifiers) are third-party integrations outside this server's scope, so
// Provider is a pluggable seam the same way adapter.Port stubs out
// backend ad-server connectivity: a tenant without a configured Provider
// still gets a working, empty catalog rather than a broken tool call.
package signal

import (
	"context"

	"go.uber.org/zap"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/store"
	"github.com/adcp/salesagent/internal/workflow"
)

// Provider discovers signals available to a tenant. StaticProvider is the
// only implementation shipped here; a real deployment wires in whatever
// audience data platform the tenant contracts with.
type Provider interface {
	Discover(ctx context.Context, tenantID, category, query string) ([]adcp.Signal, error)
}

// StaticProvider returns the tenant's catalog as configured in the store,
// with no external lookup. It is the signal-discovery analog of
// policy.StaticPolicyCheckService.
type StaticProvider struct {
	Store *store.Store
}

func (p StaticProvider) Discover(ctx context.Context, tenantID, category, query string) ([]adcp.Signal, error) {
	return p.Store.ListSignals(tenantID, category, query), nil
}

// Service answers get_signals and activate_signal.
type Service struct {
	provider Provider
	engine   *workflow.Engine
	log      *zap.Logger
}

func NewService(provider Provider, engine *workflow.Engine, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{provider: provider, engine: engine, log: log}
}

// Discover lists signals matching an optional category and free-text query.
func (s *Service) Discover(ctx context.Context, tenantID, category, query string) ([]adcp.Signal, *adcperr.Error) {
	signals, err := s.provider.Discover(ctx, tenantID, category, query)
	if err != nil {
		return nil, adcperr.Newf(adcperr.CodeToolError, "signal discovery failed: %v", err)
	}
	return signals, nil
}

// ActivateResult is what activate_signal returns to the dispatcher.
type ActivateResult struct {
	Status         string // "completed" | "input-required"
	WorkflowStepID string
}

// Activate begins signal activation onto mediaBuyID. Activation always
// requires approval: applying a third-party signal changes what a buy
// targets, and this server has no live integration to the signal platform
// to confirm the activation actually took effect.
func (s *Service) Activate(ctx adcp.Context, tenant adcp.Tenant, mediaBuyID, signalID string) ActivateResult {
	step := s.engine.StartStep(ctx, adcp.StepApproval, adcp.OwnerPublisher, "activate_signal", nil)
	s.engine.MapObject(step, "media_buy", mediaBuyID, adcp.MappingUpdate)
	if _, err := s.engine.Transition(context.Background(), step.StepID, adcp.StepRequiresApproval, nil, ""); err != nil {
		s.log.Warn("activate_signal: failed to mark step requires_approval", zap.Error(err))
	}
	return ActivateResult{Status: "input-required", WorkflowStepID: step.StepID}
}
