// Package workflow implements the Context/WorkflowStep/ObjectWorkflowMapping
// state machine every tracked operation runs through. Step
// transitions are monotonic: once a step reaches completed or failed it
// never moves again, and only requires_approval may resolve to completed or
// failed after human input.
package workflow

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/store"
)

// Notifier delivers the side effects of a step transition. workflow depends
// only on this interface so its tests never need a live Slack or webhook
// endpoint; notify.Service satisfies it in the running server.
type Notifier interface {
	NotifyStepRequiresApproval(ctx context.Context, step adcp.WorkflowStep) error
	NotifyStepResolved(ctx context.Context, step adcp.WorkflowStep, mappings []adcp.ObjectWorkflowMapping) error
}

// Engine owns context/step/mapping lifecycle against the shared store.
type Engine struct {
	store    *store.Store
	notifier Notifier
	log      *zap.Logger
}

func NewEngine(s *store.Store, notifier Notifier, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: s, notifier: notifier, log: log}
}

// ResolveContext returns the context named by contextID if it belongs to
// (tenantID, principalID), or creates a fresh one. A supplied contextID that
// resolves to a different tenant or principal is always rejected — contexts
// never transfer ownership across the isolation boundary.
func (e *Engine) ResolveContext(contextID, tenantID, principalID string) (adcp.Context, *adcperr.Error) {
	if contextID != "" {
		c, ok := e.store.GetContext(contextID)
		if !ok {
			return adcp.Context{}, adcperr.NotFound("context %q not found", contextID)
		}
		if c.TenantID != tenantID || c.PrincipalID != principalID {
			return adcp.Context{}, adcperr.Permission("context %q does not belong to the calling principal", contextID)
		}
		return c, nil
	}
	c := adcp.Context{
		ContextID:   "ctx_" + uuid.New().String(),
		TenantID:    tenantID,
		PrincipalID: principalID,
	}
	e.store.PutContext(c)
	return c, nil
}

// StartStep creates a new in_progress step under ctx. ToolName and RequestData
// are retained for audit and task listing; requestData may be nil.
func (e *Engine) StartStep(ctx adcp.Context, stepType adcp.StepType, owner adcp.StepOwner, toolName string, requestData []byte) adcp.WorkflowStep {
	step := adcp.WorkflowStep{
		StepID:      "wfs_" + uuid.New().String(),
		ContextID:   ctx.ContextID,
		TenantID:    ctx.TenantID,
		StepType:    stepType,
		Owner:       owner,
		Status:      adcp.StepInProgress,
		ToolName:    toolName,
		RequestData: requestData,
	}
	e.store.PutStep(step)
	return step
}

// MapObject records that step affects (objectType, objectID) for action.
// Mappings are inserted in call order; webhook fan-out on resolution
// preserves that order.
func (e *Engine) MapObject(step adcp.WorkflowStep, objectType, objectID string, action adcp.MappingAction) {
	e.store.PutMapping(adcp.ObjectWorkflowMapping{
		MappingID:  "owm_" + uuid.New().String(),
		TenantID:   step.TenantID,
		StepID:     step.StepID,
		ObjectType: objectType,
		ObjectID:   objectID,
		Action:     action,
	})
}

// validTransitions encodes the monotonic step state machine.
var validTransitions = map[adcp.StepStatus]map[adcp.StepStatus]bool{
	adcp.StepInProgress: {
		adcp.StepCompleted:       true,
		adcp.StepFailed:          true,
		adcp.StepRequiresApproval: true,
	},
	adcp.StepRequiresApproval: {
		adcp.StepCompleted: true,
		adcp.StepFailed:    true,
	},
}

// Transition moves step to newStatus, persists it, and fires the
// notification side effects for requires_approval and terminal states.
// Transitions not present in validTransitions are rejected; completed and
// failed are terminal and reject every further transition.
func (e *Engine) Transition(ctx context.Context, stepID string, newStatus adcp.StepStatus, responseData []byte, errMsg string) (adcp.WorkflowStep, *adcperr.Error) {
	step, ok := e.store.GetStep(stepID)
	if !ok {
		return adcp.WorkflowStep{}, adcperr.NotFound("workflow step %q not found", stepID)
	}
	allowed := validTransitions[step.Status]
	if !allowed[newStatus] {
		return adcp.WorkflowStep{}, adcperr.Validation("cannot transition workflow step %q from %s to %s", stepID, step.Status, newStatus)
	}

	step.Status = newStatus
	if responseData != nil {
		step.ResponseData = responseData
	}
	if errMsg != "" {
		step.ErrorMessage = errMsg
	}
	e.store.PutStep(step)

	switch newStatus {
	case adcp.StepRequiresApproval:
		if e.notifier != nil {
			if err := e.notifier.NotifyStepRequiresApproval(ctx, step); err != nil {
				e.log.Warn("requires_approval notification failed", zap.String("step_id", stepID), zap.Error(err))
			}
		}
	case adcp.StepCompleted, adcp.StepFailed:
		mappings := e.store.MappingsForStep(stepID)
		if e.notifier != nil {
			if err := e.notifier.NotifyStepResolved(ctx, step, mappings); err != nil {
				e.log.Warn("step resolution notification failed", zap.String("step_id", stepID), zap.Error(err))
			}
		}
	}
	return step, nil
}

// AddComment appends a human- or system-authored note to a step's log,
// used by complete_task to record operator rationale.
func (e *Engine) AddComment(stepID, author, text string) *adcperr.Error {
	step, ok := e.store.GetStep(stepID)
	if !ok {
		return adcperr.NotFound("workflow step %q not found", stepID)
	}
	step.Comments = append(step.Comments, adcp.Comment{Author: author, Text: text})
	e.store.PutStep(step)
	return nil
}

// ListTasks returns every step under contextID in creation order, filtered
// to those owned by owner when owner is non-empty.
func (e *Engine) ListTasks(contextID string, owner adcp.StepOwner) []adcp.WorkflowStep {
	steps := e.store.ListStepsByContext(contextID)
	if owner == "" {
		return steps
	}
	filtered := make([]adcp.WorkflowStep, 0, len(steps))
	for _, s := range steps {
		if s.Owner == owner {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// GetTask fetches a single step by id, scoped to tenantID.
func (e *Engine) GetTask(stepID, tenantID string) (adcp.WorkflowStep, *adcperr.Error) {
	step, ok := e.store.GetStep(stepID)
	if !ok || step.TenantID != tenantID {
		return adcp.WorkflowStep{}, adcperr.NotFound("task %q not found", stepID)
	}
	return step, nil
}

// UpsertPushConfig registers or replaces the webhook destination a principal
// wants requires_approval and resolution notifications pushed to.
func (e *Engine) UpsertPushConfig(cfg adcp.PushNotificationConfig) {
	if cfg.ConfigID == "" {
		cfg.ConfigID = "pnc_" + uuid.New().String()
	}
	e.store.PutPushConfig(cfg)
}
