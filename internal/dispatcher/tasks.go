package dispatcher

import (
	"context"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/tenant"
)

// ListTasksInput is the decoded list_tasks request body.
type ListTasksInput struct {
	ContextID string         `json:"context_id,omitempty"`
	Owner     adcp.StepOwner `json:"owner,omitempty"`
}

// ListTasksOutput is what list_tasks returns.
type ListTasksOutput struct {
	Envelope
	Tasks []adcp.WorkflowStep `json:"tasks"`
}

// ListTasks answers list_tasks (§4.9), scoped to contexts the calling
// principal owns.
func (s *Server) ListTasks(ctx context.Context, in ListTasksInput) ListTasksOutput {
	return dispatch(s, ctx, "list_tasks",
		func(aerr *adcperr.Error) ListTasksOutput {
			return ListTasksOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (ListTasksOutput, bool, string) {
			if in.ContextID == "" {
				verr := adcperr.Validation("context_id is required")
				return ListTasksOutput{Envelope: failedEnvelope(verr)}, false, verr.Error()
			}
			wfCtx, ok := s.Store.GetContext(in.ContextID)
			if !ok || wfCtx.TenantID != res.Tenant.TenantID || wfCtx.PrincipalID != res.PrincipalID {
				nerr := adcperr.NotFound("context %q not found", in.ContextID)
				return ListTasksOutput{Envelope: failedEnvelope(nerr)}, false, nerr.Error()
			}
			tasks := s.Engine.ListTasks(in.ContextID, in.Owner)
			return ListTasksOutput{Envelope: completedEnvelope(), Tasks: tasks}, true, ""
		},
	)
}

// GetTaskInput is the decoded get_task request body.
type GetTaskInput struct {
	TaskID string `json:"task_id"`
}

// GetTaskOutput is what get_task returns.
type GetTaskOutput struct {
	Envelope
	Task adcp.WorkflowStep `json:"task"`
}

// GetTask answers get_task (§4.9), scoped to the caller's tenant.
func (s *Server) GetTask(ctx context.Context, in GetTaskInput) GetTaskOutput {
	return dispatch(s, ctx, "get_task",
		func(aerr *adcperr.Error) GetTaskOutput {
			return GetTaskOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (GetTaskOutput, bool, string) {
			step, aerr := s.Engine.GetTask(in.TaskID, res.Tenant.TenantID)
			if aerr != nil {
				return GetTaskOutput{Envelope: failedEnvelope(aerr)}, false, aerr.Error()
			}
			if !taskVisibleTo(s, step, res.PrincipalID) {
				nerr := adcperr.NotFound("task %q not found", in.TaskID)
				return GetTaskOutput{Envelope: failedEnvelope(nerr)}, false, nerr.Error()
			}
			return GetTaskOutput{Envelope: completedEnvelope(), Task: step}, true, ""
		},
	)
}

// CompleteTaskInput is the decoded complete_task request body. Resolution is
// "approved" or "rejected"; anything else is a validation error.
type CompleteTaskInput struct {
	TaskID     string `json:"task_id"`
	Resolution string `json:"resolution"`
	Comment    string `json:"comment,omitempty"`
}

// CompleteTaskOutput is what complete_task returns.
type CompleteTaskOutput struct {
	Envelope
	Task adcp.WorkflowStep `json:"task"`
}

// CompleteTask resolves a requires_approval step (§4.9). When the step maps
// to a creative pending human or AI review, the creative's own approval
// state is resolved through creative.Service so the two stay consistent;
// plain workflow overrides (e.g. a flagged media buy) only move the step.
func (s *Server) CompleteTask(ctx context.Context, in CompleteTaskInput) CompleteTaskOutput {
	return dispatch(s, ctx, "complete_task",
		func(aerr *adcperr.Error) CompleteTaskOutput {
			return CompleteTaskOutput{Envelope: failedEnvelope(aerr)}
		},
		func(ctx context.Context, res tenant.Resolved) (CompleteTaskOutput, bool, string) {
			var approved bool
			switch in.Resolution {
			case "approved":
				approved = true
			case "rejected":
				approved = false
			default:
				verr := adcperr.Validation("resolution must be \"approved\" or \"rejected\", got %q", in.Resolution)
				return CompleteTaskOutput{Envelope: failedEnvelope(verr)}, false, verr.Error()
			}

			step, aerr := s.Engine.GetTask(in.TaskID, res.Tenant.TenantID)
			if aerr != nil {
				return CompleteTaskOutput{Envelope: failedEnvelope(aerr)}, false, aerr.Error()
			}
			if !taskVisibleTo(s, step, res.PrincipalID) {
				nerr := adcperr.NotFound("task %q not found", in.TaskID)
				return CompleteTaskOutput{Envelope: failedEnvelope(nerr)}, false, nerr.Error()
			}
			if step.Status != adcp.StepRequiresApproval {
				verr := adcperr.Validation("task %q is not awaiting approval", in.TaskID)
				return CompleteTaskOutput{Envelope: failedEnvelope(verr)}, false, verr.Error()
			}

			wfCtx, _ := s.Store.GetContext(step.ContextID)
			for _, m := range s.Store.MappingsForStep(step.StepID) {
				if m.ObjectType != "creative" {
					continue
				}
				if cerr := s.Creatives.ResolveApproval(ctx, res.Tenant.TenantID, m.ObjectID, wfCtx.PrincipalID, approved, in.Comment); cerr != nil {
					return CompleteTaskOutput{Envelope: failedEnvelope(cerr)}, false, cerr.Error()
				}
			}

			if in.Comment != "" {
				_ = s.Engine.AddComment(step.StepID, principalLabel(res), in.Comment)
			}

			newStatus := adcp.StepCompleted
			failMsg := ""
			if !approved {
				newStatus = adcp.StepFailed
				failMsg = in.Comment
				if failMsg == "" {
					failMsg = "rejected"
				}
			}
			updated, terr := s.Engine.Transition(ctx, step.StepID, newStatus, nil, failMsg)
			if terr != nil {
				return CompleteTaskOutput{Envelope: failedEnvelope(terr)}, false, terr.Error()
			}
			return CompleteTaskOutput{Envelope: completedEnvelope(), Task: updated}, true, "resolution=" + in.Resolution
		},
	)
}

// taskVisibleTo reports whether principalID may see step: steps owned by the
// system or publisher are visible tenant-wide, steps owned by a principal
// are scoped to the context that principal started.
func taskVisibleTo(s *Server, step adcp.WorkflowStep, principalID string) bool {
	if step.Owner != adcp.OwnerPrincipal {
		return true
	}
	wfCtx, ok := s.Store.GetContext(step.ContextID)
	return ok && wfCtx.PrincipalID == principalID
}
