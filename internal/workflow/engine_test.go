package workflow

import (
	"context"
	"testing"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/store"
)

type fakeNotifier struct {
	approvalCalls []string
	resolvedCalls []string
	resolvedMaps  [][]adcp.ObjectWorkflowMapping
}

func (f *fakeNotifier) NotifyStepRequiresApproval(ctx context.Context, step adcp.WorkflowStep) error {
	f.approvalCalls = append(f.approvalCalls, step.StepID)
	return nil
}

func (f *fakeNotifier) NotifyStepResolved(ctx context.Context, step adcp.WorkflowStep, mappings []adcp.ObjectWorkflowMapping) error {
	f.resolvedCalls = append(f.resolvedCalls, step.StepID)
	f.resolvedMaps = append(f.resolvedMaps, mappings)
	return nil
}

func TestResolveContextCreatesNew(t *testing.T) {
	e := NewEngine(store.New(), nil, nil)
	c, aerr := e.ResolveContext("", "acme", "p1")
	if aerr != nil {
		t.Fatalf("resolve: %v", aerr)
	}
	if c.ContextID == "" || c.TenantID != "acme" || c.PrincipalID != "p1" {
		t.Fatalf("unexpected context: %+v", c)
	}
}

func TestResolveContextRejectsCrossTenant(t *testing.T) {
	e := NewEngine(store.New(), nil, nil)
	c, _ := e.ResolveContext("", "acme", "p1")
	_, aerr := e.ResolveContext(c.ContextID, "globex", "p1")
	if aerr == nil {
		t.Fatalf("expected rejection for cross-tenant context reuse")
	}
}

func TestTransitionInProgressToRequiresApprovalNotifies(t *testing.T) {
	notifier := &fakeNotifier{}
	e := NewEngine(store.New(), notifier, nil)
	c, _ := e.ResolveContext("", "acme", "p1")
	step := e.StartStep(c, adcp.StepMediaBuyCreation, adcp.OwnerPublisher, "create_media_buy", nil)

	updated, aerr := e.Transition(context.Background(), step.StepID, adcp.StepRequiresApproval, nil, "")
	if aerr != nil {
		t.Fatalf("transition: %v", aerr)
	}
	if updated.Status != adcp.StepRequiresApproval {
		t.Fatalf("expected requires_approval, got %s", updated.Status)
	}
	if len(notifier.approvalCalls) != 1 {
		t.Fatalf("expected one approval notification, got %d", len(notifier.approvalCalls))
	}
}

func TestTransitionTerminalStatesRejectFurtherTransitions(t *testing.T) {
	e := NewEngine(store.New(), nil, nil)
	c, _ := e.ResolveContext("", "acme", "p1")
	step := e.StartStep(c, adcp.StepApproval, adcp.OwnerPublisher, "create_media_buy", nil)

	if _, aerr := e.Transition(context.Background(), step.StepID, adcp.StepCompleted, nil, ""); aerr != nil {
		t.Fatalf("transition to completed: %v", aerr)
	}
	if _, aerr := e.Transition(context.Background(), step.StepID, adcp.StepFailed, nil, ""); aerr == nil {
		t.Fatalf("expected rejection of transition out of a terminal state")
	}
}

func TestTransitionRequiresApprovalResolvesAndFansOutMappings(t *testing.T) {
	notifier := &fakeNotifier{}
	e := NewEngine(store.New(), notifier, nil)
	c, _ := e.ResolveContext("", "acme", "p1")
	step := e.StartStep(c, adcp.StepMediaBuyCreation, adcp.OwnerPublisher, "create_media_buy", nil)
	e.MapObject(step, "media_buy", "mb_1", adcp.MappingCreate)

	if _, aerr := e.Transition(context.Background(), step.StepID, adcp.StepRequiresApproval, nil, ""); aerr != nil {
		t.Fatalf("transition to requires_approval: %v", aerr)
	}
	if _, aerr := e.Transition(context.Background(), step.StepID, adcp.StepCompleted, nil, ""); aerr != nil {
		t.Fatalf("transition to completed: %v", aerr)
	}
	if len(notifier.resolvedCalls) != 1 {
		t.Fatalf("expected one resolution notification, got %d", len(notifier.resolvedCalls))
	}
	if len(notifier.resolvedMaps[0]) != 1 || notifier.resolvedMaps[0][0].ObjectID != "mb_1" {
		t.Fatalf("expected mapping fan-out to include mb_1, got %+v", notifier.resolvedMaps[0])
	}
}

func TestTransitionBackToInProgressRejected(t *testing.T) {
	e := NewEngine(store.New(), nil, nil)
	c, _ := e.ResolveContext("", "acme", "p1")
	step := e.StartStep(c, adcp.StepApproval, adcp.OwnerPublisher, "update_media_buy", nil)
	if _, aerr := e.Transition(context.Background(), step.StepID, adcp.StepInProgress, nil, ""); aerr == nil {
		t.Fatalf("expected rejection of a transition back into in_progress")
	}
}

func TestListTasksFiltersByOwner(t *testing.T) {
	e := NewEngine(store.New(), nil, nil)
	c, _ := e.ResolveContext("", "acme", "p1")
	e.StartStep(c, adcp.StepApproval, adcp.OwnerPublisher, "create_media_buy", nil)
	e.StartStep(c, adcp.StepPolicyReview, adcp.OwnerSystem, "create_media_buy", nil)

	all := e.ListTasks(c.ContextID, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}
	publisherOnly := e.ListTasks(c.ContextID, adcp.OwnerPublisher)
	if len(publisherOnly) != 1 {
		t.Fatalf("expected 1 publisher task, got %d", len(publisherOnly))
	}
}

func TestGetTaskScopedToTenant(t *testing.T) {
	e := NewEngine(store.New(), nil, nil)
	c, _ := e.ResolveContext("", "acme", "p1")
	step := e.StartStep(c, adcp.StepApproval, adcp.OwnerPublisher, "create_media_buy", nil)

	if _, aerr := e.GetTask(step.StepID, "globex"); aerr == nil {
		t.Fatalf("expected not-found for a cross-tenant task lookup")
	}
	if _, aerr := e.GetTask(step.StepID, "acme"); aerr != nil {
		t.Fatalf("expected task to resolve for the owning tenant: %v", aerr)
	}
}

func TestAddCommentPersists(t *testing.T) {
	e := NewEngine(store.New(), nil, nil)
	c, _ := e.ResolveContext("", "acme", "p1")
	step := e.StartStep(c, adcp.StepApproval, adcp.OwnerPublisher, "create_media_buy", nil)

	if aerr := e.AddComment(step.StepID, "ops@acme.com", "approved after manual review"); aerr != nil {
		t.Fatalf("add comment: %v", aerr)
	}
	got, _ := e.GetTask(step.StepID, "acme")
	if len(got.Comments) != 1 || got.Comments[0].Text != "approved after manual review" {
		t.Fatalf("unexpected comments: %+v", got.Comments)
	}
}
