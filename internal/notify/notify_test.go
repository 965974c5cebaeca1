package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/store"
)

type fakeSlack struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeSlack) PostMessage(ctx context.Context, webhookURL, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func TestNotifyStepRequiresApprovalPostsToSlack(t *testing.T) {
	slack := &fakeSlack{}
	svc := NewService(store.New(), nil, slack, "https://hooks.example/x", "secret", time.Second, nil)

	step := adcp.WorkflowStep{StepID: "wfs_1", TenantID: "acme", ToolName: "create_media_buy", Owner: adcp.OwnerPublisher, Status: adcp.StepRequiresApproval}
	if err := svc.NotifyStepRequiresApproval(context.Background(), step); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(slack.messages) != 1 {
		t.Fatalf("expected one slack message, got %d", len(slack.messages))
	}
}

func TestNotifyStepResolvedDeliversSignedWebhook(t *testing.T) {
	var received []byte
	var gotSignature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-AdCP-Signature")
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := store.New()
	s.PutContext(adcp.Context{ContextID: "ctx_1", TenantID: "acme", PrincipalID: "p1"})
	s.PutPushConfig(adcp.PushNotificationConfig{TenantID: "acme", PrincipalID: "p1", URL: srv.URL, AuthScheme: adcp.PushAuthHMACSHA256})

	svc := NewService(s, nil, &fakeSlack{}, "", "secret", 2*time.Second, nil)
	step := adcp.WorkflowStep{StepID: "wfs_1", ContextID: "ctx_1", TenantID: "acme", Status: adcp.StepCompleted}
	mappings := []adcp.ObjectWorkflowMapping{{StepID: "wfs_1", ObjectType: "media_buy", ObjectID: "mb_1", Action: adcp.MappingCreate}}

	if err := svc.NotifyStepResolved(context.Background(), step, mappings); err != nil {
		t.Fatalf("notify resolved: %v", err)
	}
	if len(received) == 0 {
		t.Fatalf("expected webhook delivery body, got none")
	}
	if gotSignature == "" {
		t.Fatalf("expected an HMAC signature header")
	}
}

func TestNotifyStepResolvedNoPushConfigIsNoop(t *testing.T) {
	s := store.New()
	s.PutContext(adcp.Context{ContextID: "ctx_1", TenantID: "acme", PrincipalID: "p1"})
	svc := NewService(s, nil, &fakeSlack{}, "", "secret", time.Second, nil)

	step := adcp.WorkflowStep{StepID: "wfs_1", ContextID: "ctx_1", TenantID: "acme", Status: adcp.StepFailed}
	mappings := []adcp.ObjectWorkflowMapping{{StepID: "wfs_1", ObjectType: "media_buy", ObjectID: "mb_1", Action: adcp.MappingCreate}}
	if err := svc.NotifyStepResolved(context.Background(), step, mappings); err != nil {
		t.Fatalf("expected no error when no push config registered, got %v", err)
	}
}
