// Package notify fans out workflow-step side effects: a Slack message when a
// step enters requires_approval, and signed webhook deliveries to every
// push-notification endpoint mapped to a resolved step. Each delivery is
// also published onto a shared Redis channel; nothing in this package
// subscribes to it, and the webhook POST is made directly by the instance
// that resolved the step.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/db"
	"github.com/adcp/salesagent/internal/store"
	"github.com/adcp/salesagent/internal/token"
)

// webhookDelivery is the payload published to the shared delivery channel
// and, after signing, POSTed to the registered push-notification endpoint.
type webhookDelivery struct {
	StepID     string          `json:"step_id"`
	ContextID  string          `json:"context_id"`
	TenantID   string          `json:"tenant_id"`
	Status     adcp.StepStatus `json:"status"`
	ObjectType string          `json:"object_type,omitempty"`
	ObjectID   string          `json:"object_id,omitempty"`
	Action     string          `json:"action,omitempty"`
}

// SlackClient posts a message to a tenant's configured incoming webhook.
// A Non-goal of this package is implementing Slack's API itself: any HTTP
// client satisfies this with a plain POST of {"text": message}.
type SlackClient interface {
	PostMessage(ctx context.Context, webhookURL, message string) error
}

// HTTPSlackClient posts Slack incoming-webhook messages over plain HTTP.
type HTTPSlackClient struct {
	HTTPClient *http.Client
}

func (c HTTPSlackClient) PostMessage(ctx context.Context, webhookURL, message string) error {
	if webhookURL == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Service implements workflow.Notifier, delivering Slack alerts and signed
// push-notification webhooks.
type Service struct {
	store      *store.Store
	redis      *db.RedisStore
	slack      SlackClient
	slackURL   string
	secret     []byte
	httpClient *http.Client
	log        *zap.Logger
}

func NewService(s *store.Store, redis *db.RedisStore, slack SlackClient, slackWebhookURL string, pushSecret string, webhookTimeout time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	tracedClient := &http.Client{
		Timeout:   webhookTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	if slack == nil {
		slack = HTTPSlackClient{HTTPClient: tracedClient}
	}
	return &Service{
		store:      s,
		redis:      redis,
		slack:      slack,
		slackURL:   slackWebhookURL,
		secret:     []byte(pushSecret),
		httpClient: tracedClient,
		log:        log,
	}
}

// NotifyStepRequiresApproval posts a Slack alert for a step awaiting human
// action. Publisher-owned and principal-owned steps get distinct phrasing
// since they page different audiences.
func (s *Service) NotifyStepRequiresApproval(ctx context.Context, step adcp.WorkflowStep) error {
	audience := "the publisher"
	if step.Owner == adcp.OwnerPrincipal {
		audience = "the buyer"
	}
	msg := fmt.Sprintf("[%s] step %s (%s) requires approval from %s", step.TenantID, step.StepID, step.ToolName, audience)
	if err := s.slack.PostMessage(ctx, s.slackURL, msg); err != nil {
		s.log.Warn("slack notification failed", zap.String("step_id", step.StepID), zap.Error(err))
	}
	return s.publish(step, "", "", "")
}

// NotifyStepResolved fans out a signed webhook to every object a completed
// or failed step is mapped to, in mapping insertion order, and delivers it
// to the principal's registered push-notification endpoint if one exists.
func (s *Service) NotifyStepResolved(ctx context.Context, step adcp.WorkflowStep, mappings []adcp.ObjectWorkflowMapping) error {
	if len(mappings) == 0 {
		return s.publish(step, "", "", "")
	}
	var firstErr error
	for _, m := range mappings {
		if err := s.publish(step, m.ObjectType, m.ObjectID, string(m.Action)); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.deliverWebhook(ctx, step, m); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Service) publish(step adcp.WorkflowStep, objectType, objectID, action string) error {
	if s.redis == nil {
		return nil
	}
	payload, err := json.Marshal(webhookDelivery{
		StepID:     step.StepID,
		ContextID:  step.ContextID,
		TenantID:   step.TenantID,
		Status:     step.Status,
		ObjectType: objectType,
		ObjectID:   objectID,
		Action:     action,
	})
	if err != nil {
		return err
	}
	return s.redis.PublishWebhookDelivery(payload)
}

// deliverWebhook looks up the push-notification endpoint for the step's
// context principal and POSTs a signed delivery, if one is registered.
func (s *Service) deliverWebhook(ctx context.Context, step adcp.WorkflowStep, mapping adcp.ObjectWorkflowMapping) error {
	wfCtx, ok := s.store.GetContext(step.ContextID)
	if !ok {
		return nil
	}
	cfg, ok := s.store.GetPushConfig(wfCtx.TenantID, wfCtx.PrincipalID)
	if !ok || cfg.URL == "" {
		return nil
	}

	body, err := json.Marshal(webhookDelivery{
		StepID:     step.StepID,
		ContextID:  step.ContextID,
		TenantID:   step.TenantID,
		Status:     step.Status,
		ObjectType: mapping.ObjectType,
		ObjectID:   mapping.ObjectID,
		Action:     string(mapping.Action),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch cfg.AuthScheme {
	case adcp.PushAuthHMACSHA256:
		req.Header.Set("X-AdCP-Signature", token.Sign(body, s.secret))
	case adcp.PushAuthBearer:
		req.Header.Set("Authorization", "Bearer "+cfg.Credentials)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Warn("webhook delivery failed", zap.String("step_id", step.StepID), zap.String("url", cfg.URL), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
		s.log.Warn("webhook delivery rejected", zap.String("step_id", step.StepID), zap.Int("status", resp.StatusCode))
		return err
	}
	return nil
}
