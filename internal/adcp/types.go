// Package adcp holds the domain types shared by every component of the Ad
// Sales Agent: tenants, principals, products, media buys, creatives, and the
// workflow/approval envelope that ties them together.
package adcp

import (
	"encoding/json"
	"time"
)

// DeliveryType enumerates how a Product is sold.
type DeliveryType string

const (
	DeliveryGuaranteed    DeliveryType = "guaranteed"
	DeliveryNonGuaranteed DeliveryType = "non_guaranteed"
)

// ApprovalMode governs how a tenant handles incoming creatives.
type ApprovalMode string

const (
	ApprovalAutoApprove  ApprovalMode = "auto-approve"
	ApprovalRequireHuman ApprovalMode = "require-human"
	ApprovalAIPowered    ApprovalMode = "ai-powered"
)

// PushAuthScheme enumerates the supported push-notification credential schemes.
type PushAuthScheme string

const (
	PushAuthHMACSHA256 PushAuthScheme = "HMAC-SHA256"
	PushAuthBearer     PushAuthScheme = "Bearer"
	PushAuthNone       PushAuthScheme = "None"
)

// MediaBuyStatus is the centrally-computed status of a MediaBuy.
type MediaBuyStatus string

const (
	MediaBuyPendingApproval MediaBuyStatus = "pending_approval"
	MediaBuyReady           MediaBuyStatus = "ready"
	MediaBuyActive          MediaBuyStatus = "active"
	MediaBuyNeedsCreatives  MediaBuyStatus = "needs_creatives"
	MediaBuyCompleted       MediaBuyStatus = "completed"
	MediaBuyFailed          MediaBuyStatus = "failed"
)

// PackageStatus is distinct from WorkflowStep status; never conflate the two.
type PackageStatus string

const (
	PackageDraft     PackageStatus = "draft"
	PackageActive    PackageStatus = "active"
	PackagePaused    PackageStatus = "paused"
	PackageCompleted PackageStatus = "completed"
)

// CreativeStatus tracks the approval lifecycle of a Creative.
type CreativeStatus string

const (
	CreativePending  CreativeStatus = "pending"
	CreativeApproved CreativeStatus = "approved"
	CreativeRejected CreativeStatus = "rejected"
)

// StepType enumerates the kinds of WorkflowStep the engine creates.
type StepType string

const (
	StepMediaBuyCreation  StepType = "media_buy_creation"
	StepCreativeApproval  StepType = "creative_approval"
	StepToolCall          StepType = "tool_call"
	StepApproval          StepType = "approval"
	StepPolicyReview      StepType = "policy_review"
	StepSetupCheck        StepType = "setup_check"
)

// StepOwner declares who must act on a WorkflowStep.
type StepOwner string

const (
	OwnerSystem    StepOwner = "system"
	OwnerPublisher StepOwner = "publisher"
	OwnerPrincipal StepOwner = "principal"
)

// StepStatus is the workflow step state machine. Transitions are
// monotonic: in_progress -> {completed,failed,requires_approval};
// requires_approval -> {completed,failed}.
type StepStatus string

const (
	StepInProgress      StepStatus = "in_progress"
	StepRequiresApproval StepStatus = "requires_approval"
	StepCompleted       StepStatus = "completed"
	StepFailed          StepStatus = "failed"
)

// MappingAction tags why an ObjectWorkflowMapping exists.
type MappingAction string

const (
	MappingCreate           MappingAction = "create"
	MappingUpdate           MappingAction = "update"
	MappingApprovalRequired MappingAction = "approval_required"
)

// Tenant represents a publisher. TenantID is immutable once assigned.
type Tenant struct {
	TenantID              string
	Subdomain             string
	VirtualHosts          []string
	AdapterType           string
	AuthorizedDomains     []string
	AutoCreate            bool
	ApprovalMode          ApprovalMode
	SlackWebhookURL       string
	AdminToken            string
	AutoCreateMediaBuys   bool
	RequireManualReview   bool
	DynamicPricingEnabled bool
	GeminiAPIKey          string
	Active                bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Principal represents an advertiser within a tenant.
type Principal struct {
	TenantID          string
	PrincipalID       string
	Name              string
	AccessToken       string
	AdServerMappings  map[string]string // ad-server name -> platform advertiser id
	CreatedAt         time.Time
}

// IsAdmin reports whether this principal is the tenant's synthetic admin
// principal: "{tenant_id}_admin".
func (p Principal) IsAdmin() bool {
	return p.PrincipalID == p.TenantID+"_admin"
}

// FormatRef identifies a creative format on a creative agent. Wire
// representation is always an object, never a bare string.
type FormatRef struct {
	AgentURL string `json:"agent_url"`
	ID       string `json:"id"`
}

// PriceGuidance carries auction pricing percentiles for a non-fixed option.
type PriceGuidance struct {
	Floor float64 `json:"floor"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	P90   float64 `json:"p90"`
}

// PricingOption is one (model, currency, fixed/auction) tuple a Product offers.
type PricingOption struct {
	PricingOptionID    string            `json:"pricing_option_id"`
	PricingModel       string            `json:"pricing_model"` // CPM, CPCV, CPP, ...
	Currency           string            `json:"currency"`
	IsFixed            bool              `json:"is_fixed"`
	Rate               *float64          `json:"rate,omitempty"`
	PriceGuidance      *PriceGuidance    `json:"price_guidance,omitempty"`
	MinSpendPerPackage *float64          `json:"min_spend_per_package,omitempty"`
	Parameters         map[string]string `json:"parameters,omitempty"`
}

// CompositeID returns the "{model}_{currency}_{fixed|auction}" id used for
// pricing_option_id resolution when the option wasn't persisted with one.
func (o PricingOption) CompositeID() string {
	kind := "auction"
	if o.IsFixed {
		kind = "fixed"
	}
	return o.PricingModel + "_" + o.Currency + "_" + kind
}

// Product is publisher-offered inventory within a tenant.
type Product struct {
	TenantID          string          `json:"-"`
	ProductID         string          `json:"product_id"`
	Name              string          `json:"name"`
	DeliveryType      DeliveryType    `json:"delivery_type"`
	MinSpend          *float64        `json:"min_spend,omitempty"`
	Formats           []FormatRef     `json:"formats"`
	PricingOptions    []PricingOption `json:"pricing_options"`
	AutoCreateEnabled bool            `json:"-"`
}

// CurrencyLimit bounds spend per (tenant, currency).
type CurrencyLimit struct {
	TenantID             string
	Currency             string
	MinPackageBudget     *float64
	MaxDailyPackageSpend *float64
}

// MediaBuy is a campaign order.
type MediaBuy struct {
	MediaBuyID  string
	TenantID    string
	PrincipalID string
	BuyerRef    string
	PONumber    string
	StartTime   time.Time
	EndTime     time.Time
	TotalBudget float64
	Currency    string
	Status      MediaBuyStatus
	RawRequest  json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MediaPackage is a line-item-equivalent within a MediaBuy.
type MediaPackage struct {
	PackageID    string
	MediaBuyID   string
	TenantID     string
	ProductID    string
	Budget       float64
	PricingModel string
	BidPrice     *float64
	Targeting    json.RawMessage
	CreativeIDs  []string
	Status       PackageStatus
	Pacing       string
	PackageConfig json.RawMessage
}

// CreativePayload holds either a hosted asset or a third-party snippet.
// Exactly one of the two branches is populated.
type CreativePayload struct {
	HostedAssetURL string `json:"hosted_asset_url,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	DurationMS     int    `json:"duration_ms,omitempty"`
	Snippet        string `json:"snippet,omitempty"`
}

// IsHosted reports whether the payload carries a hosted asset rather than a snippet.
func (p CreativePayload) IsHosted() bool { return p.HostedAssetURL != "" }

// Creative is a single creative asset owned by a principal.
type Creative struct {
	TenantID           string          `json:"-"`
	PrincipalID        string          `json:"-"`
	CreativeID         string          `json:"creative_id"`
	Name               string          `json:"name"`
	Format             FormatRef       `json:"format"`
	Status             CreativeStatus  `json:"status"`
	Data               CreativePayload `json:"data"`
	PlatformCreativeID string          `json:"platform_creative_id,omitempty"`
	Tags               []string        `json:"tags,omitempty"`
	MediaBuyID         string          `json:"media_buy_id,omitempty"`
	BuyerRef           string          `json:"buyer_ref,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// CreativeAssignment is a many-to-many link between a Creative and a MediaPackage.
type CreativeAssignment struct {
	AssignmentID string
	TenantID     string
	MediaBuyID   string
	PackageID    string
	CreativeID   string
	Weight       int
}

// Context is a durable thread of workflow steps for (tenant, principal).
type Context struct {
	ContextID   string
	TenantID    string
	PrincipalID string
	CreatedAt   time.Time
}

// Comment is one append-only entry in a WorkflowStep's comment log.
type Comment struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkflowStep is a single tracked operation.
type WorkflowStep struct {
	StepID       string          `json:"task_id"`
	ContextID    string          `json:"context_id"`
	TenantID     string          `json:"-"`
	StepType     StepType        `json:"step_type"`
	Owner        StepOwner       `json:"owner"`
	Status       StepStatus      `json:"status"`
	ToolName     string          `json:"tool_name"`
	RequestData  json.RawMessage `json:"request_data,omitempty"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Assignee     string          `json:"assignee,omitempty"`
	Comments     []Comment       `json:"comments,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ObjectWorkflowMapping links a business object to the steps that affect it.
type ObjectWorkflowMapping struct {
	MappingID  string
	TenantID   string
	StepID     string
	ObjectType string // "media_buy" | "creative"
	ObjectID   string
	Action     MappingAction
	CreatedAt  time.Time
}

// PushNotificationConfig is a per-(tenant,principal) webhook registration.
type PushNotificationConfig struct {
	ConfigID    string         `json:"-"`
	TenantID    string         `json:"-"`
	PrincipalID string         `json:"-"`
	URL         string         `json:"url"`
	AuthScheme  PushAuthScheme `json:"auth_scheme"`
	Credentials string         `json:"credentials,omitempty"`
}

// PropertyTag annotates an AuthorizedProperty.
type PropertyTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AuthorizedProperty is a verified publisher property available for targeting.
type AuthorizedProperty struct {
	TenantID string        `json:"-"`
	Property string        `json:"property"`
	Verified bool          `json:"verified"`
	Tags     []PropertyTag `json:"tags,omitempty"`
}

// CreativeFormat is a tenant-specific override or addition to the shared
// format registry, keyed by (agent_url, id).
type CreativeFormat struct {
	TenantID string `json:"-"`
	AgentURL string `json:"agent_url"`
	FormatID string `json:"id"`
	Name     string `json:"name"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// FormatPerformanceMetrics is a rolling aggregate used by dynamic pricing and
// by get_media_buy_delivery, bucketed by country x creative size.
type FormatPerformanceMetrics struct {
	TenantID    string
	Country     string
	FormatID    string
	Impressions int64
	Spend       float64
	WindowStart time.Time
	WindowEnd   time.Time
}

// Signal is an audience or contextual segment discoverable via get_signals
// and eligible for activation onto a media buy's packages.
type Signal struct {
	TenantID    string   `json:"-"`
	SignalID    string   `json:"signal_id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"` // "audience" | "contextual" | "geo"
	Description string   `json:"description,omitempty"`
	CPMUplift   *float64 `json:"cpm_uplift,omitempty"`
}

// AuditLogEntry is a best-effort audit record; it never gates a response.
type AuditLogEntry struct {
	TenantID      string
	PrincipalName string
	Operation     string
	Success       bool
	Detail        string
	SecurityTag   string // e.g. "security_violation"; empty for ordinary entries
	CreatedAt     time.Time
}
