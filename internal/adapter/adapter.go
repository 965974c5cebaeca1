// Package adapter defines the uniform capability port every ad-server
// back-end implements, and a small factory that constructs one from a
// tenant's configured adapter_type.
package adapter

import (
	"context"
	"time"
)

// PricingInfo is what the orchestrator resolved for one package via the
// pricing validator, keyed by package_id when passed to an adapter.
type PricingInfo struct {
	PricingModel string
	Rate         *float64
	Currency     string
	IsFixed      bool
	BidPrice     *float64
}

// CreativeAsset is a single creative payload queued for upload to an adapter.
type CreativeAsset struct {
	CreativeID     string
	HostedAssetURL string
	Snippet        string
	Width          int
	Height         int
	DurationMS     int
}

// CreativeAssetStatus is the adapter's verdict on one uploaded asset.
type CreativeAssetStatus struct {
	CreativeID         string
	PlatformCreativeID string
	Accepted           bool
	Reason             string
}

// AssociationResult reports whether a creative was linked to a line item.
type AssociationResult struct {
	LineItemID string
	Accepted   bool
	Reason     string
}

// ResultPackage is one package as returned by an adapter's create/update call.
type ResultPackage struct {
	PackageID  string
	LineItemID string
}

// MediaBuyResult is what an adapter returns from create_media_buy.
type MediaBuyResult struct {
	MediaBuyID string
	Packages   []ResultPackage
}

// Result is a generic adapter operation outcome.
type Result struct {
	Success bool
	Message string
}

// CreateRequest bundles everything an adapter needs to open an order.
type CreateRequest struct {
	TenantID    string
	PrincipalID string
	BuyerRef    string
	MediaBuyID  string // permanent id, generated before the adapter call
	StartTime   time.Time
	EndTime     time.Time
	Packages    []PackageRequest
	DryRun      bool
}

// PackageRequest is one package as submitted to an adapter's create call.
type PackageRequest struct {
	PackageID string
	ProductID string
	Budget    float64
	Pricing   PricingInfo
	Targeting []byte
}

// Port is the capability set every adapter implements.
type Port interface {
	CreateMediaBuy(ctx context.Context, req CreateRequest) (MediaBuyResult, error)
	UpdateMediaBuy(ctx context.Context, mediaBuyID, action, packageID string, budget *float64, now time.Time) (Result, error)
	AddCreativeAssets(ctx context.Context, mediaBuyID string, assets []CreativeAsset, now time.Time) ([]CreativeAssetStatus, error)
	AssociateCreatives(ctx context.Context, lineItemIDs []string, platformCreativeIDs []string) ([]AssociationResult, error)
	ApproveOrder(ctx context.Context, mediaBuyID string) (bool, error)
	// UpdateMediaBuyPerformanceIndex fans a per-product optimization score
	// into the backend; it is a hint, never a gate on the response.
	UpdateMediaBuyPerformanceIndex(ctx context.Context, mediaBuyID, productID string, score float64) (bool, error)
	GetSupportedPricingModels() []string
	// ManualApprovalRequired reports whether operation must be held for
	// human approval regardless of tenant/product auto-create settings.
	ManualApprovalRequired(operation string) bool
}

// Config is the per-tenant configuration handed to a Factory.
type Config struct {
	AdapterType     string
	TenantID        string
	PrincipalID     string
	DryRun          bool
	TestingContext  bool
	ManualApproval  []string // operations forced to manual approval
	AdapterSettings map[string]string
}

// New constructs a Port implementation for cfg.AdapterType, falling back to
// the mock adapter for any unrecognized type ("unknown adapter
// types must fall back to mock").
func New(cfg Config) Port {
	switch cfg.AdapterType {
	case "google_ad_manager", "gam":
		return newGAMAdapter(cfg)
	case "kevel":
		return newKevelAdapter(cfg)
	case "triton":
		return newTritonAdapter(cfg)
	case "mock", "":
		return newMockAdapter(cfg)
	default:
		return newMockAdapter(cfg)
	}
}
