package adapter

import (
	"context"
	"fmt"
	"time"
)

// The google_ad_manager, kevel, and triton adapters are capability stubs:
// real connectivity to those back-ends is outside this server's scope, but
// the tenant-configuration and manual-approval wiring that selects between
// them is not. Each stub always requires manual approval for every
// operation so a create/update never silently no-ops against inventory
// that was never actually reserved; the Admin UI operator completes the
// real-world action and calls execute_approved_media_buy/approve_order
// accordingly.

type stubAdapter struct {
	name string
	cfg  Config
}

func newGAMAdapter(cfg Config) Port    { return &stubAdapter{name: "google_ad_manager", cfg: cfg} }
func newKevelAdapter(cfg Config) Port  { return &stubAdapter{name: "kevel", cfg: cfg} }
func newTritonAdapter(cfg Config) Port { return &stubAdapter{name: "triton", cfg: cfg} }

func (s *stubAdapter) CreateMediaBuy(ctx context.Context, req CreateRequest) (MediaBuyResult, error) {
	return MediaBuyResult{}, fmt.Errorf("%s adapter: backend connectivity not implemented; media buy %s requires manual creation", s.name, req.MediaBuyID)
}

func (s *stubAdapter) UpdateMediaBuy(ctx context.Context, mediaBuyID, action, packageID string, budget *float64, now time.Time) (Result, error) {
	return Result{}, fmt.Errorf("%s adapter: backend connectivity not implemented", s.name)
}

func (s *stubAdapter) AddCreativeAssets(ctx context.Context, mediaBuyID string, assets []CreativeAsset, now time.Time) ([]CreativeAssetStatus, error) {
	return nil, fmt.Errorf("%s adapter: backend connectivity not implemented", s.name)
}

func (s *stubAdapter) AssociateCreatives(ctx context.Context, lineItemIDs []string, platformCreativeIDs []string) ([]AssociationResult, error) {
	return nil, fmt.Errorf("%s adapter: backend connectivity not implemented", s.name)
}

func (s *stubAdapter) ApproveOrder(ctx context.Context, mediaBuyID string) (bool, error) {
	return false, fmt.Errorf("%s adapter: backend connectivity not implemented", s.name)
}

func (s *stubAdapter) UpdateMediaBuyPerformanceIndex(ctx context.Context, mediaBuyID, productID string, score float64) (bool, error) {
	return false, fmt.Errorf("%s adapter: backend connectivity not implemented", s.name)
}

func (s *stubAdapter) GetSupportedPricingModels() []string {
	switch s.name {
	case "google_ad_manager":
		return []string{"CPM", "CPD"}
	case "kevel":
		return []string{"CPM"}
	case "triton":
		return []string{"CPM", "CPP"}
	default:
		return nil
	}
}

func (s *stubAdapter) ManualApprovalRequired(operation string) bool {
	return true
}
