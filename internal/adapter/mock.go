package adapter

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// mockAdapter is a fully functional in-memory stand-in for a real ad server.
// It is the default adapter and the one exercised by the test suite: it
// never rejects a create, synthesizes platform ids, and honors manual
// approval only when explicitly configured for a tenant under test.
type mockAdapter struct {
	cfg Config
}

func newMockAdapter(cfg Config) Port { return &mockAdapter{cfg: cfg} }

func (m *mockAdapter) CreateMediaBuy(ctx context.Context, req CreateRequest) (MediaBuyResult, error) {
	result := MediaBuyResult{MediaBuyID: req.MediaBuyID}
	for _, pkg := range req.Packages {
		result.Packages = append(result.Packages, ResultPackage{
			PackageID:  pkg.PackageID,
			LineItemID: "mock_li_" + randHex(8),
		})
	}
	return result, nil
}

func (m *mockAdapter) UpdateMediaBuy(ctx context.Context, mediaBuyID, action, packageID string, budget *float64, now time.Time) (Result, error) {
	return Result{Success: true, Message: fmt.Sprintf("mock applied %s on %s", action, mediaBuyID)}, nil
}

func (m *mockAdapter) AddCreativeAssets(ctx context.Context, mediaBuyID string, assets []CreativeAsset, now time.Time) ([]CreativeAssetStatus, error) {
	out := make([]CreativeAssetStatus, 0, len(assets))
	for _, a := range assets {
		out = append(out, CreativeAssetStatus{
			CreativeID:         a.CreativeID,
			PlatformCreativeID: "mock_cr_" + randHex(8),
			Accepted:           true,
		})
	}
	return out, nil
}

func (m *mockAdapter) AssociateCreatives(ctx context.Context, lineItemIDs []string, platformCreativeIDs []string) ([]AssociationResult, error) {
	out := make([]AssociationResult, 0, len(lineItemIDs))
	for _, li := range lineItemIDs {
		out = append(out, AssociationResult{LineItemID: li, Accepted: true})
	}
	return out, nil
}

func (m *mockAdapter) ApproveOrder(ctx context.Context, mediaBuyID string) (bool, error) {
	return true, nil
}

func (m *mockAdapter) UpdateMediaBuyPerformanceIndex(ctx context.Context, mediaBuyID, productID string, score float64) (bool, error) {
	return true, nil
}

func (m *mockAdapter) GetSupportedPricingModels() []string {
	return []string{"CPM", "CPCV", "CPP"}
}

func (m *mockAdapter) ManualApprovalRequired(operation string) bool {
	for _, op := range m.cfg.ManualApproval {
		if op == operation {
			return true
		}
	}
	return false
}

func randHex(n int) string {
	b := make([]byte, n/2)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}
