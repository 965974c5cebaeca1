package adapter

import "testing"

func TestNewFallsBackToMock(t *testing.T) {
	p := New(Config{AdapterType: "nonexistent"})
	if _, ok := p.(*mockAdapter); !ok {
		t.Fatalf("expected mock fallback, got %T", p)
	}
}

func TestNewEmptyTypeIsMock(t *testing.T) {
	p := New(Config{})
	if _, ok := p.(*mockAdapter); !ok {
		t.Fatalf("expected mock for empty adapter_type, got %T", p)
	}
}

func TestStubAdaptersAlwaysRequireApproval(t *testing.T) {
	for _, adapterType := range []string{"google_ad_manager", "kevel", "triton"} {
		p := New(Config{AdapterType: adapterType})
		if !p.ManualApprovalRequired("create_media_buy") {
			t.Fatalf("%s: expected manual approval required", adapterType)
		}
	}
}

func TestMockCreateMediaBuyAssignsLineItems(t *testing.T) {
	p := New(Config{AdapterType: "mock"})
	res, err := p.CreateMediaBuy(nil, CreateRequest{
		MediaBuyID: "mb_abc123",
		Packages:   []PackageRequest{{PackageID: "pkg_prod_a_1"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.MediaBuyID != "mb_abc123" {
		t.Fatalf("expected same media buy id returned, got %q", res.MediaBuyID)
	}
	if len(res.Packages) != 1 || res.Packages[0].PackageID != "pkg_prod_a_1" || res.Packages[0].LineItemID == "" {
		t.Fatalf("unexpected packages: %+v", res.Packages)
	}
}
