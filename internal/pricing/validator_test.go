package pricing

import (
	"testing"

	"github.com/adcp/salesagent/internal/adcp"
)

func floatPtr(f float64) *float64 { return &f }

func auctionProduct() adcp.Product {
	return adcp.Product{
		ProductID: "prod_auction",
		PricingOptions: []adcp.PricingOption{
			{PricingModel: "CPM", Currency: "USD", IsFixed: false, PriceGuidance: &adcp.PriceGuidance{Floor: 8.0, P50: 12.0}},
		},
	}
}

func fixedProduct() adcp.Product {
	return adcp.Product{
		ProductID: "prod_fixed",
		PricingOptions: []adcp.PricingOption{
			{PricingModel: "CPM", Currency: "USD", IsFixed: true, Rate: floatPtr(15.0)},
		},
	}
}

func TestResolveDefaultsToFirstMatchingCurrency(t *testing.T) {
	resolved, aerr := Resolve(PackageRequest{Budget: 1000, BidPrice: floatPtr(10)}, auctionProduct(), "USD")
	if aerr != nil {
		t.Fatalf("resolve: %v", aerr)
	}
	if resolved.PricingModel != "CPM" || resolved.Currency != "USD" {
		t.Fatalf("unexpected resolved option: %+v", resolved)
	}
}

func TestResolveBidBelowFloorRejected(t *testing.T) {
	_, aerr := Resolve(PackageRequest{Budget: 1000, BidPrice: floatPtr(5.0)}, auctionProduct(), "USD")
	if aerr == nil {
		t.Fatalf("expected pricing error")
	}
	if aerr.Code != "PRICING_ERROR" {
		t.Fatalf("expected PRICING_ERROR, got %s", aerr.Code)
	}
}

func TestResolveFixedWithoutRateRejected(t *testing.T) {
	prod := fixedProduct()
	prod.PricingOptions[0].Rate = nil
	_, aerr := Resolve(PackageRequest{Budget: 1000}, prod, "USD")
	if aerr == nil {
		t.Fatalf("expected pricing error for missing rate")
	}
}

func TestResolveNoPricingOptions(t *testing.T) {
	_, aerr := Resolve(PackageRequest{Budget: 1000}, adcp.Product{ProductID: "empty"}, "USD")
	if aerr == nil {
		t.Fatalf("expected pricing error for product with no pricing options")
	}
}

func TestResolveByPricingOptionID(t *testing.T) {
	prod := auctionProduct()
	prod.PricingOptions[0].PricingOptionID = "cpm_usd_auction"
	resolved, aerr := Resolve(PackageRequest{PricingOptionID: "cpm_usd_auction", Budget: 1000, BidPrice: floatPtr(10)}, prod, "USD")
	if aerr != nil {
		t.Fatalf("resolve: %v", aerr)
	}
	if resolved.Currency != "USD" {
		t.Fatalf("unexpected resolved: %+v", resolved)
	}
}

func TestCheckCurrencyLimitsMinPackageBudget(t *testing.T) {
	limit := adcp.CurrencyLimit{MinPackageBudget: floatPtr(500)}
	if aerr := CheckCurrencyLimits(PackageRequest{Budget: 100}, limit); aerr == nil {
		t.Fatalf("expected budget_limit_exceeded")
	}
	if aerr := CheckCurrencyLimits(PackageRequest{Budget: 500}, limit); aerr != nil {
		t.Fatalf("budget equal to minimum should be accepted, got %v", aerr)
	}
}

func TestCheckCurrencyLimitsMaxDailySpendPerPackageNotAggregated(t *testing.T) {
	limit := adcp.CurrencyLimit{MaxDailyPackageSpend: floatPtr(1000)}
	// 30000 over 5 days = 6000/day, far over the 1000/day cap.
	if aerr := CheckCurrencyLimits(PackageRequest{Budget: 30000, FlightDays: 5}, limit); aerr == nil {
		t.Fatalf("expected budget_limit_exceeded for flight-extension bypass attempt")
	}
	// 30000 over 30 days = 1000/day, exactly at the cap.
	if aerr := CheckCurrencyLimits(PackageRequest{Budget: 30000, FlightDays: 30}, limit); aerr != nil {
		t.Fatalf("expected daily spend at the cap to be accepted, got %v", aerr)
	}
}
