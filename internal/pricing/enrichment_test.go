package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/adcp/salesagent/internal/adcp"
)

type fakeMetricsStore struct {
	metrics []adcp.FormatPerformanceMetrics
}

func (f fakeMetricsStore) LoadFormatPerformanceMetrics(ctx context.Context, tenantID string, since time.Time) ([]adcp.FormatPerformanceMetrics, error) {
	return f.metrics, nil
}

func TestNoOpEnricherNeverSuggests(t *testing.T) {
	_, ok := NoOpEnricher{}.SuggestRate(context.Background(), "acme", "US", adcp.FormatRef{}, adcp.PricingOption{IsFixed: true})
	if ok {
		t.Fatalf("expected NoOpEnricher to never suggest a rate")
	}
}

func TestClickHousePricingEnricherDerivesEffectiveCPM(t *testing.T) {
	store := fakeMetricsStore{metrics: []adcp.FormatPerformanceMetrics{
		{FormatID: "banner_300x250", Country: "US", Impressions: 1000, Spend: 20},
	}}
	e := ClickHousePricingEnricher{Metrics: store}
	rate, ok := e.SuggestRate(context.Background(), "acme", "US", adcp.FormatRef{ID: "banner_300x250"}, adcp.PricingOption{IsFixed: true})
	if !ok {
		t.Fatalf("expected a suggested rate")
	}
	if rate != 20.0 {
		t.Fatalf("expected effective CPM of 20.0, got %v", rate)
	}
}

func TestClickHousePricingEnricherIgnoresAuctionOptions(t *testing.T) {
	store := fakeMetricsStore{metrics: []adcp.FormatPerformanceMetrics{
		{FormatID: "banner_300x250", Country: "US", Impressions: 1000, Spend: 20},
	}}
	e := ClickHousePricingEnricher{Metrics: store}
	_, ok := e.SuggestRate(context.Background(), "acme", "US", adcp.FormatRef{ID: "banner_300x250"}, adcp.PricingOption{IsFixed: false})
	if ok {
		t.Fatalf("expected no suggestion for an auction pricing option")
	}
}

func TestEnrichProductReplacesFixedRateOnly(t *testing.T) {
	product := adcp.Product{
		ProductID: "prod_1",
		Formats:   []adcp.FormatRef{{AgentURL: "https://agents.example.com", ID: "banner_300x250"}},
		PricingOptions: []adcp.PricingOption{
			{PricingModel: "CPM", Currency: "USD", IsFixed: true, Rate: floatPtr(10)},
			{PricingModel: "CPM", Currency: "USD", IsFixed: false},
		},
	}
	store := fakeMetricsStore{metrics: []adcp.FormatPerformanceMetrics{
		{FormatID: "banner_300x250", Country: "US", Impressions: 500, Spend: 15},
	}}
	enriched := EnrichProduct(context.Background(), ClickHousePricingEnricher{Metrics: store}, "acme", "US", product)
	if *enriched.PricingOptions[0].Rate == *product.PricingOptions[0].Rate {
		t.Fatalf("expected fixed rate to be enriched, stayed at %v", *enriched.PricingOptions[0].Rate)
	}
	if enriched.PricingOptions[1].Rate != nil {
		t.Fatalf("expected auction option to remain untouched")
	}
	if *product.PricingOptions[0].Rate != 10 {
		t.Fatalf("expected original product to remain unmutated")
	}
}
