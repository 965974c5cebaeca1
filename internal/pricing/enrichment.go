package pricing

import (
	"context"
	"time"

	"github.com/adcp/salesagent/internal/adcp"
)

// lookbackWindow bounds how far back a PricingEnricher consults
// FormatPerformanceMetrics when deriving a suggested rate.
const lookbackWindow = 7 * 24 * time.Hour

// PricingEnricher suggests a dynamic rate for a fixed-price PricingOption,
// derived from recent performance in the same country/creative-size
// bucket. get_products consults it after Product lookup and before the
// response is serialized; it never mutates the persisted Product.
type PricingEnricher interface {
	SuggestRate(ctx context.Context, tenantID, country string, format adcp.FormatRef, opt adcp.PricingOption) (rate float64, ok bool)
}

// MetricsStore is the read side a PricingEnricher needs; *db.Postgres
// satisfies it without this package importing db.
type MetricsStore interface {
	LoadFormatPerformanceMetrics(ctx context.Context, tenantID string, since time.Time) ([]adcp.FormatPerformanceMetrics, error)
}

// NoOpEnricher never suggests a rate; used by tenants with
// dynamic_pricing_enabled=false.
type NoOpEnricher struct{}

func (NoOpEnricher) SuggestRate(ctx context.Context, tenantID, country string, format adcp.FormatRef, opt adcp.PricingOption) (float64, bool) {
	return 0, false
}

// ClickHousePricingEnricher derives a suggested fixed rate from the
// effective CPM (spend / impressions * 1000) observed for the option's
// format in the requested country over the lookback window.
type ClickHousePricingEnricher struct {
	Metrics MetricsStore
}

func (e ClickHousePricingEnricher) SuggestRate(ctx context.Context, tenantID, country string, format adcp.FormatRef, opt adcp.PricingOption) (float64, bool) {
	if e.Metrics == nil || !opt.IsFixed {
		return 0, false
	}
	metrics, err := e.Metrics.LoadFormatPerformanceMetrics(ctx, tenantID, time.Now().Add(-lookbackWindow))
	if err != nil {
		return 0, false
	}
	var impressions int64
	var spend float64
	for _, m := range metrics {
		if m.FormatID != format.ID || (country != "" && m.Country != country) {
			continue
		}
		impressions += m.Impressions
		spend += m.Spend
	}
	if impressions == 0 {
		return 0, false
	}
	return spend / float64(impressions) * 1000, true
}

// EnrichProduct returns a copy of product with every fixed-price
// PricingOption's Rate replaced by the enricher's suggestion, for tenants
// with dynamic pricing enabled. Options the enricher has no opinion on, and
// every auction option, pass through unchanged.
func EnrichProduct(ctx context.Context, enricher PricingEnricher, tenantID, country string, product adcp.Product) adcp.Product {
	if enricher == nil {
		return product
	}
	enriched := product
	enriched.PricingOptions = make([]adcp.PricingOption, len(product.PricingOptions))
	copy(enriched.PricingOptions, product.PricingOptions)
	if len(product.Formats) == 0 {
		return enriched
	}
	for i, opt := range enriched.PricingOptions {
		if !opt.IsFixed {
			continue
		}
		if rate, ok := enricher.SuggestRate(ctx, tenantID, country, product.Formats[formatIndex(product, i)], opt); ok {
			enriched.PricingOptions[i].Rate = &rate
		}
	}
	return enriched
}

// formatIndex maps a pricing-option index to a representative format for
// the product: the format at the same index as the option, or the first
// format when the product has fewer formats than pricing options.
func formatIndex(product adcp.Product, optIdx int) int {
	if optIdx < len(product.Formats) {
		return optIdx
	}
	return 0
}
