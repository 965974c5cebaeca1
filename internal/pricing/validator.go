// Package pricing resolves and validates the pricing option a package
// selects, and enforces per-tenant currency limits.
package pricing

import (
	"strings"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/adcperr"
)

// PackageRequest is the subset of an inbound package the validator reads.
type PackageRequest struct {
	PricingOptionID string
	PricingModel    string // legacy selector when PricingOptionID is absent
	BidPrice        *float64
	Budget          float64
	FlightDays      float64
}

// Resolved is what the validator hands back to the orchestrator for
// downstream adapter use.
type Resolved struct {
	PricingModel string
	Rate         *float64
	Currency     string
	IsFixed      bool
	BidPrice     *float64
}

// Resolve validates and resolves the pricing terms for a single package.
func Resolve(pkg PackageRequest, product adcp.Product, campaignCurrency string) (Resolved, *adcperr.Error) {
	if len(product.PricingOptions) == 0 {
		return Resolved{}, adcperr.Pricing("product %q has no pricing options", product.ProductID)
	}

	var opt *adcp.PricingOption
	switch {
	case pkg.PricingOptionID == "" && pkg.PricingModel == "":
		// Step 1: pick the product's first pricing option matching the campaign currency.
		for i := range product.PricingOptions {
			if product.PricingOptions[i].Currency == campaignCurrency {
				opt = &product.PricingOptions[i]
				break
			}
		}
	case pkg.PricingOptionID != "":
		for i := range product.PricingOptions {
			o := &product.PricingOptions[i]
			id := o.PricingOptionID
			if id == "" {
				id = o.CompositeID()
			}
			if id == pkg.PricingOptionID {
				opt = o
				break
			}
		}
	default:
		for i := range product.PricingOptions {
			o := &product.PricingOptions[i]
			if strings.EqualFold(o.PricingModel, pkg.PricingModel) && o.Currency == campaignCurrency {
				opt = o
				break
			}
		}
	}

	if opt == nil {
		return Resolved{}, adcperr.Pricing("no pricing option matches the requested package on product %q", product.ProductID)
	}

	if opt.IsFixed {
		if opt.Rate == nil {
			return Resolved{}, adcperr.Pricing("fixed pricing option %s lacks a rate", opt.PricingModel)
		}
	} else {
		if pkg.BidPrice == nil {
			return Resolved{}, adcperr.Pricing("auction pricing option %s requires a bid_price", opt.PricingModel)
		}
		if opt.PriceGuidance == nil {
			return Resolved{}, adcperr.Pricing("auction pricing option %s is missing price guidance", opt.PricingModel)
		}
		if *pkg.BidPrice < opt.PriceGuidance.Floor {
			return Resolved{}, adcperr.Pricing("bid_price %.4f is below floor price %.4f", *pkg.BidPrice, opt.PriceGuidance.Floor)
		}
	}

	if opt.MinSpendPerPackage != nil && pkg.Budget < *opt.MinSpendPerPackage {
		return Resolved{}, adcperr.Pricing("package budget %.2f is below min_spend_per_package %.2f", pkg.Budget, *opt.MinSpendPerPackage)
	}

	return Resolved{
		PricingModel: opt.PricingModel,
		Rate:         opt.Rate,
		Currency:     opt.Currency,
		IsFixed:      opt.IsFixed,
		BidPrice:     pkg.BidPrice,
	}, nil
}

// CheckCurrencyLimits enforces min_package_budget and max_daily_package_spend
// for a single package. max_daily_package_spend is evaluated per package
// against budget/flight_days, never aggregated across packages — aggregating
// would let a buyer bypass the cap by splitting a buy into many packages or
// stretching the flight window.
func CheckCurrencyLimits(pkg PackageRequest, limit adcp.CurrencyLimit) *adcperr.Error {
	if limit.MinPackageBudget != nil && pkg.Budget < *limit.MinPackageBudget {
		return adcperr.Newf(adcperr.CodeBudgetLimitExceeded, "package budget %.2f is below the minimum package budget %.2f", pkg.Budget, *limit.MinPackageBudget)
	}
	if limit.MaxDailyPackageSpend != nil && pkg.FlightDays > 0 {
		dailySpend := pkg.Budget / pkg.FlightDays
		if dailySpend > *limit.MaxDailyPackageSpend {
			return adcperr.Newf(adcperr.CodeBudgetLimitExceeded, "package daily spend %.2f exceeds the daily maximum %.2f", dailySpend, *limit.MaxDailyPackageSpend)
		}
	}
	return nil
}
