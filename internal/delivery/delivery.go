// Package delivery implements get_media_buy_delivery and
// update_performance_index: reporting aggregation over a media buy's
// flight, and fanning optimization scores back into the adapter. It is
// grounded on the reference implementation's forecasting Engine
// (validate -> analyze -> compute -> build-response) and its ClickHouse
// analytics path, generalized from impression/click events to the
// AdCP delivery-report shape.
package delivery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/adcp/salesagent/internal/adapter"
	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/observability"
	"github.com/adcp/salesagent/internal/store"
)

const defaultWindow = 30 * 24 * time.Hour

// EventSource looks up observed delivery for a media buy from the
// analytics store. Production deployments wire this to ClickHouse;
// SyntheticSource (the default) fabricates deterministic delivery from
// budget and elapsed flight time when no event pipeline is configured —
// the in-memory mode this server runs in in tests and demos.
type EventSource interface {
	// Delivered reports observed impressions and spend for a package
	// between since and until. ok is false when no events exist, telling
	// the caller to fall back to synthetic delivery.
	Delivered(ctx context.Context, tenantID, mediaBuyID, packageID string, since, until time.Time) (impressions int64, spend float64, ok bool, err error)
}

// SyntheticSource never has real events; Engine always falls back to the
// deterministic budget/elapsed-time synthesis.
type SyntheticSource struct{}

func (SyntheticSource) Delivered(ctx context.Context, tenantID, mediaBuyID, packageID string, since, until time.Time) (int64, float64, bool, error) {
	return 0, 0, false, nil
}

// ReferenceEvent pins the reporting "now" to a point in a buy's own flight,
// for deterministic delivery tests ("as of campaign midpoint", etc).
type ReferenceEvent string

const (
	EventStart    ReferenceEvent = "start"
	EventMidpoint ReferenceEvent = "midpoint"
	EventEnd      ReferenceEvent = "end"
)

// Clock resolves the reporting reference time. The zero value uses
// time.Now(); tests inject a fixed Now or a ReferenceEvent to get
// reproducible synthetic delivery.
type Clock struct {
	Now    time.Time
	Event  ReferenceEvent
	Jitter float64 // deterministic pacing multiplier; 0 means 1.0 (on-pace)
}

func (c Clock) resolve(start, end time.Time) time.Time {
	if !c.Now.IsZero() {
		return c.Now
	}
	switch c.Event {
	case EventStart:
		return start
	case EventMidpoint:
		return start.Add(end.Sub(start) / 2)
	case EventEnd:
		return end
	default:
		return time.Now()
	}
}

func (c Clock) jitter() float64 {
	if c.Jitter == 0 {
		return 1.0
	}
	return c.Jitter
}

// Request is the decoded get_media_buy_delivery request body.
type Request struct {
	MediaBuyIDs  []string            `json:"media_buy_ids,omitempty"`
	BuyerRefs    []string            `json:"buyer_refs,omitempty"`
	StatusFilter adcp.MediaBuyStatus `json:"status_filter,omitempty"`
	StartDate    time.Time           `json:"start_date,omitempty"`
	EndDate      time.Time           `json:"end_date,omitempty"`
	Clock        Clock               `json:"-"`
}

// PackageDelivery is one package's reporting-window aggregate.
type PackageDelivery struct {
	PackageID   string  `json:"package_id"`
	Impressions int64   `json:"impressions"`
	Spend       float64 `json:"spend"`
	PacingIndex float64 `json:"pacing_index"`
}

// BuyDelivery is one media buy's reporting-window aggregate.
type BuyDelivery struct {
	MediaBuyID  string               `json:"media_buy_id"`
	BuyerRef    string               `json:"buyer_ref,omitempty"`
	Status      adcp.MediaBuyStatus  `json:"status"`
	Impressions int64                `json:"impressions"`
	Spend       float64              `json:"spend"`
	Packages    []PackageDelivery    `json:"packages"`
}

// Response is what GetDelivery returns to the dispatcher.
type Response struct {
	WindowStart      time.Time     `json:"window_start"`
	WindowEnd        time.Time     `json:"window_end"`
	Buys             []BuyDelivery `json:"buys"`
	TotalImpressions int64         `json:"total_impressions"`
	TotalSpend       float64       `json:"total_spend"`
}

// Engine runs get_media_buy_delivery and update_performance_index.
type Engine struct {
	store      *store.Store
	events     EventSource
	newAdapter func(adapter.Config) adapter.Port
	persister  Persister
	metrics    observability.MetricsRegistry
	log        *zap.Logger
}

// Persister appends FormatPerformanceMetrics rows, the table that feeds
// dynamic-pricing enrichment.
type Persister interface {
	InsertFormatPerformanceMetrics(ctx context.Context, m adcp.FormatPerformanceMetrics) error
}

func NewEngine(s *store.Store, events EventSource, newAdapter func(adapter.Config) adapter.Port, persister Persister, metrics observability.MetricsRegistry, log *zap.Logger) *Engine {
	if events == nil {
		events = SyntheticSource{}
	}
	if newAdapter == nil {
		newAdapter = adapter.New
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: s, events: events, newAdapter: newAdapter, persister: persister, metrics: metrics, log: log}
}

// GetDelivery aggregates delivery for every media buy owned by
// (tenantID, principalID) matching req's filters, defaulting the
// reporting window to the last 30 days.
func (e *Engine) GetDelivery(ctx context.Context, tenant adcp.Tenant, principalID string, req Request) (Response, *adcperr.Error) {
	now := time.Now()
	windowEnd := req.EndDate
	if windowEnd.IsZero() {
		windowEnd = now
	}
	windowStart := req.StartDate
	if windowStart.IsZero() {
		windowStart = windowEnd.Add(-defaultWindow)
	}
	if windowEnd.Before(windowStart) {
		return Response{}, adcperr.Newf(adcperr.CodeInvalidDatetime, "end_date must not precede start_date")
	}

	buys := e.resolveBuys(tenant.TenantID, principalID, req)

	resp := Response{WindowStart: windowStart, WindowEnd: windowEnd}
	for _, mb := range buys {
		status := recomputeStatus(mb.Status, req.Clock.resolve(mb.StartTime, mb.EndTime), mb.StartTime, mb.EndTime)
		if req.StatusFilter != "" && status != req.StatusFilter {
			continue
		}
		bd := e.deliveryForBuy(ctx, tenant.TenantID, mb, status, windowStart, windowEnd, req.Clock)
		resp.Buys = append(resp.Buys, bd)
		resp.TotalImpressions += bd.Impressions
		resp.TotalSpend += bd.Spend
	}
	return resp, nil
}

func (e *Engine) resolveBuys(tenantID, principalID string, req Request) []adcp.MediaBuy {
	if len(req.MediaBuyIDs) == 0 && len(req.BuyerRefs) == 0 {
		return e.store.ListMediaBuysByPrincipal(tenantID, principalID)
	}
	wantIDs := toSet(req.MediaBuyIDs)
	wantRefs := toSet(req.BuyerRefs)
	var out []adcp.MediaBuy
	for _, mb := range e.store.ListMediaBuysByPrincipal(tenantID, principalID) {
		if wantIDs[mb.MediaBuyID] || wantRefs[mb.BuyerRef] {
			out = append(out, mb)
		}
	}
	return out
}

func toSet(vals []string) map[string]bool {
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		out[v] = true
	}
	return out
}

// recomputeStatus re-derives status from flight dates at the reporting
// reference time; statuses outside the flight-window's control
// (pending_approval, needs_creatives, failed) are never overridden.
func recomputeStatus(persisted adcp.MediaBuyStatus, now, start, end time.Time) adcp.MediaBuyStatus {
	switch persisted {
	case adcp.MediaBuyPendingApproval, adcp.MediaBuyNeedsCreatives, adcp.MediaBuyFailed:
		return persisted
	}
	switch {
	case now.Before(start):
		return adcp.MediaBuyReady
	case now.After(end):
		return adcp.MediaBuyCompleted
	default:
		return adcp.MediaBuyActive
	}
}

func (e *Engine) deliveryForBuy(ctx context.Context, tenantID string, mb adcp.MediaBuy, status adcp.MediaBuyStatus, windowStart, windowEnd time.Time, clock Clock) BuyDelivery {
	bd := BuyDelivery{MediaBuyID: mb.MediaBuyID, BuyerRef: mb.BuyerRef, Status: status}
	for _, pkg := range e.store.GetPackages(mb.MediaBuyID) {
		pd := e.deliveryForPackage(ctx, tenantID, mb, pkg, windowStart, windowEnd, clock)
		bd.Packages = append(bd.Packages, pd)
		bd.Impressions += pd.Impressions
		bd.Spend += pd.Spend
	}
	return bd
}

func (e *Engine) deliveryForPackage(ctx context.Context, tenantID string, mb adcp.MediaBuy, pkg adcp.MediaPackage, windowStart, windowEnd time.Time, clock Clock) PackageDelivery {
	if impressions, spend, ok, err := e.events.Delivered(ctx, tenantID, mb.MediaBuyID, pkg.PackageID, windowStart, windowEnd); err == nil && ok {
		return PackageDelivery{PackageID: pkg.PackageID, Impressions: impressions, Spend: spend, PacingIndex: pacingIndex(spend, pkg.Budget, elapsedFraction(clock.resolve(mb.StartTime, mb.EndTime), mb.StartTime, mb.EndTime))}
	}
	return synthesizeDelivery(pkg, mb.StartTime, mb.EndTime, clock)
}

// synthesizeDelivery fabricates a deterministic delivery observation from
// budget and elapsed flight fraction — the only signal available when no
// analytics pipeline is configured. estimatedCPM falls back to $5 for
// packages without an explicit fixed rate.
func synthesizeDelivery(pkg adcp.MediaPackage, start, end time.Time, clock Clock) PackageDelivery {
	now := clock.resolve(start, end)
	elapsed := elapsedFraction(now, start, end)
	spend := pkg.Budget * elapsed * clock.jitter()
	if spend > pkg.Budget {
		spend = pkg.Budget
	}
	if spend < 0 {
		spend = 0
	}
	cpm := 5.0
	if pkg.BidPrice != nil && *pkg.BidPrice > 0 {
		cpm = *pkg.BidPrice
	}
	impressions := int64(spend / cpm * 1000)
	return PackageDelivery{
		PackageID:   pkg.PackageID,
		Impressions: impressions,
		Spend:       spend,
		PacingIndex: pacingIndex(spend, pkg.Budget, elapsed),
	}
}

func elapsedFraction(now, start, end time.Time) float64 {
	if !end.After(start) {
		return 1
	}
	if now.Before(start) {
		return 0
	}
	if now.After(end) {
		return 1
	}
	return now.Sub(start).Seconds() / end.Sub(start).Seconds()
}

// pacingIndex is observed spend fraction over elapsed flight fraction; 1.0
// is exactly on pace, >1 over-pacing, <1 under-pacing. A campaign with no
// elapsed time yet reports 0 rather than dividing by zero.
func pacingIndex(spend, budget, elapsed float64) float64 {
	if elapsed <= 0 || budget <= 0 {
		return 0
	}
	return (spend / budget) / elapsed
}

// UpdatePerformanceIndex fans a per-product score into the tenant's
// adapter and appends a FormatPerformanceMetrics row for (country, format)
// stamped with the current time. That row carries zero impressions and
// spend; the score itself is not stored. Low scores are logged but never
// auto-acted upon.
func (e *Engine) UpdatePerformanceIndex(ctx context.Context, tenant adcp.Tenant, mediaBuyID, productID, country, formatID string, score float64) *adcperr.Error {
	a := e.newAdapter(adapter.Config{AdapterType: tenant.AdapterType, TenantID: tenant.TenantID})
	ok, err := a.UpdateMediaBuyPerformanceIndex(ctx, mediaBuyID, productID, score)
	if err != nil {
		e.log.Warn("adapter performance index update failed", zap.String("media_buy_id", mediaBuyID), zap.String("product_id", productID), zap.Error(err))
		return adcperr.Adapter("performance index update failed: %v", err)
	}
	if !ok {
		e.log.Warn("adapter rejected performance index update", zap.String("media_buy_id", mediaBuyID), zap.String("product_id", productID))
	}
	if score < 0.5 {
		e.log.Warn("low performance score reported", zap.String("product_id", productID), zap.Float64("score", score))
	}

	if e.persister != nil {
		now := time.Now()
		metric := adcp.FormatPerformanceMetrics{
			TenantID:    tenant.TenantID,
			Country:     country,
			FormatID:    formatID,
			Impressions: 0,
			Spend:       0,
			WindowStart: now,
			WindowEnd:   now,
		}
		if perr := e.persister.InsertFormatPerformanceMetrics(ctx, metric); perr != nil {
			e.log.Warn("failed to persist format performance metrics", zap.Error(perr))
		}
	}
	return nil
}
