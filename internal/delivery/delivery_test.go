package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/observability"
	"github.com/adcp/salesagent/internal/store"
)

func seedBuy(t *testing.T, s *store.Store, start, end time.Time, budget float64) adcp.MediaBuy {
	t.Helper()
	mb := adcp.MediaBuy{
		MediaBuyID:  "mb_test1",
		TenantID:    "acme",
		PrincipalID: "buyer1",
		BuyerRef:    "ref1",
		StartTime:   start,
		EndTime:     end,
		TotalBudget: budget,
		Currency:    "USD",
		Status:      adcp.MediaBuyActive,
	}
	s.PutMediaBuy(mb)
	s.PutPackages(mb.MediaBuyID, []adcp.MediaPackage{
		{PackageID: "pkg_1", MediaBuyID: mb.MediaBuyID, TenantID: "acme", Budget: budget, PricingModel: "CPM", Status: adcp.PackageActive},
	})
	return mb
}

func TestGetDeliveryMidpointHalfPaced(t *testing.T) {
	s := store.New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	seedBuy(t, s, start, end, 1000)

	e := NewEngine(s, nil, nil, nil, observability.NewNoOpRegistry(), nil)
	resp, aerr := e.GetDelivery(context.Background(), adcp.Tenant{TenantID: "acme"}, "buyer1", Request{
		Clock: Clock{Event: EventMidpoint},
	})
	require.Nil(t, aerr)
	require.Len(t, resp.Buys, 1)
	require.Len(t, resp.Buys[0].Packages, 1)
	pkg := resp.Buys[0].Packages[0]
	assert.InDelta(t, 500, pkg.Spend, 0.01)
	assert.InDelta(t, 1.0, pkg.PacingIndex, 0.01)
	assert.Equal(t, adcp.MediaBuyActive, resp.Buys[0].Status)
}

func TestGetDeliveryBeforeStartIsReady(t *testing.T) {
	s := store.New()
	start := time.Now().Add(24 * time.Hour)
	end := start.Add(10 * 24 * time.Hour)
	seedBuy(t, s, start, end, 1000)

	e := NewEngine(s, nil, nil, nil, observability.NewNoOpRegistry(), nil)
	resp, aerr := e.GetDelivery(context.Background(), adcp.Tenant{TenantID: "acme"}, "buyer1", Request{})
	require.Nil(t, aerr)
	require.Len(t, resp.Buys, 1)
	assert.Equal(t, adcp.MediaBuyReady, resp.Buys[0].Status)
	assert.Equal(t, float64(0), resp.Buys[0].Spend)
}

func TestGetDeliveryAfterEndIsCompletedAndFullySpent(t *testing.T) {
	s := store.New()
	start := time.Now().Add(-20 * 24 * time.Hour)
	end := time.Now().Add(-10 * 24 * time.Hour)
	seedBuy(t, s, start, end, 1000)

	e := NewEngine(s, nil, nil, nil, observability.NewNoOpRegistry(), nil)
	resp, aerr := e.GetDelivery(context.Background(), adcp.Tenant{TenantID: "acme"}, "buyer1", Request{})
	require.Nil(t, aerr)
	require.Len(t, resp.Buys, 1)
	assert.Equal(t, adcp.MediaBuyCompleted, resp.Buys[0].Status)
	assert.InDelta(t, 1000, resp.Buys[0].Spend, 0.01)
}

func TestGetDeliveryStatusFilterExcludesNonMatching(t *testing.T) {
	s := store.New()
	start := time.Now().Add(-20 * 24 * time.Hour)
	end := time.Now().Add(-10 * 24 * time.Hour)
	seedBuy(t, s, start, end, 1000)

	e := NewEngine(s, nil, nil, nil, observability.NewNoOpRegistry(), nil)
	resp, aerr := e.GetDelivery(context.Background(), adcp.Tenant{TenantID: "acme"}, "buyer1", Request{
		StatusFilter: adcp.MediaBuyActive,
	})
	require.Nil(t, aerr)
	assert.Empty(t, resp.Buys)
}

func TestGetDeliveryRejectsEndBeforeStart(t *testing.T) {
	s := store.New()
	e := NewEngine(s, nil, nil, nil, observability.NewNoOpRegistry(), nil)
	_, aerr := e.GetDelivery(context.Background(), adcp.Tenant{TenantID: "acme"}, "buyer1", Request{
		StartDate: time.Now(),
		EndDate:   time.Now().Add(-time.Hour),
	})
	require.NotNil(t, aerr)
	assert.Equal(t, "invalid_datetime", aerr.Code)
}

func TestUpdatePerformanceIndexLogsLowScoreWithoutFailing(t *testing.T) {
	s := store.New()
	e := NewEngine(s, nil, nil, nil, observability.NewNoOpRegistry(), nil)
	aerr := e.UpdatePerformanceIndex(context.Background(), adcp.Tenant{TenantID: "acme", AdapterType: "mock"}, "mb_test1", "prod_1", "US", "banner_300x250", 0.2)
	assert.Nil(t, aerr)
}
