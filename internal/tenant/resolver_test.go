package tenant

import (
	"testing"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/store"
)

func newTestStore() *store.Store {
	s := store.New()
	s.PutTenant(adcp.Tenant{TenantID: "acme", Subdomain: "acme", Active: true, AdminToken: "admin-secret"})
	s.PutTenant(adcp.Tenant{TenantID: "globex", VirtualHosts: []string{"ads.globex.example"}, Active: true})
	s.PutPrincipal(adcp.Principal{TenantID: "acme", PrincipalID: "buyer1", AccessToken: "tok-buyer1"})
	return s
}

func TestResolveBySubdomain(t *testing.T) {
	r := NewResolver(newTestStore())
	res, aerr := r.Resolve(Headers{Host: "acme.adcp.example", XAdcpAuth: "tok-buyer1"}, "create_media_buy")
	if aerr != nil {
		t.Fatalf("resolve: %v", aerr)
	}
	if res.Tenant.TenantID != "acme" || res.PrincipalID != "buyer1" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveAdminPrincipal(t *testing.T) {
	r := NewResolver(newTestStore())
	res, aerr := r.Resolve(Headers{Host: "acme.adcp.example", XAdcpAuth: "admin-secret"}, "create_media_buy")
	if aerr != nil {
		t.Fatalf("resolve: %v", aerr)
	}
	if res.PrincipalID != "acme_admin" {
		t.Fatalf("expected synthetic admin principal, got %q", res.PrincipalID)
	}
}

func TestResolveDiscoveryNoAuth(t *testing.T) {
	r := NewResolver(newTestStore())
	res, aerr := r.Resolve(Headers{Host: "acme.adcp.example"}, "get_products")
	if aerr != nil {
		t.Fatalf("resolve: %v", aerr)
	}
	if res.PrincipalID != "" {
		t.Fatalf("expected anonymous principal, got %q", res.PrincipalID)
	}
}

func TestResolveNonDiscoveryRequiresAuth(t *testing.T) {
	r := NewResolver(newTestStore())
	_, aerr := r.Resolve(Headers{Host: "acme.adcp.example"}, "create_media_buy")
	if aerr == nil {
		t.Fatalf("expected auth error")
	}
}

func TestResolveInvalidTokenForTenant(t *testing.T) {
	r := NewResolver(newTestStore())
	_, aerr := r.Resolve(Headers{Host: "acme.adcp.example", XAdcpAuth: "bogus"}, "create_media_buy")
	if aerr == nil || aerr.Code != "INVALID_AUTH_TOKEN" {
		t.Fatalf("expected INVALID_AUTH_TOKEN, got %v", aerr)
	}
}

func TestResolveVirtualHost(t *testing.T) {
	s := newTestStore()
	s.PutPrincipal(adcp.Principal{TenantID: "globex", PrincipalID: "buyer2", AccessToken: "tok-buyer2"})
	r := NewResolver(s)
	res, aerr := r.Resolve(Headers{Host: "gateway.internal", ApxIncomingHost: "ads.globex.example", XAdcpAuth: "tok-buyer2"}, "create_media_buy")
	if aerr != nil {
		t.Fatalf("resolve: %v", aerr)
	}
	if res.Tenant.TenantID != "globex" {
		t.Fatalf("expected globex, got %q", res.Tenant.TenantID)
	}
}

// TestTenantHintTakesPrecedenceOverGlobalLookup guards the critical
// isolation invariant: once a tenant is pinned by host/subdomain, the
// principal lookup must never switch tenant context, even if the same
// bearer string happens to exist under a different tenant.
func TestTenantHintTakesPrecedenceOverGlobalLookup(t *testing.T) {
	s := newTestStore()
	s.PutPrincipal(adcp.Principal{TenantID: "globex", PrincipalID: "buyer1", AccessToken: "tok-buyer1"})
	r := NewResolver(s)
	res, aerr := r.Resolve(Headers{Host: "acme.adcp.example", XAdcpAuth: "tok-buyer1"}, "create_media_buy")
	if aerr != nil {
		t.Fatalf("resolve: %v", aerr)
	}
	if res.Tenant.TenantID != "acme" {
		t.Fatalf("expected host-resolved tenant acme to win, got %q", res.Tenant.TenantID)
	}
}
