// Package tenant resolves an inbound request to (tenant, principal) using
// header/host/subdomain signals, and enforces the isolation invariant that
// keeps tenant context from leaking across requests.
package tenant

import (
	"strings"

	"github.com/adcp/salesagent/internal/adcp"
	"github.com/adcp/salesagent/internal/adcperr"
	"github.com/adcp/salesagent/internal/store"
)

// reservedSubdomains are never treated as a tenant hint.
var reservedSubdomains = map[string]bool{
	"admin":     true,
	"www":       true,
	"localhost": true,
	"api":       true,
}

// Headers carries the subset of inbound request headers the resolver reads.
type Headers struct {
	Host             string // Host header, subdomain extracted from it
	XAdcpTenant      string // x-adcp-tenant
	ApxIncomingHost  string // apx-incoming-host (virtual host)
	XAdcpAuth        string // x-adcp-auth bearer token
}

// DiscoveryOperation reports whether toolName is one of the operations that
// may proceed without an authenticated principal.
func DiscoveryOperation(toolName string) bool {
	switch toolName {
	case "get_products", "list_creative_formats", "list_creative_agents":
		return true
	}
	return false
}

// Resolver maps inbound requests to a resolved tenant and principal.
type Resolver struct {
	store *store.Store
}

// NewResolver constructs a Resolver backed by s.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolved is the outcome of a successful Resolve call.
type Resolved struct {
	Tenant      adcp.Tenant
	PrincipalID string // "" for an anonymous discovery request
}

// Resolve determines (tenant, principal_id) for an inbound request. principalID
// is empty only when toolName is a discovery operation and no bearer was presented.
func (r *Resolver) Resolve(h Headers, toolName string) (Resolved, *adcperr.Error) {
	tenantID := r.resolveTenantID(h)

	var resolvedTenant adcp.Tenant
	haveTenant := false
	if tenantID != "" {
		t, ok := r.store.GetTenant(tenantID)
		if !ok {
			return Resolved{}, adcperr.Auth("unknown tenant %q", tenantID)
		}
		resolvedTenant = t
		haveTenant = true
	}

	bearer := strings.TrimSpace(h.XAdcpAuth)
	if bearer == "" {
		if !haveTenant {
			return Resolved{}, adcperr.Auth("no tenant could be resolved for this request")
		}
		if !DiscoveryOperation(toolName) {
			return Resolved{}, adcperr.Auth("missing bearer token")
		}
		if !resolvedTenant.Active {
			return Resolved{}, adcperr.Auth("tenant %q is not active", resolvedTenant.TenantID)
		}
		return Resolved{Tenant: resolvedTenant}, nil
	}

	if haveTenant {
		// Invariant: a tenant resolved by subdomain/host/virtual-host must never
		// be overwritten by the principal lookup below.
		principalID, ok := r.lookupPrincipal(resolvedTenant, bearer)
		if !ok {
			return Resolved{}, adcperr.New(adcperr.CodeInvalidAuthToken, "unknown bearer token for tenant "+resolvedTenant.TenantID)
		}
		if !resolvedTenant.Active {
			return Resolved{}, adcperr.Auth("tenant %q is not active", resolvedTenant.TenantID)
		}
		return Resolved{Tenant: resolvedTenant, PrincipalID: principalID}, nil
	}

	// No tenant hint at all: the global token lookup sets tenant context.
	globalTenantID, ok := r.store.LookupTenantByToken(bearer)
	if !ok {
		return Resolved{}, adcperr.New(adcperr.CodeInvalidAuthToken, "unknown bearer token")
	}
	t, ok := r.store.GetTenant(globalTenantID)
	if !ok {
		return Resolved{}, adcperr.Auth("unknown tenant %q", globalTenantID)
	}
	if !t.Active {
		return Resolved{}, adcperr.Auth("tenant %q is not active", t.TenantID)
	}
	principalID, ok := r.lookupPrincipal(t, bearer)
	if !ok {
		return Resolved{}, adcperr.New(adcperr.CodeInvalidAuthToken, "unknown bearer token for tenant "+t.TenantID)
	}
	return Resolved{Tenant: t, PrincipalID: principalID}, nil
}

// lookupPrincipal resolves bearer to a principal_id scoped to t, recognizing
// the synthetic admin principal when bearer matches t.AdminToken.
func (r *Resolver) lookupPrincipal(t adcp.Tenant, bearer string) (string, bool) {
	if t.AdminToken != "" && bearer == t.AdminToken {
		return t.TenantID + "_admin", true
	}
	return r.store.LookupPrincipalByToken(t.TenantID, bearer)
}

// resolveTenantID applies the subdomain -> x-adcp-tenant -> virtual-host order.
func (r *Resolver) resolveTenantID(h Headers) string {
	if sub := subdomain(h.Host); sub != "" && !reservedSubdomains[sub] {
		if t, ok := r.store.GetTenantBySubdomain(sub); ok {
			return t.TenantID
		}
	}

	if hint := strings.TrimSpace(h.XAdcpTenant); hint != "" {
		if t, ok := r.store.GetTenantBySubdomain(hint); ok {
			return t.TenantID
		}
		if t, ok := r.store.GetTenant(hint); ok {
			return t.TenantID
		}
	}

	if vhost := strings.TrimSpace(h.ApxIncomingHost); vhost != "" {
		if t, ok := r.store.GetTenantByVirtualHost(vhost); ok {
			return t.TenantID
		}
	}

	return ""
}

// subdomain extracts the leading label of a Host header, ignoring port and
// trailing dots. Returns "" for bare or single-label hosts.
func subdomain(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if idx := strings.IndexByte(host, ':'); idx != -1 {
		host = host[:idx]
	}
	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	return strings.ToLower(parts[0])
}
