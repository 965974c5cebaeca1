// Package store provides thread-safe, in-process access to the AdCP entity
// set without global variables, using a copy-on-write snapshot so readers
// never block on writers.
package store

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/adcp/salesagent/internal/adcp"
)

// ErrNotFound is returned when an entity is not present in the store.
var ErrNotFound = errors.New("entity not found")

// snapshot is an immutable view of every AdCP entity, indexed for the read
// paths the dispatcher and orchestrator exercise most.
type snapshot struct {
	tenants        map[string]adcp.Tenant              // tenant_id -> Tenant
	tenantBySub    map[string]string                    // subdomain -> tenant_id
	tenantByVHost  map[string]string                    // virtual host -> tenant_id
	principals     map[string]map[string]adcp.Principal // tenant_id -> principal_id -> Principal
	tokenIndex     map[string]string                    // "tenant_id\x00token" -> principal_id
	globalTokens   map[string]string                    // token -> tenant_id (global lookup)
	products       map[string]map[string]adcp.Product   // tenant_id -> product_id -> Product
	currencyLimits map[string]map[string]adcp.CurrencyLimit
	mediaBuys      map[string]adcp.MediaBuy // media_buy_id -> MediaBuy
	packages       map[string][]adcp.MediaPackage
	creatives      map[string]map[string]adcp.Creative // tenant_id -> creative_id+principal composite -> Creative
	assignments    map[string][]adcp.CreativeAssignment // media_buy_id -> assignments
	contexts       map[string]adcp.Context
	steps          map[string]adcp.WorkflowStep
	stepsByContext map[string][]string
	mappings       map[string][]adcp.ObjectWorkflowMapping // object key -> mappings
	pushConfigs    map[string]adcp.PushNotificationConfig
	properties     map[string][]adcp.AuthorizedProperty
	formats        map[string][]adcp.CreativeFormat
	signals        map[string][]adcp.Signal
}

func emptySnapshot() *snapshot {
	return &snapshot{
		tenants:        make(map[string]adcp.Tenant),
		tenantBySub:    make(map[string]string),
		tenantByVHost:  make(map[string]string),
		principals:     make(map[string]map[string]adcp.Principal),
		tokenIndex:     make(map[string]string),
		globalTokens:   make(map[string]string),
		products:       make(map[string]map[string]adcp.Product),
		currencyLimits: make(map[string]map[string]adcp.CurrencyLimit),
		mediaBuys:      make(map[string]adcp.MediaBuy),
		packages:       make(map[string][]adcp.MediaPackage),
		creatives:      make(map[string]map[string]adcp.Creative),
		assignments:    make(map[string][]adcp.CreativeAssignment),
		contexts:       make(map[string]adcp.Context),
		steps:          make(map[string]adcp.WorkflowStep),
		stepsByContext: make(map[string][]string),
		mappings:       make(map[string][]adcp.ObjectWorkflowMapping),
		pushConfigs:    make(map[string]adcp.PushNotificationConfig),
		properties:     make(map[string][]adcp.AuthorizedProperty),
		formats:        make(map[string][]adcp.CreativeFormat),
		signals:        make(map[string][]adcp.Signal),
	}
}

// clone makes a shallow copy of every top-level map in s so a mutation can
// build on top of it without disturbing readers holding the old snapshot.
func (s *snapshot) clone() *snapshot {
	n := &snapshot{
		tenants:        make(map[string]adcp.Tenant, len(s.tenants)),
		tenantBySub:    make(map[string]string, len(s.tenantBySub)),
		tenantByVHost:  make(map[string]string, len(s.tenantByVHost)),
		principals:     make(map[string]map[string]adcp.Principal, len(s.principals)),
		tokenIndex:     make(map[string]string, len(s.tokenIndex)),
		globalTokens:   make(map[string]string, len(s.globalTokens)),
		products:       make(map[string]map[string]adcp.Product, len(s.products)),
		currencyLimits: make(map[string]map[string]adcp.CurrencyLimit, len(s.currencyLimits)),
		mediaBuys:      make(map[string]adcp.MediaBuy, len(s.mediaBuys)),
		packages:       make(map[string][]adcp.MediaPackage, len(s.packages)),
		creatives:      make(map[string]map[string]adcp.Creative, len(s.creatives)),
		assignments:    make(map[string][]adcp.CreativeAssignment, len(s.assignments)),
		contexts:       make(map[string]adcp.Context, len(s.contexts)),
		steps:          make(map[string]adcp.WorkflowStep, len(s.steps)),
		stepsByContext: make(map[string][]string, len(s.stepsByContext)),
		mappings:       make(map[string][]adcp.ObjectWorkflowMapping, len(s.mappings)),
		pushConfigs:    make(map[string]adcp.PushNotificationConfig, len(s.pushConfigs)),
		properties:     make(map[string][]adcp.AuthorizedProperty, len(s.properties)),
		formats:        make(map[string][]adcp.CreativeFormat, len(s.formats)),
		signals:        make(map[string][]adcp.Signal, len(s.signals)),
	}
	for k, v := range s.tenants {
		n.tenants[k] = v
	}
	for k, v := range s.tenantBySub {
		n.tenantBySub[k] = v
	}
	for k, v := range s.tenantByVHost {
		n.tenantByVHost[k] = v
	}
	for k, v := range s.principals {
		m := make(map[string]adcp.Principal, len(v))
		for pk, pv := range v {
			m[pk] = pv
		}
		n.principals[k] = m
	}
	for k, v := range s.tokenIndex {
		n.tokenIndex[k] = v
	}
	for k, v := range s.globalTokens {
		n.globalTokens[k] = v
	}
	for k, v := range s.products {
		m := make(map[string]adcp.Product, len(v))
		for pk, pv := range v {
			m[pk] = pv
		}
		n.products[k] = m
	}
	for k, v := range s.currencyLimits {
		m := make(map[string]adcp.CurrencyLimit, len(v))
		for pk, pv := range v {
			m[pk] = pv
		}
		n.currencyLimits[k] = m
	}
	for k, v := range s.mediaBuys {
		n.mediaBuys[k] = v
	}
	for k, v := range s.packages {
		cp := make([]adcp.MediaPackage, len(v))
		copy(cp, v)
		n.packages[k] = cp
	}
	for k, v := range s.creatives {
		m := make(map[string]adcp.Creative, len(v))
		for pk, pv := range v {
			m[pk] = pv
		}
		n.creatives[k] = m
	}
	for k, v := range s.assignments {
		cp := make([]adcp.CreativeAssignment, len(v))
		copy(cp, v)
		n.assignments[k] = cp
	}
	for k, v := range s.contexts {
		n.contexts[k] = v
	}
	for k, v := range s.steps {
		n.steps[k] = v
	}
	for k, v := range s.stepsByContext {
		cp := make([]string, len(v))
		copy(cp, v)
		n.stepsByContext[k] = cp
	}
	for k, v := range s.mappings {
		cp := make([]adcp.ObjectWorkflowMapping, len(v))
		copy(cp, v)
		n.mappings[k] = cp
	}
	for k, v := range s.pushConfigs {
		n.pushConfigs[k] = v
	}
	for k, v := range s.properties {
		cp := make([]adcp.AuthorizedProperty, len(v))
		copy(cp, v)
		n.properties[k] = cp
	}
	for k, v := range s.formats {
		cp := make([]adcp.CreativeFormat, len(v))
		copy(cp, v)
		n.formats[k] = cp
	}
	for k, v := range s.signals {
		cp := make([]adcp.Signal, len(v))
		copy(cp, v)
		n.signals[k] = cp
	}
	return n
}

func creativeKey(principalID, creativeID string) string { return principalID + "\x00" + creativeID }
func objectKey(objectType, objectID string) string       { return objectType + "\x00" + objectID }
func tokenKey(tenantID, token string) string             { return tenantID + "\x00" + token }

// Store is the process-wide, best-effort snapshot of AdCP state. It is
// explicitly non-authoritative: cmd/mcp-server's loadStore fills it from
// Postgres once at startup, and callers must not treat it as the system of
// record for financial totals.
type Store struct {
	data atomic.Pointer[snapshot]
}

// New constructs an empty Store.
func New() *Store {
	s := &Store{}
	s.data.Store(emptySnapshot())
	return s
}

func (s *Store) load() *snapshot { return s.data.Load() }

// --- Tenants ---

func (s *Store) PutTenant(t adcp.Tenant) {
	cur := s.load().clone()
	cur.tenants[t.TenantID] = t
	if t.Subdomain != "" {
		cur.tenantBySub[t.Subdomain] = t.TenantID
	}
	for _, vh := range t.VirtualHosts {
		cur.tenantByVHost[vh] = t.TenantID
	}
	s.data.Store(cur)
}

func (s *Store) GetTenant(tenantID string) (adcp.Tenant, bool) {
	t, ok := s.load().tenants[tenantID]
	return t, ok
}

func (s *Store) GetTenantBySubdomain(sub string) (adcp.Tenant, bool) {
	cur := s.load()
	id, ok := cur.tenantBySub[sub]
	if !ok {
		return adcp.Tenant{}, false
	}
	t, ok := cur.tenants[id]
	return t, ok
}

func (s *Store) GetTenantByVirtualHost(host string) (adcp.Tenant, bool) {
	cur := s.load()
	id, ok := cur.tenantByVHost[host]
	if !ok {
		return adcp.Tenant{}, false
	}
	t, ok := cur.tenants[id]
	return t, ok
}

// --- Principals ---

func (s *Store) PutPrincipal(p adcp.Principal) {
	cur := s.load().clone()
	if cur.principals[p.TenantID] == nil {
		cur.principals[p.TenantID] = make(map[string]adcp.Principal)
	}
	cur.principals[p.TenantID][p.PrincipalID] = p
	if p.AccessToken != "" {
		cur.tokenIndex[tokenKey(p.TenantID, p.AccessToken)] = p.PrincipalID
		cur.globalTokens[p.AccessToken] = p.TenantID
	}
	s.data.Store(cur)
}

func (s *Store) GetPrincipal(tenantID, principalID string) (adcp.Principal, bool) {
	byTenant, ok := s.load().principals[tenantID]
	if !ok {
		return adcp.Principal{}, false
	}
	p, ok := byTenant[principalID]
	return p, ok
}

// ListPrincipals returns every principal registered under tenantID.
func (s *Store) ListPrincipals(tenantID string) []adcp.Principal {
	byTenant := s.load().principals[tenantID]
	out := make([]adcp.Principal, 0, len(byTenant))
	for _, p := range byTenant {
		out = append(out, p)
	}
	return out
}

// LookupPrincipalByToken resolves a bearer token scoped to tenantID.
func (s *Store) LookupPrincipalByToken(tenantID, token string) (string, bool) {
	id, ok := s.load().tokenIndex[tokenKey(tenantID, token)]
	return id, ok
}

// LookupTenantByToken performs the global (tenant-less) token lookup.
func (s *Store) LookupTenantByToken(token string) (string, bool) {
	id, ok := s.load().globalTokens[token]
	return id, ok
}

// --- Products & pricing ---

func (s *Store) PutProduct(p adcp.Product) {
	cur := s.load().clone()
	if cur.products[p.TenantID] == nil {
		cur.products[p.TenantID] = make(map[string]adcp.Product)
	}
	cur.products[p.TenantID][p.ProductID] = p
	s.data.Store(cur)
}

func (s *Store) GetProduct(tenantID, productID string) (adcp.Product, bool) {
	byTenant, ok := s.load().products[tenantID]
	if !ok {
		return adcp.Product{}, false
	}
	p, ok := byTenant[productID]
	return p, ok
}

func (s *Store) ListProducts(tenantID string) []adcp.Product {
	byTenant := s.load().products[tenantID]
	out := make([]adcp.Product, 0, len(byTenant))
	for _, p := range byTenant {
		out = append(out, p)
	}
	return out
}

func (s *Store) PutCurrencyLimit(l adcp.CurrencyLimit) {
	cur := s.load().clone()
	if cur.currencyLimits[l.TenantID] == nil {
		cur.currencyLimits[l.TenantID] = make(map[string]adcp.CurrencyLimit)
	}
	cur.currencyLimits[l.TenantID][l.Currency] = l
	s.data.Store(cur)
}

func (s *Store) GetCurrencyLimit(tenantID, currency string) (adcp.CurrencyLimit, bool) {
	byTenant, ok := s.load().currencyLimits[tenantID]
	if !ok {
		return adcp.CurrencyLimit{}, false
	}
	l, ok := byTenant[currency]
	return l, ok
}

// ListCurrencyLimits returns every currency limit configured for tenantID.
func (s *Store) ListCurrencyLimits(tenantID string) []adcp.CurrencyLimit {
	byTenant := s.load().currencyLimits[tenantID]
	out := make([]adcp.CurrencyLimit, 0, len(byTenant))
	for _, l := range byTenant {
		out = append(out, l)
	}
	return out
}

// --- Media buys & packages ---

func (s *Store) PutMediaBuy(mb adcp.MediaBuy) {
	cur := s.load().clone()
	cur.mediaBuys[mb.MediaBuyID] = mb
	s.data.Store(cur)
}

func (s *Store) GetMediaBuy(mediaBuyID string) (adcp.MediaBuy, bool) {
	mb, ok := s.load().mediaBuys[mediaBuyID]
	return mb, ok
}

func (s *Store) ListMediaBuysByPrincipal(tenantID, principalID string) []adcp.MediaBuy {
	cur := s.load()
	out := make([]adcp.MediaBuy, 0)
	for _, mb := range cur.mediaBuys {
		if mb.TenantID == tenantID && mb.PrincipalID == principalID {
			out = append(out, mb)
		}
	}
	return out
}

func (s *Store) PutPackages(mediaBuyID string, pkgs []adcp.MediaPackage) {
	cur := s.load().clone()
	cur.packages[mediaBuyID] = append([]adcp.MediaPackage(nil), pkgs...)
	s.data.Store(cur)
}

func (s *Store) GetPackages(mediaBuyID string) []adcp.MediaPackage {
	pkgs := s.load().packages[mediaBuyID]
	out := make([]adcp.MediaPackage, len(pkgs))
	copy(out, pkgs)
	return out
}

// --- Creatives ---

func (s *Store) PutCreative(c adcp.Creative) {
	cur := s.load().clone()
	if cur.creatives[c.TenantID] == nil {
		cur.creatives[c.TenantID] = make(map[string]adcp.Creative)
	}
	cur.creatives[c.TenantID][creativeKey(c.PrincipalID, c.CreativeID)] = c
	s.data.Store(cur)
}

func (s *Store) GetCreative(tenantID, principalID, creativeID string) (adcp.Creative, bool) {
	byTenant, ok := s.load().creatives[tenantID]
	if !ok {
		return adcp.Creative{}, false
	}
	c, ok := byTenant[creativeKey(principalID, creativeID)]
	return c, ok
}

func (s *Store) ListCreativesByPrincipal(tenantID, principalID string) []adcp.Creative {
	byTenant := s.load().creatives[tenantID]
	out := make([]adcp.Creative, 0)
	for _, c := range byTenant {
		if c.PrincipalID == principalID {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) PutAssignment(a adcp.CreativeAssignment) {
	cur := s.load().clone()
	cur.assignments[a.MediaBuyID] = append(append([]adcp.CreativeAssignment(nil), cur.assignments[a.MediaBuyID]...), a)
	s.data.Store(cur)
}

func (s *Store) GetAssignments(mediaBuyID string) []adcp.CreativeAssignment {
	a := s.load().assignments[mediaBuyID]
	out := make([]adcp.CreativeAssignment, len(a))
	copy(out, a)
	return out
}

// --- Contexts & workflow steps ---

func (s *Store) PutContext(c adcp.Context) {
	cur := s.load().clone()
	cur.contexts[c.ContextID] = c
	s.data.Store(cur)
}

func (s *Store) GetContext(contextID string) (adcp.Context, bool) {
	c, ok := s.load().contexts[contextID]
	return c, ok
}

func (s *Store) PutStep(step adcp.WorkflowStep) {
	cur := s.load().clone()
	if _, existed := cur.steps[step.StepID]; !existed {
		cur.stepsByContext[step.ContextID] = append(append([]string(nil), cur.stepsByContext[step.ContextID]...), step.StepID)
	}
	cur.steps[step.StepID] = step
	s.data.Store(cur)
}

func (s *Store) GetStep(stepID string) (adcp.WorkflowStep, bool) {
	st, ok := s.load().steps[stepID]
	return st, ok
}

func (s *Store) ListStepsByContext(contextID string) []adcp.WorkflowStep {
	cur := s.load()
	ids := cur.stepsByContext[contextID]
	out := make([]adcp.WorkflowStep, 0, len(ids))
	for _, id := range ids {
		if st, ok := cur.steps[id]; ok {
			out = append(out, st)
		}
	}
	return out
}

func (s *Store) PutMapping(m adcp.ObjectWorkflowMapping) {
	cur := s.load().clone()
	key := objectKey(m.ObjectType, m.ObjectID)
	cur.mappings[key] = append(append([]adcp.ObjectWorkflowMapping(nil), cur.mappings[key]...), m)
	s.data.Store(cur)
}

func (s *Store) GetMappingsForObject(objectType, objectID string) []adcp.ObjectWorkflowMapping {
	m := s.load().mappings[objectKey(objectType, objectID)]
	out := make([]adcp.ObjectWorkflowMapping, len(m))
	copy(out, m)
	return out
}

// MappingsForStep finds every mapping that targets stepID, across all objects.
func (s *Store) MappingsForStep(stepID string) []adcp.ObjectWorkflowMapping {
	cur := s.load()
	var out []adcp.ObjectWorkflowMapping
	for _, rows := range cur.mappings {
		for _, m := range rows {
			if m.StepID == stepID {
				out = append(out, m)
			}
		}
	}
	return out
}

// --- Push notification configs ---

func (s *Store) PutPushConfig(c adcp.PushNotificationConfig) {
	cur := s.load().clone()
	cur.pushConfigs[c.ConfigID] = c
	s.data.Store(cur)
}

func (s *Store) GetPushConfig(tenantID, principalID string) (adcp.PushNotificationConfig, bool) {
	cur := s.load()
	for _, c := range cur.pushConfigs {
		if c.TenantID == tenantID && c.PrincipalID == principalID {
			return c, true
		}
	}
	return adcp.PushNotificationConfig{}, false
}

// --- Authorized properties & formats ---

func (s *Store) PutAuthorizedProperty(p adcp.AuthorizedProperty) {
	cur := s.load().clone()
	cur.properties[p.TenantID] = append(append([]adcp.AuthorizedProperty(nil), cur.properties[p.TenantID]...), p)
	s.data.Store(cur)
}

func (s *Store) ListAuthorizedProperties(tenantID string) []adcp.AuthorizedProperty {
	p := s.load().properties[tenantID]
	out := make([]adcp.AuthorizedProperty, len(p))
	copy(out, p)
	return out
}

func (s *Store) PutCreativeFormat(f adcp.CreativeFormat) {
	cur := s.load().clone()
	cur.formats[f.TenantID] = append(append([]adcp.CreativeFormat(nil), cur.formats[f.TenantID]...), f)
	s.data.Store(cur)
}

func (s *Store) ListCreativeFormats(tenantID string) []adcp.CreativeFormat {
	f := s.load().formats[tenantID]
	out := make([]adcp.CreativeFormat, len(f))
	copy(out, f)
	return out
}

func (s *Store) PutSignal(sig adcp.Signal) {
	cur := s.load().clone()
	cur.signals[sig.TenantID] = append(append([]adcp.Signal(nil), cur.signals[sig.TenantID]...), sig)
	s.data.Store(cur)
}

// ListSignals returns tenantID's signal catalog, optionally filtered by
// category and a case-insensitive substring match against name/description.
func (s *Store) ListSignals(tenantID, category, query string) []adcp.Signal {
	all := s.load().signals[tenantID]
	query = strings.ToLower(query)
	out := make([]adcp.Signal, 0, len(all))
	for _, sig := range all {
		if category != "" && sig.Category != category {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(sig.Name), query) && !strings.Contains(strings.ToLower(sig.Description), query) {
			continue
		}
		out = append(out, sig)
	}
	return out
}
