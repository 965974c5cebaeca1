package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/adcp/salesagent/internal/adcp"
)

// Postgres wraps the system-of-record connection for every AdCP entity.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL creates the full AdCP table set if it does not already exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS tenants (
    tenant_id TEXT PRIMARY KEY,
    subdomain TEXT UNIQUE,
    virtual_hosts TEXT[],
    adapter_type TEXT NOT NULL DEFAULT 'mock',
    authorized_domains TEXT[],
    auto_create BOOLEAN NOT NULL DEFAULT FALSE,
    approval_mode TEXT NOT NULL DEFAULT 'require-human',
    slack_webhook_url TEXT,
    admin_token TEXT,
    auto_create_media_buys BOOLEAN NOT NULL DEFAULT FALSE,
    require_manual_review BOOLEAN NOT NULL DEFAULT TRUE,
    dynamic_pricing_enabled BOOLEAN NOT NULL DEFAULT FALSE,
    gemini_api_key TEXT,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS principals (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    principal_id TEXT NOT NULL,
    name TEXT NOT NULL,
    access_token TEXT NOT NULL,
    ad_server_mappings JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, principal_id)
);
CREATE INDEX IF NOT EXISTS idx_principals_access_token ON principals (access_token);

CREATE TABLE IF NOT EXISTS products (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    product_id TEXT NOT NULL,
    name TEXT NOT NULL,
    delivery_type TEXT NOT NULL,
    min_spend DOUBLE PRECISION,
    formats JSONB,
    auto_create_enabled BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (tenant_id, product_id)
);

CREATE TABLE IF NOT EXISTS pricing_options (
    tenant_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    pricing_option_id TEXT NOT NULL,
    pricing_model TEXT NOT NULL,
    currency TEXT NOT NULL,
    is_fixed BOOLEAN NOT NULL,
    rate DOUBLE PRECISION,
    price_guidance JSONB,
    min_spend_per_package DOUBLE PRECISION,
    parameters JSONB,
    PRIMARY KEY (tenant_id, product_id, pricing_option_id),
    FOREIGN KEY (tenant_id, product_id) REFERENCES products(tenant_id, product_id)
);

CREATE TABLE IF NOT EXISTS currency_limits (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    currency TEXT NOT NULL,
    min_package_budget DOUBLE PRECISION,
    max_daily_package_spend DOUBLE PRECISION,
    PRIMARY KEY (tenant_id, currency)
);

CREATE TABLE IF NOT EXISTS media_buys (
    media_buy_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    principal_id TEXT NOT NULL,
    buyer_ref TEXT,
    po_number TEXT,
    start_time TIMESTAMPTZ NOT NULL,
    end_time TIMESTAMPTZ NOT NULL,
    total_budget DOUBLE PRECISION NOT NULL,
    currency TEXT NOT NULL,
    status TEXT NOT NULL,
    raw_request JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_media_buys_principal ON media_buys (tenant_id, principal_id);

CREATE TABLE IF NOT EXISTS media_packages (
    package_id TEXT PRIMARY KEY,
    media_buy_id TEXT NOT NULL REFERENCES media_buys(media_buy_id),
    tenant_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    budget DOUBLE PRECISION NOT NULL,
    pricing_model TEXT NOT NULL,
    bid_price DOUBLE PRECISION,
    targeting JSONB,
    creative_ids TEXT[],
    status TEXT NOT NULL,
    pacing TEXT,
    package_config JSONB
);
CREATE INDEX IF NOT EXISTS idx_media_packages_buy ON media_packages (media_buy_id);

CREATE TABLE IF NOT EXISTS creatives (
    tenant_id TEXT NOT NULL,
    principal_id TEXT NOT NULL,
    creative_id TEXT NOT NULL,
    name TEXT NOT NULL,
    format_agent_url TEXT,
    format_id TEXT,
    status TEXT NOT NULL,
    data JSONB,
    platform_creative_id TEXT,
    tags TEXT[],
    media_buy_id TEXT,
    buyer_ref TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, principal_id, creative_id)
);

CREATE TABLE IF NOT EXISTS creative_assignments (
    assignment_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    media_buy_id TEXT NOT NULL REFERENCES media_buys(media_buy_id),
    package_id TEXT NOT NULL,
    creative_id TEXT NOT NULL,
    weight INT NOT NULL DEFAULT 100
);
CREATE INDEX IF NOT EXISTS idx_creative_assignments_buy ON creative_assignments (media_buy_id);

CREATE TABLE IF NOT EXISTS contexts (
    context_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    principal_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS workflow_steps (
    step_id TEXT PRIMARY KEY,
    context_id TEXT NOT NULL REFERENCES contexts(context_id),
    tenant_id TEXT NOT NULL,
    step_type TEXT NOT NULL,
    owner TEXT NOT NULL,
    status TEXT NOT NULL,
    tool_name TEXT,
    request_data JSONB,
    response_data JSONB,
    error_message TEXT,
    assignee TEXT,
    comments JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_workflow_steps_context ON workflow_steps (context_id);

CREATE TABLE IF NOT EXISTS object_workflow_mappings (
    mapping_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    step_id TEXT NOT NULL REFERENCES workflow_steps(step_id),
    object_type TEXT NOT NULL,
    object_id TEXT NOT NULL,
    action TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_object_workflow_mappings_object ON object_workflow_mappings (object_type, object_id);

CREATE TABLE IF NOT EXISTS push_notification_configs (
    config_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    principal_id TEXT NOT NULL,
    url TEXT NOT NULL,
    auth_scheme TEXT NOT NULL,
    credentials TEXT,
    UNIQUE (tenant_id, principal_id)
);

CREATE TABLE IF NOT EXISTS authorized_properties (
    tenant_id TEXT NOT NULL,
    property TEXT NOT NULL,
    verified BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (tenant_id, property)
);

CREATE TABLE IF NOT EXISTS property_tags (
    tenant_id TEXT NOT NULL,
    property TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (tenant_id, property, key),
    FOREIGN KEY (tenant_id, property) REFERENCES authorized_properties(tenant_id, property)
);

CREATE TABLE IF NOT EXISTS creative_formats (
    tenant_id TEXT NOT NULL,
    agent_url TEXT NOT NULL,
    format_id TEXT NOT NULL,
    name TEXT NOT NULL,
    width INT,
    height INT,
    PRIMARY KEY (tenant_id, agent_url, format_id)
);

CREATE TABLE IF NOT EXISTS format_performance_metrics (
    tenant_id TEXT NOT NULL,
    country TEXT NOT NULL,
    format_id TEXT NOT NULL,
    impressions BIGINT NOT NULL DEFAULT 0,
    spend DOUBLE PRECISION NOT NULL DEFAULT 0,
    window_start TIMESTAMPTZ NOT NULL,
    window_end TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_format_perf_tenant_window ON format_performance_metrics (tenant_id, window_start, window_end);

CREATE TABLE IF NOT EXISTS audit_log (
    id BIGSERIAL PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    principal_name TEXT,
    operation TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    detail TEXT,
    security_tag TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log (tenant_id, created_at);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.connection_string", dsn),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	if err := sqlDB.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: sqlDB}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// --- Tenants ---

func (p *Postgres) UpsertTenant(ctx context.Context, t adcp.Tenant) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO tenants (
        tenant_id, subdomain, virtual_hosts, adapter_type, authorized_domains,
        auto_create, approval_mode, slack_webhook_url, admin_token,
        auto_create_media_buys, require_manual_review, dynamic_pricing_enabled,
        gemini_api_key, active, updated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
    ON CONFLICT (tenant_id) DO UPDATE SET
        subdomain=$2, virtual_hosts=$3, adapter_type=$4, authorized_domains=$5,
        auto_create=$6, approval_mode=$7, slack_webhook_url=$8, admin_token=$9,
        auto_create_media_buys=$10, require_manual_review=$11, dynamic_pricing_enabled=$12,
        gemini_api_key=$13, active=$14, updated_at=NOW()`,
		t.TenantID, t.Subdomain, pq.Array(t.VirtualHosts), t.AdapterType, pq.Array(t.AuthorizedDomains),
		t.AutoCreate, string(t.ApprovalMode), t.SlackWebhookURL, t.AdminToken,
		t.AutoCreateMediaBuys, t.RequireManualReview, t.DynamicPricingEnabled,
		t.GeminiAPIKey, t.Active)
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}
	return nil
}

func (p *Postgres) LoadTenants(ctx context.Context) ([]adcp.Tenant, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT tenant_id, subdomain, virtual_hosts, adapter_type,
        authorized_domains, auto_create, approval_mode, slack_webhook_url, admin_token,
        auto_create_media_buys, require_manual_review, dynamic_pricing_enabled, gemini_api_key,
        active, created_at, updated_at FROM tenants`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.Tenant
	for rows.Next() {
		var t adcp.Tenant
		var subdomain, slackURL, adminToken, geminiKey sql.NullString
		var approvalMode string
		if err := rows.Scan(&t.TenantID, &subdomain, pq.Array(&t.VirtualHosts), &t.AdapterType,
			pq.Array(&t.AuthorizedDomains), &t.AutoCreate, &approvalMode, &slackURL, &adminToken,
			&t.AutoCreateMediaBuys, &t.RequireManualReview, &t.DynamicPricingEnabled, &geminiKey,
			&t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		t.Subdomain = subdomain.String
		t.SlackWebhookURL = slackURL.String
		t.AdminToken = adminToken.String
		t.GeminiAPIKey = geminiKey.String
		t.ApprovalMode = adcp.ApprovalMode(approvalMode)
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Principals ---

func (p *Postgres) UpsertPrincipal(ctx context.Context, pr adcp.Principal) error {
	mappings, err := json.Marshal(pr.AdServerMappings)
	if err != nil {
		return fmt.Errorf("marshal ad_server_mappings: %w", err)
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO principals (tenant_id, principal_id, name, access_token, ad_server_mappings)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (tenant_id, principal_id) DO UPDATE SET
        name=$3, access_token=$4, ad_server_mappings=$5`,
		pr.TenantID, pr.PrincipalID, pr.Name, pr.AccessToken, mappings)
	if err != nil {
		return fmt.Errorf("upsert principal: %w", err)
	}
	return nil
}

func (p *Postgres) LoadPrincipals(ctx context.Context) ([]adcp.Principal, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT tenant_id, principal_id, name, access_token, ad_server_mappings, created_at FROM principals`)
	if err != nil {
		return nil, fmt.Errorf("query principals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.Principal
	for rows.Next() {
		var pr adcp.Principal
		var mappings sql.NullString
		if err := rows.Scan(&pr.TenantID, &pr.PrincipalID, &pr.Name, &pr.AccessToken, &mappings, &pr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		if mappings.Valid && mappings.String != "" {
			if err := json.Unmarshal([]byte(mappings.String), &pr.AdServerMappings); err != nil {
				return nil, fmt.Errorf("parse ad_server_mappings: %w", err)
			}
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// --- Products & pricing ---

func (p *Postgres) UpsertProduct(ctx context.Context, prod adcp.Product) error {
	formats, err := json.Marshal(prod.Formats)
	if err != nil {
		return fmt.Errorf("marshal formats: %w", err)
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO products (tenant_id, product_id, name, delivery_type, min_spend, formats, auto_create_enabled)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (tenant_id, product_id) DO UPDATE SET
        name=$3, delivery_type=$4, min_spend=$5, formats=$6, auto_create_enabled=$7`,
		prod.TenantID, prod.ProductID, prod.Name, string(prod.DeliveryType), prod.MinSpend, formats, prod.AutoCreateEnabled)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	for _, opt := range prod.PricingOptions {
		if err := p.upsertPricingOption(ctx, prod.TenantID, prod.ProductID, opt); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) upsertPricingOption(ctx context.Context, tenantID, productID string, opt adcp.PricingOption) error {
	guidance, err := json.Marshal(opt.PriceGuidance)
	if err != nil {
		return fmt.Errorf("marshal price_guidance: %w", err)
	}
	params, err := json.Marshal(opt.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	id := opt.PricingOptionID
	if id == "" {
		id = opt.CompositeID()
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO pricing_options (
        tenant_id, product_id, pricing_option_id, pricing_model, currency, is_fixed,
        rate, price_guidance, min_spend_per_package, parameters
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    ON CONFLICT (tenant_id, product_id, pricing_option_id) DO UPDATE SET
        pricing_model=$4, currency=$5, is_fixed=$6, rate=$7, price_guidance=$8,
        min_spend_per_package=$9, parameters=$10`,
		tenantID, productID, id, opt.PricingModel, opt.Currency, opt.IsFixed,
		opt.Rate, guidance, opt.MinSpendPerPackage, params)
	if err != nil {
		return fmt.Errorf("upsert pricing option: %w", err)
	}
	return nil
}

func (p *Postgres) LoadProducts(ctx context.Context) ([]adcp.Product, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT tenant_id, product_id, name, delivery_type, min_spend, formats, auto_create_enabled FROM products`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.Product
	for rows.Next() {
		var prod adcp.Product
		var deliveryType string
		var formats sql.NullString
		if err := rows.Scan(&prod.TenantID, &prod.ProductID, &prod.Name, &deliveryType, &prod.MinSpend, &formats, &prod.AutoCreateEnabled); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		prod.DeliveryType = adcp.DeliveryType(deliveryType)
		if formats.Valid && formats.String != "" {
			if err := json.Unmarshal([]byte(formats.String), &prod.Formats); err != nil {
				return nil, fmt.Errorf("parse formats: %w", err)
			}
		}
		opts, err := p.loadPricingOptions(ctx, prod.TenantID, prod.ProductID)
		if err != nil {
			return nil, err
		}
		prod.PricingOptions = opts
		out = append(out, prod)
	}
	return out, rows.Err()
}

func (p *Postgres) loadPricingOptions(ctx context.Context, tenantID, productID string) ([]adcp.PricingOption, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT pricing_option_id, pricing_model, currency, is_fixed, rate, price_guidance, min_spend_per_package, parameters
        FROM pricing_options WHERE tenant_id=$1 AND product_id=$2`, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("query pricing_options: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.PricingOption
	for rows.Next() {
		var opt adcp.PricingOption
		var guidance, params sql.NullString
		if err := rows.Scan(&opt.PricingOptionID, &opt.PricingModel, &opt.Currency, &opt.IsFixed, &opt.Rate, &guidance, &opt.MinSpendPerPackage, &params); err != nil {
			return nil, fmt.Errorf("scan pricing_option: %w", err)
		}
		if guidance.Valid && guidance.String != "" && guidance.String != "null" {
			var g adcp.PriceGuidance
			if err := json.Unmarshal([]byte(guidance.String), &g); err != nil {
				return nil, fmt.Errorf("parse price_guidance: %w", err)
			}
			opt.PriceGuidance = &g
		}
		if params.Valid && params.String != "" && params.String != "null" {
			if err := json.Unmarshal([]byte(params.String), &opt.Parameters); err != nil {
				return nil, fmt.Errorf("parse parameters: %w", err)
			}
		}
		out = append(out, opt)
	}
	return out, rows.Err()
}

// --- Currency limits ---

func (p *Postgres) UpsertCurrencyLimit(ctx context.Context, l adcp.CurrencyLimit) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO currency_limits (tenant_id, currency, min_package_budget, max_daily_package_spend)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (tenant_id, currency) DO UPDATE SET
        min_package_budget=$3, max_daily_package_spend=$4`,
		l.TenantID, l.Currency, l.MinPackageBudget, l.MaxDailyPackageSpend)
	if err != nil {
		return fmt.Errorf("upsert currency limit: %w", err)
	}
	return nil
}

func (p *Postgres) LoadCurrencyLimits(ctx context.Context) ([]adcp.CurrencyLimit, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT tenant_id, currency, min_package_budget, max_daily_package_spend FROM currency_limits`)
	if err != nil {
		return nil, fmt.Errorf("query currency_limits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.CurrencyLimit
	for rows.Next() {
		var l adcp.CurrencyLimit
		if err := rows.Scan(&l.TenantID, &l.Currency, &l.MinPackageBudget, &l.MaxDailyPackageSpend); err != nil {
			return nil, fmt.Errorf("scan currency_limit: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- Media buys & packages ---

func (p *Postgres) InsertMediaBuy(ctx context.Context, mb adcp.MediaBuy) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO media_buys (
        media_buy_id, tenant_id, principal_id, buyer_ref, po_number, start_time, end_time,
        total_budget, currency, status, raw_request
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		mb.MediaBuyID, mb.TenantID, mb.PrincipalID, mb.BuyerRef, mb.PONumber, mb.StartTime, mb.EndTime,
		mb.TotalBudget, mb.Currency, string(mb.Status), mb.RawRequest)
	if err != nil {
		return fmt.Errorf("insert media buy: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateMediaBuy(ctx context.Context, mb adcp.MediaBuy) error {
	_, err := p.DB.ExecContext(ctx, `UPDATE media_buys SET
        buyer_ref=$1, po_number=$2, start_time=$3, end_time=$4, total_budget=$5,
        currency=$6, status=$7, raw_request=$8, updated_at=NOW()
        WHERE media_buy_id=$9`,
		mb.BuyerRef, mb.PONumber, mb.StartTime, mb.EndTime, mb.TotalBudget,
		mb.Currency, string(mb.Status), mb.RawRequest, mb.MediaBuyID)
	if err != nil {
		return fmt.Errorf("update media buy: %w", err)
	}
	return nil
}

func (p *Postgres) LoadMediaBuys(ctx context.Context) ([]adcp.MediaBuy, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT media_buy_id, tenant_id, principal_id, buyer_ref, po_number,
        start_time, end_time, total_budget, currency, status, raw_request, created_at, updated_at FROM media_buys`)
	if err != nil {
		return nil, fmt.Errorf("query media_buys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.MediaBuy
	for rows.Next() {
		var mb adcp.MediaBuy
		var status string
		var buyerRef, poNumber sql.NullString
		var rawReq sql.NullString
		if err := rows.Scan(&mb.MediaBuyID, &mb.TenantID, &mb.PrincipalID, &buyerRef, &poNumber,
			&mb.StartTime, &mb.EndTime, &mb.TotalBudget, &mb.Currency, &status, &rawReq, &mb.CreatedAt, &mb.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan media_buy: %w", err)
		}
		mb.BuyerRef = buyerRef.String
		mb.PONumber = poNumber.String
		mb.Status = adcp.MediaBuyStatus(status)
		if rawReq.Valid {
			mb.RawRequest = json.RawMessage(rawReq.String)
		}
		out = append(out, mb)
	}
	return out, rows.Err()
}

// PutMediaPackages replaces every package row for a media buy (dual-write:
// typed columns for query/filter paths, package_config JSONB for round-trip fidelity).
func (p *Postgres) PutMediaPackages(ctx context.Context, mediaBuyID string, pkgs []adcp.MediaPackage) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM media_packages WHERE media_buy_id=$1`, mediaBuyID); err != nil {
		return fmt.Errorf("clear media_packages: %w", err)
	}
	for _, pk := range pkgs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO media_packages (
            package_id, media_buy_id, tenant_id, product_id, budget, pricing_model,
            bid_price, targeting, creative_ids, status, pacing, package_config
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			pk.PackageID, pk.MediaBuyID, pk.TenantID, pk.ProductID, pk.Budget, pk.PricingModel,
			pk.BidPrice, pk.Targeting, pq.Array(pk.CreativeIDs), string(pk.Status), pk.Pacing, pk.PackageConfig); err != nil {
			return fmt.Errorf("insert media_package %s: %w", pk.PackageID, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) LoadMediaPackages(ctx context.Context) (map[string][]adcp.MediaPackage, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT package_id, media_buy_id, tenant_id, product_id, budget, pricing_model,
        bid_price, targeting, creative_ids, status, pacing, package_config FROM media_packages`)
	if err != nil {
		return nil, fmt.Errorf("query media_packages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]adcp.MediaPackage)
	for rows.Next() {
		var pk adcp.MediaPackage
		var status string
		var targeting, config sql.NullString
		var pacing sql.NullString
		if err := rows.Scan(&pk.PackageID, &pk.MediaBuyID, &pk.TenantID, &pk.ProductID, &pk.Budget, &pk.PricingModel,
			&pk.BidPrice, &targeting, pq.Array(&pk.CreativeIDs), &status, &pacing, &config); err != nil {
			return nil, fmt.Errorf("scan media_package: %w", err)
		}
		pk.Status = adcp.PackageStatus(status)
		pk.Pacing = pacing.String
		if targeting.Valid {
			pk.Targeting = json.RawMessage(targeting.String)
		}
		if config.Valid {
			pk.PackageConfig = json.RawMessage(config.String)
		}
		out[pk.MediaBuyID] = append(out[pk.MediaBuyID], pk)
	}
	return out, rows.Err()
}

// --- Creatives & assignments ---

func (p *Postgres) UpsertCreative(ctx context.Context, c adcp.Creative) error {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return fmt.Errorf("marshal creative data: %w", err)
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO creatives (
        tenant_id, principal_id, creative_id, name, format_agent_url, format_id, status,
        data, platform_creative_id, tags, media_buy_id, buyer_ref, updated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
    ON CONFLICT (tenant_id, principal_id, creative_id) DO UPDATE SET
        name=$4, format_agent_url=$5, format_id=$6, status=$7, data=$8,
        platform_creative_id=$9, tags=$10, media_buy_id=$11, buyer_ref=$12, updated_at=NOW()`,
		c.TenantID, c.PrincipalID, c.CreativeID, c.Name, c.Format.AgentURL, c.Format.ID, string(c.Status),
		data, c.PlatformCreativeID, pq.Array(c.Tags), c.MediaBuyID, c.BuyerRef)
	if err != nil {
		return fmt.Errorf("upsert creative: %w", err)
	}
	return nil
}

func (p *Postgres) LoadCreatives(ctx context.Context) ([]adcp.Creative, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT tenant_id, principal_id, creative_id, name, format_agent_url, format_id,
        status, data, platform_creative_id, tags, media_buy_id, buyer_ref, created_at, updated_at FROM creatives`)
	if err != nil {
		return nil, fmt.Errorf("query creatives: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.Creative
	for rows.Next() {
		var c adcp.Creative
		var status string
		var data sql.NullString
		var platformID, mediaBuyID, buyerRef sql.NullString
		if err := rows.Scan(&c.TenantID, &c.PrincipalID, &c.CreativeID, &c.Name, &c.Format.AgentURL, &c.Format.ID,
			&status, &data, &platformID, pq.Array(&c.Tags), &mediaBuyID, &buyerRef, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan creative: %w", err)
		}
		c.Status = adcp.CreativeStatus(status)
		c.PlatformCreativeID = platformID.String
		c.MediaBuyID = mediaBuyID.String
		c.BuyerRef = buyerRef.String
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &c.Data); err != nil {
				return nil, fmt.Errorf("parse creative data: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertCreativeAssignment(ctx context.Context, a adcp.CreativeAssignment) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO creative_assignments (assignment_id, tenant_id, media_buy_id, package_id, creative_id, weight)
        VALUES ($1,$2,$3,$4,$5,$6)`,
		a.AssignmentID, a.TenantID, a.MediaBuyID, a.PackageID, a.CreativeID, a.Weight)
	if err != nil {
		return fmt.Errorf("insert creative assignment: %w", err)
	}
	return nil
}

// SyncCreativeTx upserts one creative and its assignments inside a single
// savepoint, so a failure partway through sync_creatives rolls back only
// this creative and leaves its siblings committed.
func (p *Postgres) SyncCreativeTx(ctx context.Context, c adcp.Creative, assignments []adcp.CreativeAssignment) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SAVEPOINT creative_sync`); err != nil {
		return fmt.Errorf("savepoint creative_sync: %w", err)
	}

	data, err := json.Marshal(c.Data)
	if err != nil {
		_, _ = tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT creative_sync`)
		return fmt.Errorf("marshal creative data: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO creatives (
        tenant_id, principal_id, creative_id, name, format_agent_url, format_id, status,
        data, platform_creative_id, tags, media_buy_id, buyer_ref, updated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
    ON CONFLICT (tenant_id, principal_id, creative_id) DO UPDATE SET
        name=$4, format_agent_url=$5, format_id=$6, status=$7, data=$8,
        platform_creative_id=$9, tags=$10, media_buy_id=$11, buyer_ref=$12, updated_at=NOW()`,
		c.TenantID, c.PrincipalID, c.CreativeID, c.Name, c.Format.AgentURL, c.Format.ID, string(c.Status),
		data, c.PlatformCreativeID, pq.Array(c.Tags), c.MediaBuyID, c.BuyerRef); err != nil {
		_, _ = tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT creative_sync`)
		return fmt.Errorf("upsert creative: %w", err)
	}

	for _, a := range assignments {
		if _, err := tx.ExecContext(ctx, `INSERT INTO creative_assignments (assignment_id, tenant_id, media_buy_id, package_id, creative_id, weight)
            VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (assignment_id) DO NOTHING`,
			a.AssignmentID, a.TenantID, a.MediaBuyID, a.PackageID, a.CreativeID, a.Weight); err != nil {
			_, _ = tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT creative_sync`)
			return fmt.Errorf("insert creative assignment %s: %w", a.AssignmentID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT creative_sync`); err != nil {
		return fmt.Errorf("release savepoint creative_sync: %w", err)
	}
	return tx.Commit()
}

func (p *Postgres) LoadCreativeAssignments(ctx context.Context) (map[string][]adcp.CreativeAssignment, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT assignment_id, tenant_id, media_buy_id, package_id, creative_id, weight FROM creative_assignments`)
	if err != nil {
		return nil, fmt.Errorf("query creative_assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]adcp.CreativeAssignment)
	for rows.Next() {
		var a adcp.CreativeAssignment
		if err := rows.Scan(&a.AssignmentID, &a.TenantID, &a.MediaBuyID, &a.PackageID, &a.CreativeID, &a.Weight); err != nil {
			return nil, fmt.Errorf("scan creative_assignment: %w", err)
		}
		out[a.MediaBuyID] = append(out[a.MediaBuyID], a)
	}
	return out, rows.Err()
}

// --- Contexts & workflow steps ---

func (p *Postgres) InsertContext(ctx context.Context, c adcp.Context) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO contexts (context_id, tenant_id, principal_id) VALUES ($1,$2,$3)
        ON CONFLICT (context_id) DO NOTHING`, c.ContextID, c.TenantID, c.PrincipalID)
	if err != nil {
		return fmt.Errorf("insert context: %w", err)
	}
	return nil
}

func (p *Postgres) LoadContexts(ctx context.Context) ([]adcp.Context, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT context_id, tenant_id, principal_id, created_at FROM contexts`)
	if err != nil {
		return nil, fmt.Errorf("query contexts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.Context
	for rows.Next() {
		var c adcp.Context
		if err := rows.Scan(&c.ContextID, &c.TenantID, &c.PrincipalID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertWorkflowStep(ctx context.Context, s adcp.WorkflowStep) error {
	comments, err := json.Marshal(s.Comments)
	if err != nil {
		return fmt.Errorf("marshal comments: %w", err)
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO workflow_steps (
        step_id, context_id, tenant_id, step_type, owner, status, tool_name,
        request_data, response_data, error_message, assignee, comments, updated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
    ON CONFLICT (step_id) DO UPDATE SET
        status=$6, response_data=$9, error_message=$10, assignee=$11, comments=$12, updated_at=NOW()`,
		s.StepID, s.ContextID, s.TenantID, string(s.StepType), string(s.Owner), string(s.Status), s.ToolName,
		s.RequestData, s.ResponseData, s.ErrorMessage, s.Assignee, comments)
	if err != nil {
		return fmt.Errorf("upsert workflow_step: %w", err)
	}
	return nil
}

func (p *Postgres) LoadWorkflowSteps(ctx context.Context) ([]adcp.WorkflowStep, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT step_id, context_id, tenant_id, step_type, owner, status, tool_name,
        request_data, response_data, error_message, assignee, comments, created_at, updated_at FROM workflow_steps`)
	if err != nil {
		return nil, fmt.Errorf("query workflow_steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.WorkflowStep
	for rows.Next() {
		var s adcp.WorkflowStep
		var stepType, owner, status string
		var toolName, errMsg, assignee sql.NullString
		var reqData, respData, comments sql.NullString
		if err := rows.Scan(&s.StepID, &s.ContextID, &s.TenantID, &stepType, &owner, &status, &toolName,
			&reqData, &respData, &errMsg, &assignee, &comments, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow_step: %w", err)
		}
		s.StepType = adcp.StepType(stepType)
		s.Owner = adcp.StepOwner(owner)
		s.Status = adcp.StepStatus(status)
		s.ToolName = toolName.String
		s.ErrorMessage = errMsg.String
		s.Assignee = assignee.String
		if reqData.Valid {
			s.RequestData = json.RawMessage(reqData.String)
		}
		if respData.Valid {
			s.ResponseData = json.RawMessage(respData.String)
		}
		if comments.Valid && comments.String != "" {
			if err := json.Unmarshal([]byte(comments.String), &s.Comments); err != nil {
				return nil, fmt.Errorf("parse comments: %w", err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertObjectWorkflowMapping(ctx context.Context, m adcp.ObjectWorkflowMapping) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO object_workflow_mappings (mapping_id, tenant_id, step_id, object_type, object_id, action)
        VALUES ($1,$2,$3,$4,$5,$6)`,
		m.MappingID, m.TenantID, m.StepID, m.ObjectType, m.ObjectID, string(m.Action))
	if err != nil {
		return fmt.Errorf("insert object_workflow_mapping: %w", err)
	}
	return nil
}

func (p *Postgres) LoadObjectWorkflowMappings(ctx context.Context) ([]adcp.ObjectWorkflowMapping, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT mapping_id, tenant_id, step_id, object_type, object_id, action, created_at
        FROM object_workflow_mappings ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query object_workflow_mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.ObjectWorkflowMapping
	for rows.Next() {
		var m adcp.ObjectWorkflowMapping
		var action string
		if err := rows.Scan(&m.MappingID, &m.TenantID, &m.StepID, &m.ObjectType, &m.ObjectID, &action, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan object_workflow_mapping: %w", err)
		}
		m.Action = adcp.MappingAction(action)
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Push notification configs ---

func (p *Postgres) UpsertPushConfig(ctx context.Context, c adcp.PushNotificationConfig) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO push_notification_configs (config_id, tenant_id, principal_id, url, auth_scheme, credentials)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (tenant_id, principal_id) DO UPDATE SET
        url=$4, auth_scheme=$5, credentials=$6`,
		c.ConfigID, c.TenantID, c.PrincipalID, c.URL, string(c.AuthScheme), c.Credentials)
	if err != nil {
		return fmt.Errorf("upsert push_notification_config: %w", err)
	}
	return nil
}

func (p *Postgres) LoadPushConfigs(ctx context.Context) ([]adcp.PushNotificationConfig, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT config_id, tenant_id, principal_id, url, auth_scheme, credentials FROM push_notification_configs`)
	if err != nil {
		return nil, fmt.Errorf("query push_notification_configs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.PushNotificationConfig
	for rows.Next() {
		var c adcp.PushNotificationConfig
		var scheme string
		var creds sql.NullString
		if err := rows.Scan(&c.ConfigID, &c.TenantID, &c.PrincipalID, &c.URL, &scheme, &creds); err != nil {
			return nil, fmt.Errorf("scan push_notification_config: %w", err)
		}
		c.AuthScheme = adcp.PushAuthScheme(scheme)
		c.Credentials = creds.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Authorized properties, tags & formats ---

func (p *Postgres) UpsertAuthorizedProperty(ctx context.Context, prop adcp.AuthorizedProperty) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO authorized_properties (tenant_id, property, verified) VALUES ($1,$2,$3)
        ON CONFLICT (tenant_id, property) DO UPDATE SET verified=$3`,
		prop.TenantID, prop.Property, prop.Verified); err != nil {
		return fmt.Errorf("upsert authorized_property: %w", err)
	}
	for _, tag := range prop.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO property_tags (tenant_id, property, key, value) VALUES ($1,$2,$3,$4)
            ON CONFLICT (tenant_id, property, key) DO UPDATE SET value=$4`,
			prop.TenantID, prop.Property, tag.Key, tag.Value); err != nil {
			return fmt.Errorf("upsert property_tag: %w", err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) LoadAuthorizedProperties(ctx context.Context) ([]adcp.AuthorizedProperty, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT tenant_id, property, verified FROM authorized_properties`)
	if err != nil {
		return nil, fmt.Errorf("query authorized_properties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.AuthorizedProperty
	for rows.Next() {
		var prop adcp.AuthorizedProperty
		if err := rows.Scan(&prop.TenantID, &prop.Property, &prop.Verified); err != nil {
			return nil, fmt.Errorf("scan authorized_property: %w", err)
		}
		tags, err := p.loadPropertyTags(ctx, prop.TenantID, prop.Property)
		if err != nil {
			return nil, err
		}
		prop.Tags = tags
		out = append(out, prop)
	}
	return out, rows.Err()
}

func (p *Postgres) loadPropertyTags(ctx context.Context, tenantID, property string) ([]adcp.PropertyTag, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT key, value FROM property_tags WHERE tenant_id=$1 AND property=$2`, tenantID, property)
	if err != nil {
		return nil, fmt.Errorf("query property_tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.PropertyTag
	for rows.Next() {
		var t adcp.PropertyTag
		if err := rows.Scan(&t.Key, &t.Value); err != nil {
			return nil, fmt.Errorf("scan property_tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertCreativeFormat(ctx context.Context, f adcp.CreativeFormat) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO creative_formats (tenant_id, agent_url, format_id, name, width, height)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (tenant_id, agent_url, format_id) DO UPDATE SET name=$4, width=$5, height=$6`,
		f.TenantID, f.AgentURL, f.FormatID, f.Name, f.Width, f.Height)
	if err != nil {
		return fmt.Errorf("upsert creative_format: %w", err)
	}
	return nil
}

func (p *Postgres) LoadCreativeFormats(ctx context.Context) ([]adcp.CreativeFormat, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT tenant_id, agent_url, format_id, name, width, height FROM creative_formats`)
	if err != nil {
		return nil, fmt.Errorf("query creative_formats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.CreativeFormat
	for rows.Next() {
		var f adcp.CreativeFormat
		if err := rows.Scan(&f.TenantID, &f.AgentURL, &f.FormatID, &f.Name, &f.Width, &f.Height); err != nil {
			return nil, fmt.Errorf("scan creative_format: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- Format performance metrics & audit log ---

func (p *Postgres) InsertFormatPerformanceMetrics(ctx context.Context, m adcp.FormatPerformanceMetrics) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO format_performance_metrics (tenant_id, country, format_id, impressions, spend, window_start, window_end)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.TenantID, m.Country, m.FormatID, m.Impressions, m.Spend, m.WindowStart, m.WindowEnd)
	if err != nil {
		return fmt.Errorf("insert format_performance_metrics: %w", err)
	}
	return nil
}

func (p *Postgres) LoadFormatPerformanceMetrics(ctx context.Context, tenantID string, since time.Time) ([]adcp.FormatPerformanceMetrics, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT tenant_id, country, format_id, impressions, spend, window_start, window_end
        FROM format_performance_metrics WHERE tenant_id=$1 AND window_start >= $2`, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("query format_performance_metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adcp.FormatPerformanceMetrics
	for rows.Next() {
		var m adcp.FormatPerformanceMetrics
		if err := rows.Scan(&m.TenantID, &m.Country, &m.FormatID, &m.Impressions, &m.Spend, &m.WindowStart, &m.WindowEnd); err != nil {
			return nil, fmt.Errorf("scan format_performance_metrics: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertAuditLogEntry records a best-effort audit entry; failures are logged
// by the caller but never gate the tool response.
func (p *Postgres) InsertAuditLogEntry(ctx context.Context, e adcp.AuditLogEntry) error {
	var securityTag interface{}
	if e.SecurityTag != "" {
		securityTag = e.SecurityTag
	}
	_, err := p.DB.ExecContext(ctx, `INSERT INTO audit_log (tenant_id, principal_name, operation, success, detail, security_tag)
        VALUES ($1,$2,$3,$4,$5,$6)`,
		e.TenantID, e.PrincipalName, e.Operation, e.Success, e.Detail, securityTag)
	if err != nil {
		return fmt.Errorf("insert audit_log entry: %w", err)
	}
	return nil
}
