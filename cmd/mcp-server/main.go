// Command mcp-server runs the AdCP sales-agent tool surface as a streamable
// HTTP MCP server. The tool surface is authenticated per request via the
// x-adcp-auth/x-adcp-tenant/apx-incoming-host headers §6 defines, which
// stdio transport has no way to carry — every request needs its own
// (tenant, principal) resolution, so the server listens over HTTP instead.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/adcp/salesagent/internal/adapter"
	"github.com/adcp/salesagent/internal/config"
	"github.com/adcp/salesagent/internal/creative"
	"github.com/adcp/salesagent/internal/db"
	"github.com/adcp/salesagent/internal/delivery"
	"github.com/adcp/salesagent/internal/dispatcher"
	"github.com/adcp/salesagent/internal/mediabuy"
	"github.com/adcp/salesagent/internal/middleware"
	"github.com/adcp/salesagent/internal/notify"
	"github.com/adcp/salesagent/internal/observability"
	"github.com/adcp/salesagent/internal/policy"
	"github.com/adcp/salesagent/internal/pricing"
	signalsvc "github.com/adcp/salesagent/internal/signal"
	"github.com/adcp/salesagent/internal/store"
	"github.com/adcp/salesagent/internal/tenant"
	"github.com/adcp/salesagent/internal/workflow"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
		} else {
			defer shutdown()
		}
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer pg.Close()

	redisStore, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("redis init failed", zap.Error(err))
	}
	defer redisStore.Close()

	var events delivery.EventSource = delivery.SyntheticSource{}
	clickhouse, err := db.InitClickHouse(cfg.ClickHouseDSN, cfg.CHMaxOpenConns, cfg.CHMaxIdleConns, cfg.CHConnMaxLifetime, cfg.CHConnMaxIdleTime, logger)
	if err != nil {
		logger.Warn("clickhouse unavailable, delivery reporting falls back to synthetic", zap.Error(err))
	} else {
		defer clickhouse.Close()
		events = clickhouse
	}

	s := store.New()
	if err := loadStore(ctx, s, pg); err != nil {
		logger.Fatal("failed to load store from postgres", zap.Error(err))
	}

	metrics := observability.NewPrometheusRegistry()
	resolver := tenant.NewResolver(s)

	notifier := notify.NewService(s, redisStore, nil, "", cfg.PushNotificationSecret, cfg.WebhookTimeout, logger)

	engine := workflow.NewEngine(s, notifier, logger)

	policySvc := policy.StaticPolicyCheckService{Outcome: policy.OutcomeApproved}
	orchestrator := mediabuy.NewOrchestrator(s, pg, engine, policySvc, adapter.New, metrics, cfg.AdapterTimeout, logger)

	creativeSvc := creative.NewService(s, pg, engine, creative.RegistryPreviewer{Store: s}, creative.StaticReviewer{Approved: true}, metrics, cfg.WorkerPoolSize, logger)

	deliveryEngine := delivery.NewEngine(s, events, adapter.New, pg, metrics, logger)

	signalSvc := signalsvc.NewService(signalsvc.StaticProvider{Store: s}, engine, logger)

	enricher := pricing.ClickHousePricingEnricher{Metrics: pg}

	disp := dispatcher.NewServer(s, resolver, engine, orchestrator, creativeSvc, deliveryEngine, signalSvc, enricher, pg, metrics, logger)

	mcpServer := buildMCPServer(disp)

	router := buildRouter(disp, mcpServer, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      middleware.WithTraceLogger(logger)(middleware.WithAdcpHeaders()(router)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("adcp sales agent listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// loadStore reconciles the process-wide snapshot with Postgres, the system
// of record. It runs once at startup; within a request, handlers read only
// from the in-memory store and durably persist through pg directly.
func loadStore(ctx context.Context, s *store.Store, pg *db.Postgres) error {
	tenants, err := pg.LoadTenants(ctx)
	if err != nil {
		return err
	}
	for _, t := range tenants {
		s.PutTenant(t)
	}

	principals, err := pg.LoadPrincipals(ctx)
	if err != nil {
		return err
	}
	for _, p := range principals {
		s.PutPrincipal(p)
	}

	products, err := pg.LoadProducts(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		s.PutProduct(p)
	}

	limits, err := pg.LoadCurrencyLimits(ctx)
	if err != nil {
		return err
	}
	for _, l := range limits {
		s.PutCurrencyLimit(l)
	}

	buys, err := pg.LoadMediaBuys(ctx)
	if err != nil {
		return err
	}
	for _, mb := range buys {
		s.PutMediaBuy(mb)
	}

	packages, err := pg.LoadMediaPackages(ctx)
	if err != nil {
		return err
	}
	for mediaBuyID, pkgs := range packages {
		s.PutPackages(mediaBuyID, pkgs)
	}

	creatives, err := pg.LoadCreatives(ctx)
	if err != nil {
		return err
	}
	for _, c := range creatives {
		s.PutCreative(c)
	}

	assignments, err := pg.LoadCreativeAssignments(ctx)
	if err != nil {
		return err
	}
	for _, as := range assignments {
		for _, a := range as {
			s.PutAssignment(a)
		}
	}

	contexts, err := pg.LoadContexts(ctx)
	if err != nil {
		return err
	}
	for _, c := range contexts {
		s.PutContext(c)
	}

	steps, err := pg.LoadWorkflowSteps(ctx)
	if err != nil {
		return err
	}
	for _, step := range steps {
		s.PutStep(step)
	}

	mappings, err := pg.LoadObjectWorkflowMappings(ctx)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		s.PutMapping(m)
	}

	pushConfigs, err := pg.LoadPushConfigs(ctx)
	if err != nil {
		return err
	}
	for _, c := range pushConfigs {
		s.PutPushConfig(c)
	}

	props, err := pg.LoadAuthorizedProperties(ctx)
	if err != nil {
		return err
	}
	for _, p := range props {
		s.PutAuthorizedProperty(p)
	}

	formats, err := pg.LoadCreativeFormats(ctx)
	if err != nil {
		return err
	}
	for _, f := range formats {
		s.PutCreativeFormat(f)
	}

	return nil
}

// wrap adapts a dispatcher.Server method into the (ctx, *mcp.CallToolRequest,
// TIn) -> (*mcp.CallToolResult, TOut, error) shape mcp.AddTool expects. Every
// dispatcher method already folds domain failures into its output's
// Envelope, so the transport-level error return is always nil here; a
// non-nil *mcp.CallToolResult is never needed since the SDK renders TOut's
// JSON as the tool result content.
func wrap[TIn, TOut any](fn func(context.Context, TIn) TOut) func(context.Context, *mcp.CallToolRequest, TIn) (*mcp.CallToolResult, TOut, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in TIn) (*mcp.CallToolResult, TOut, error) {
		return nil, fn(ctx, in), nil
	}
}

func buildMCPServer(disp *dispatcher.Server) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "adcp-salesagent",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_products",
		Description: "Discover advertising products available to the calling principal, optionally filtered by delivery type or format",
	}, wrap(disp.GetProducts))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_creative_formats",
		Description: "List the creative formats this tenant accepts, merging the standard registry with tenant overrides",
	}, wrap(disp.ListCreativeFormats))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_authorized_properties",
		Description: "List the properties this tenant is authorized to sell inventory against",
	}, wrap(disp.ListAuthorizedProperties))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_signals",
		Description: "Discover third-party audience and contextual signals available for activation",
	}, wrap(disp.GetSignals))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "activate_signal",
		Description: "Request activation of a signal onto an existing media buy; always requires publisher approval",
	}, wrap(disp.ActivateSignal))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_media_buy",
		Description: "Create a new media buy from one or more packages against published products",
	}, wrap(disp.CreateMediaBuy))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_media_buy",
		Description: "Update budget, targeting, pacing, or status of an existing media buy or its packages",
	}, wrap(disp.UpdateMediaBuy))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_media_buy_delivery",
		Description: "Report observed delivery (impressions, spend, pacing) for one or more media buys",
	}, wrap(disp.GetMediaBuyDelivery))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_performance_index",
		Description: "Report a per-product optimization score back to the publisher's ad server",
	}, wrap(disp.UpdatePerformanceIndex))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_creatives",
		Description: "Upload or update creatives and sync their package assignments",
	}, wrap(disp.SyncCreatives))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_creatives",
		Description: "List the calling principal's creative library, filtered and paginated",
	}, wrap(disp.ListCreatives))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List workflow tasks under a context, optionally filtered by owner",
	}, wrap(disp.ListTasks))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_task",
		Description: "Fetch a single workflow task by id",
	}, wrap(disp.GetTask))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "complete_task",
		Description: "Resolve a task awaiting approval as approved or rejected",
	}, wrap(disp.CompleteTask))

	return server
}

// buildRouter wires the MCP tool surface at /mcp and the Admin-UI-facing
// execute_approved_media_buy callback at /admin/media-buys/{id}/execute.
// The callback is a plain HTTP endpoint, not an MCP tool: it's invoked by
// the publisher's own approval UI, not by a buying agent.
func buildRouter(disp *dispatcher.Server, mcpServer *mcp.Server, log *zap.Logger) *mux.Router {
	r := mux.NewRouter()

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil)
	r.PathPrefix("/mcp").Handler(mcpHandler)

	r.HandleFunc("/admin/media-buys/{media_buy_id}/execute", func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		tenantID := req.URL.Query().Get("tenant_id")
		out := disp.ExecuteApprovedMediaBuy(req.Context(), dispatcher.ExecuteApprovedMediaBuyInput{
			MediaBuyID: vars["media_buy_id"],
			TenantID:   tenantID,
		})
		w.Header().Set("Content-Type", "application/json")
		if out.Status == "failed" {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}
		if err := writeJSON(w, out); err != nil {
			log.Warn("failed to write execute_approved_media_buy response", zap.Error(err))
		}
	}).Methods(http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, v any) error {
	return json.NewEncoder(w).Encode(v)
}
