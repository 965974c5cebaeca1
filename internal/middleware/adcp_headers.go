package middleware

import (
	"context"
	"net/http"

	"github.com/adcp/salesagent/internal/tenant"
)

// headersKey is the context key the AdCP header middleware stores under.
type headersKey struct{}

// WithAdcpHeaders returns middleware that lifts the header set §6 of the
// protocol defines (x-adcp-auth, x-adcp-tenant, apx-incoming-host,
// x-context-id, the push-notification trio, and Host) into the request
// context, mirroring WithTraceLogger's context-injection shape. Tool
// handlers registered on the resulting mcp.Server read them back via
// RequestMetaFromContext rather than taking *http.Request directly, since the
// MCP SDK hands handlers a context, not the original request.
func WithAdcpHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := tenant.Headers{
				Host:            r.Host,
				XAdcpTenant:     r.Header.Get("x-adcp-tenant"),
				ApxIncomingHost: r.Header.Get("apx-incoming-host"),
				XAdcpAuth:       r.Header.Get("x-adcp-auth"),
			}
			ctx := context.WithValue(r.Context(), headersKey{}, RequestMeta{
				Headers:                     h,
				ContextID:                   r.Header.Get("x-context-id"),
				PushNotificationURL:         r.Header.Get("x-push-notification-url"),
				PushNotificationAuthScheme:  r.Header.Get("x-push-notification-auth-scheme"),
				PushNotificationCredentials: r.Header.Get("x-push-notification-credentials"),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestMeta bundles every AdCP-defined header a tool handler may need
// beyond the bearer/tenant triple tenant.Resolver already consumes.
type RequestMeta struct {
	Headers                     tenant.Headers
	ContextID                   string
	PushNotificationURL         string
	PushNotificationAuthScheme  string
	PushNotificationCredentials string
}

// RequestMetaFromContext retrieves the AdCP header bundle injected by
// WithAdcpHeaders. Absent any (e.g. in unit tests that call handlers
// directly), it returns the zero value.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if m, ok := ctx.Value(headersKey{}).(RequestMeta); ok {
		return m
	}
	return RequestMeta{}
}
