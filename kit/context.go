package kit

import (
	"context"
	"log/slog"
)

type contextKey string

// Request-scoped values set by the HTTP middleware and the MCP adapter.
const (
	UserIDKey     contextKey = "mdconv_user"
	TransportKey  contextKey = "mdconv_transport" // "http" or "mcp"
	RequestIDKey  contextKey = "mdconv_request_id"
	RemoteAddrKey contextKey = "mdconv_remote_addr"
)

func with(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func get(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

func WithUserID(ctx context.Context, id string) context.Context { return with(ctx, UserIDKey, id) }

// GetUserID returns the authenticated user, or "" when auth is off.
func GetUserID(ctx context.Context) string { return get(ctx, UserIDKey) }

func WithTransport(ctx context.Context, t string) context.Context { return with(ctx, TransportKey, t) }

// GetTransport defaults to "http" since only the MCP adapter sets it.
func GetTransport(ctx context.Context) string {
	if t := get(ctx, TransportKey); t != "" {
		return t
	}
	return "http"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return with(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string { return get(ctx, RequestIDKey) }

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return with(ctx, RemoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string { return get(ctx, RemoteAddrKey) }

// LogAttrs returns the correlation attributes present in ctx, for log lines
// emitted far from the request handler (endpoints, SQL statements).
func LogAttrs(ctx context.Context) []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)
	if id := GetRequestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if u := GetUserID(ctx); u != "" {
		attrs = append(attrs, slog.String("user", u))
	}
	return attrs
}
