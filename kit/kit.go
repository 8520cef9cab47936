// CLAUDE:SUMMARY Transport-neutral endpoint type with middleware chaining, shared by the HTTP and MCP surfaces.
// Package kit defines the Endpoint shape every mdconv operation is exposed
// through, plus the request-scoped context values middleware attaches.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is one operation: a decoded request in, a JSON-able response out.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of the endpoint named name with its duration.
// Failures are logged at warn level.
func Logging(logger *slog.Logger, name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := append([]slog.Attr{
				slog.String("endpoint", name),
				slog.String("transport", GetTransport(ctx)),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			}, LogAttrs(ctx)...)
			if err != nil {
				logger.LogAttrs(ctx, slog.LevelWarn, "endpoint failed", append(attrs, slog.String("error", err.Error()))...)
			} else {
				logger.LogAttrs(ctx, slog.LevelDebug, "endpoint done", attrs...)
			}
			return resp, err
		}
	}
}
