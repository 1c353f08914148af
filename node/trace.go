package node

import (
	"context"

	"github.com/rs/xid"
)

type traceKey struct{}

// WithTrace returns a copy of ctx carrying the trace id. Requests made
// with the returned context log the trace id on every peer they pass
// through.
func WithTrace(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceFrom returns the trace id carried by ctx, if any.
func TraceFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// ensureTrace returns ctx with a new trace id if it doesn't carry one yet.
func ensureTrace(ctx context.Context) context.Context {
	if TraceFrom(ctx) != "" {
		return ctx
	}
	return WithTrace(ctx, xid.New().String())
}
