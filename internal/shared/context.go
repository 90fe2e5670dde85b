package shared

import "context"

type requestInfoKey struct{}

// RequestInfo carries the acting user and client address of an inbound request.
type RequestInfo struct {
	ActorID   int64
	IP        string
	RequestID string
}

// ContextWithRequestInfo stores request metadata in context.
func ContextWithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext extracts request metadata; zero value when absent.
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// ActorFromContext returns the acting user id, 0 for system actions.
func ActorFromContext(ctx context.Context) int64 {
	return RequestInfoFromContext(ctx).ActorID
}
