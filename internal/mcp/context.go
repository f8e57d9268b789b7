package mcp

import "context"

type contextKey string

const contextKeyRemoteAddr contextKey = "agentmail-remote-addr"

// WithRemoteAddr attaches the HTTP peer address to ctx so tool handlers and
// audit logging can record it without threading it through every call.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, contextKeyRemoteAddr, addr)
}

// RemoteAddrFromContext returns the peer address attached by WithRemoteAddr,
// or "" outside an HTTP request (e.g. the stdio transport).
func RemoteAddrFromContext(ctx context.Context) string {
	addr, _ := ctx.Value(contextKeyRemoteAddr).(string)
	return addr
}
