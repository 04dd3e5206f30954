// Package ctxutil provides context utilities that can be safely imported anywhere.
// This package has no internal dependencies to avoid import cycles.
package ctxutil

import "context"

// DefaultSource is recorded when no transition source was attached.
const DefaultSource = "system"

// ActorKey is the context key for the operator ID.
type ActorKey struct{}

// SourceKey is the context key for the transition source recorded in
// certificate history, e.g. "cli:cert_generation" or "task:certificates.generate".
type SourceKey struct{}

// WithActorID returns a context with the operator ID embedded.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ActorKey{}, actorID)
}

// ActorFromContext returns the operator ID from context, or empty string if not set.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ActorKey{}).(string); ok {
		return v
	}
	return ""
}

// WithSource returns a context carrying the transition source.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey{}, source)
}

// SourceFromContext returns the transition source, or DefaultSource.
// When an actor is set it is appended, e.g. "cli:allowlist(ops@example.com)".
func SourceFromContext(ctx context.Context) string {
	source, _ := ctx.Value(SourceKey{}).(string)
	if source == "" {
		source = DefaultSource
	}
	if actor := ActorFromContext(ctx); actor != "" {
		return source + "(" + actor + ")"
	}
	return source
}
