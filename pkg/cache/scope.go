package cache

import (
	"context"
	"time"
)

// Scope binds session-backend entries to one session.
// A zero ExpiresAt means the scope has no lifetime cap.
type Scope struct {
	ExpiresAt time.Time
	ID        string
}

// Live reports whether entries may still be read or written in this scope.
func (s Scope) Live(now time.Time) bool {
	if s.ID == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

type scopeKey struct{}

// WithScope returns a context carrying the session scope used by the session backend.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromContext returns the session scope stored in ctx, if any.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok && s.ID != ""
}
