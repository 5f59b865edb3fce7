package session

import (
	"context"

	"github.com/dmitrymomot/stash/pkg/cache"
)

type sessionCtx struct{}

// NewContext returns a context carrying s and its cache scope, so session
// backend reads and writes made with it land in s's namespace.
func NewContext(ctx context.Context, s *Session) context.Context {
	ctx = context.WithValue(ctx, sessionCtx{}, s)
	return cache.WithScope(ctx, s.Scope())
}

// FromContext returns the session stored by NewContext.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionCtx{}).(*Session)
	return s, ok && s != nil
}
