package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/stash/pkg/logger"
	"github.com/dmitrymomot/stash/pkg/session"
)

type requestIDKey struct{}

// RequestIDHeaders are checked in order for an upstream request id.
var RequestIDHeaders = []string{"X-Request-ID", "X-Correlation-ID"}

// RequestID assigns each request an id, reusing one sent by a proxy.
// The id is stored in the context and echoed in X-Request-ID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqID string
		for _, header := range RequestIDHeaders {
			if v := r.Header.Get(header); v != "" {
				reqID = v
				break
			}
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID)))
	})
}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// RequestIDExtractor adds request_id to every record logged with a request context.
func RequestIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if v := RequestIDFromContext(ctx); v != "" {
			return slog.String("request_id", v), true
		}
		return slog.Attr{}, false
	}
}

const recoverStackSize = 4096

// recoverer turns a handler panic into a logged 500 response.
func (a *API) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}

			stack := make([]byte, recoverStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			a.logger.ErrorContext(r.Context(), "panic recovered",
				slog.Any("panic", p),
				slog.String("stack", string(stack)),
			)
			a.writeError(w, r, fmt.Errorf("panic: %v", p))
		}()

		next.ServeHTTP(w, r)
	})
}

// sessions resolves the visitor session from the session header, starting
// a new one when the header is missing or names an unknown session. The
// session id is echoed in the same header.
func (a *API) sessions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var sess *session.Session
		if id := r.Header.Get(a.sessionHeader); id != "" {
			if s, err := a.sessionStore.Get(ctx, id); err == nil {
				sess = s
			}
		}
		if sess == nil {
			sess = session.NewAt(time.Now(), a.sessionLifetime)
			if err := a.sessionStore.Save(ctx, sess); err != nil {
				a.logger.WarnContext(ctx, "failed to save session", slog.Any("error", err))
			}
		}

		w.Header().Set(a.sessionHeader, sess.ID)
		next.ServeHTTP(w, r.WithContext(session.NewContext(ctx, sess)))
	})
}
