package httpapi

import (
	"context"
	"net/http"

	"authd.dev/internal/authz"
	"authd.dev/internal/session"
)

type ctxKey int

const (
	ctxSession ctxKey = iota
	ctxMemo
)

// CurrentSession returns the resolved session attached by WithSession.
func CurrentSession(ctx context.Context) (*session.Resolved, bool) {
	resolved, ok := ctx.Value(ctxSession).(*session.Resolved)
	return resolved, ok
}

// PermissionMemo returns the request-scoped permission cache.
func PermissionMemo(ctx context.Context) (*authz.Memo, bool) {
	memo, ok := ctx.Value(ctxMemo).(*authz.Memo)
	return memo, ok
}

// WithSession resolves the session cookie when present and attaches the
// identity plus a request-scoped permission memo. Anonymous requests pass
// through untouched; a dead cookie is treated the same as no cookie.
func (a *API) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolved, err := a.sessions.ResolveFromCookies(r.Context(), Cookies(w, r))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), ctxSession, resolved)
		ctx = context.WithValue(ctx, ctxMemo, a.resolver.ForRequest())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession rejects requests without a valid session.
func RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentSession(r.Context()); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"message": "Authentication required.",
			})
			return
		}
		next(w, r)
	}
}
