package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/storefront/internal/auth"
	"github.com/dukerupert/storefront/internal/handler"
	"github.com/dukerupert/storefront/internal/model"
)

type sessionGate interface {
	Verify(ctx context.Context, token auth.SessionToken) (*model.Principal, error)
	RequireAuth(ctx context.Context, token auth.SessionToken) (*model.Principal, error)
	RequireAdmin(ctx context.Context, token auth.SessionToken) (*model.Principal, error)
}

type tokenReader interface {
	Read(r *http.Request) (auth.SessionToken, bool)
}

// Authenticate attaches the session principal to the request context when a
// valid cookie is present. Requests without one pass through untouched.
func Authenticate(sessions sessionGate, cookies tokenReader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := cookies.Read(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			p, err := sessions.Verify(r.Context(), token)
			if err != nil {
				logger.Error("session lookup", "error", err)
			}
			if p != nil {
				r = r.WithContext(auth.WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests without a valid session cookie (401) and
// stores the principal in the request context.
func RequireAuth(sessions sessionGate, cookies tokenReader, logger *slog.Logger) func(http.Handler) http.Handler {
	return gate(sessions.RequireAuth, cookies, logger)
}

// RequireAdmin is RequireAuth plus a 403 for non-admin principals.
func RequireAdmin(sessions sessionGate, cookies tokenReader, logger *slog.Logger) func(http.Handler) http.Handler {
	return gate(sessions.RequireAdmin, cookies, logger)
}

func gate(check func(context.Context, auth.SessionToken) (*model.Principal, error), cookies tokenReader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := cookies.Read(r)
			p, err := check(r.Context(), token)
			if err != nil {
				handler.WriteError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}
