package auth

import (
	"context"

	"github.com/dukerupert/storefront/internal/model"
)

type contextKey struct{}

// WithPrincipal stores the authenticated principal in the context.
func WithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal placed by the session middleware.
func FromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*model.Principal)
	return p, ok && p != nil
}

func PrincipalID(ctx context.Context) int64 {
	p, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return p.ID
}

func IsAdmin(ctx context.Context) bool {
	p, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return hasAdminRole(p)
}

func hasAdminRole(p *model.Principal) bool {
	switch p.Role {
	case model.RoleAdmin:
		return true
	case model.RoleCustomer:
		return false
	default:
		return false
	}
}
