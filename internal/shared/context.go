package shared

import (
	"context"
	"strings"
)

// TenantContext identifies the caller of a ledger operation.
type TenantContext struct {
	TenantID string
	UserID   string
}

// Validate ensures both identifiers are present.
func (tc TenantContext) Validate() error {
	if strings.TrimSpace(tc.TenantID) == "" {
		return ErrMissingTenant
	}
	if strings.TrimSpace(tc.UserID) == "" {
		return ErrMissingUser
	}
	return nil
}

type tenantContextKey struct{}

// ContextWithTenant stores the tenant context in ctx.
func ContextWithTenant(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// TenantFromContext extracts the tenant context from ctx.
func TenantFromContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(tenantContextKey{}).(TenantContext)
	return tc, ok
}
