package tenant

import (
	"context"
)

// DefaultTenantID is used when a request carries no tenant identity header.
const DefaultTenantID = "default"

type contextKey string

const idKey contextKey = "tenant_id"

// NewContext stores the resolved tenant ID in the context.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// FromContext extracts the tenant ID from the context. Returns DefaultTenantID
// if none is set, so callers never need to nil-check the result.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(idKey).(string)
	if id == "" {
		return DefaultTenantID
	}
	return id
}
