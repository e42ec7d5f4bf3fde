package storage

import "context"

// tenantKey is unexported so no other package can forge or read the
// tenant value with a colliding key.
type tenantKey struct{}

// SetTenant returns a context scoped to the given tenant. Stores use it
// to partition records.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// GetTenant returns the tenant carried by the context. An empty string
// means single-tenant mode.
func GetTenant(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey{}).(string)
	return tenant
}
