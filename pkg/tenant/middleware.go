package tenant

import (
	"net/http"
)

// Middleware resolves the tenant identity from the X-Tenant-Id header,
// falling back to X-User-Id, and finally DefaultTenantID. Tenant identity
// is trusted on input — there is no authentication layer in front of it.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Tenant-Id")
		if id == "" {
			id = r.Header.Get("X-User-Id")
		}
		if id == "" {
			id = DefaultTenantID
		}

		ctx := NewContext(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
