package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareResolution(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   string
	}{
		{
			name:   "no headers falls back to default",
			header: http.Header{},
			want:   DefaultTenantID,
		},
		{
			name:   "X-User-Id used when X-Tenant-Id absent",
			header: http.Header{"X-User-Id": []string{"u-1"}},
			want:   "u-1",
		},
		{
			name: "X-Tenant-Id preferred over X-User-Id",
			header: http.Header{
				"X-Tenant-Id": []string{"t-1"},
				"X-User-Id":   []string{"u-1"},
			},
			want: "t-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = FromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header = tt.header
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("resolved tenant = %q, want %q", got, tt.want)
			}
		})
	}
}
